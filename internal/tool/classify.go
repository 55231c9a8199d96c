// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/omegaparse/omegaparse/internal/aggregate"
	"github.com/omegaparse/omegaparse/internal/detect"
	"github.com/omegaparse/omegaparse/internal/pipeline"
	"github.com/omegaparse/omegaparse/internal/schema"
)

// defaultMaxEvents caps the events returned in one tool response.
const defaultMaxEvents = 100

// MetadataClassifyExportFile describes the classify_export_file tool.
var MetadataClassifyExportFile = &mcp.Tool{
	Name: "classify_export_file",
	Description: "Classify a single file from a personal data export and return its canonical events. " +
		"Recognised sources: openai (conversations.json and friends), youtube_takeout (watch and search " +
		"history, subscriptions, comments), and generic CSV, JSON and text files. " +
		"The file path matters: Takeout files are recognised partly by their location in the archive. " +
		"Each event carries a source system, content type, confidence and the evidence behind it. " +
		"Events whose content type is unknown or whose confidence is below the threshold are reported as unclassified.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"content", "path"},
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Raw content of the file",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path of the file inside the export, e.g. Takeout/YouTube/history/watch-history.json",
			},
			"source_hint": map[string]interface{}{
				"type":        "string",
				"description": "Optional source system to prefer when signals are ambiguous.",
				"enum":        []string{"openai", "youtube_takeout", "generic_csv", "generic_json", "generic_text", "unknown"},
			},
			"threshold": map[string]interface{}{
				"type":        "number",
				"description": "Confidence below which events count as unclassified. Defaults to 0.5.",
				"minimum":     0,
				"maximum":     1,
			},
			"max_events": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of events to return. Defaults to 100; counts always cover the whole file.",
				"minimum":     1,
			},
		},
	},
}

// InputClassifyExportFile is the input for the ClassifyExportFile tool.
type InputClassifyExportFile struct {
	Content    string   `json:"content"`
	Path       string   `json:"path"`
	SourceHint string   `json:"source_hint"`
	Threshold  *float64 `json:"threshold"`
	MaxEvents  int      `json:"max_events"`
}

// ToolEvent is an event flattened for tool output.
type ToolEvent struct {
	ID           string         `json:"id"`
	RecordIndex  int            `json:"record_index"`
	SourceSystem string         `json:"source_system"`
	ContentType  string         `json:"content_type"`
	Channel      string         `json:"channel,omitempty"`
	Timestamp    string         `json:"timestamp,omitempty"`
	Fields       map[string]any `json:"normalized_fields"`
	Confidence   float64        `json:"confidence"`
	Evidence     []string       `json:"evidence"`
	Unclassified bool           `json:"unclassified"`
	Raw          any            `json:"raw"`
}

// OutputClassifyExportFile is the output for the ClassifyExportFile tool.
type OutputClassifyExportFile struct {
	// Format is the extractor that read the file.
	Format       string   `json:"format"`
	SourceSystem string   `json:"source_system"`
	ContentType  string   `json:"content_type"`
	Confidence   float64  `json:"confidence"`
	Evidence     []string `json:"evidence"`
	// TotalEvents counts every record, including those not returned.
	TotalEvents        int         `json:"total_events"`
	UnclassifiedEvents int         `json:"unclassified_events"`
	Events             []ToolEvent `json:"events"`
	Truncated          bool        `json:"truncated"`
}

// Classifier runs the classify_export_file tool with a fixed logger.
type Classifier struct {
	logger logrus.FieldLogger
}

// NewClassifier creates a Classifier.
func NewClassifier(logger logrus.FieldLogger) *Classifier {
	return &Classifier{logger: logger}
}

// ClassifyExportFile runs detection, extraction and normalization over the
// provided content and returns the file classification with its events.
func (c *Classifier) ClassifyExportFile(ctx context.Context, _ *mcp.CallToolRequest, input InputClassifyExportFile) (*mcp.CallToolResult, OutputClassifyExportFile, error) {
	if input.Content == "" {
		return nil, OutputClassifyExportFile{}, fmt.Errorf("content is required")
	}
	if input.Path == "" {
		return nil, OutputClassifyExportFile{}, fmt.Errorf("path is required")
	}

	threshold := aggregate.DefaultThreshold
	if input.Threshold != nil {
		if *input.Threshold < 0 || *input.Threshold > 1 {
			return nil, OutputClassifyExportFile{}, fmt.Errorf("threshold must be between 0 and 1, got %v", *input.Threshold)
		}
		threshold = *input.Threshold
	}
	maxEvents := input.MaxEvents
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}

	detectOpts := []detect.Option{detect.WithLogger(c.logger)}
	if input.SourceHint != "" {
		hint, err := schema.ParseSourceSystem(input.SourceHint)
		if err != nil {
			return nil, OutputClassifyExportFile{}, err
		}
		detectOpts = append(detectOpts, detect.WithSourceHint(hint))
	}

	p := pipeline.New(
		pipeline.WithDetector(detect.New(detectOpts...)),
		pipeline.WithThreshold(threshold),
		pipeline.WithLogger(c.logger),
	)
	res, partial := p.ProcessFile(ctx, schema.MemoryFile(input.Path, []byte(input.Content)))
	if res.Err != nil {
		return nil, OutputClassifyExportFile{}, res.Err
	}

	summary := partial.Report().Summary
	out := OutputClassifyExportFile{
		Format:             res.Format,
		SourceSystem:       string(res.Classification.SourceSystem),
		ContentType:        string(res.Classification.ContentType),
		Confidence:         res.Classification.Confidence,
		Evidence:           res.Classification.Evidence,
		TotalEvents:        summary.TotalEvents,
		UnclassifiedEvents: summary.UnclassifiedEvents,
		Events:             []ToolEvent{},
		Truncated:          len(res.Events) > maxEvents,
	}
	for i, evt := range res.Events {
		if i == maxEvents {
			break
		}
		out.Events = append(out.Events, toToolEvent(evt, partial.IsUnclassified(evt)))
	}
	return nil, out, nil
}

func toToolEvent(evt schema.Event, unclassified bool) ToolEvent {
	te := ToolEvent{
		ID:           evt.ID,
		RecordIndex:  evt.RecordIndex,
		SourceSystem: string(evt.SourceSystem),
		ContentType:  string(evt.ContentType),
		Channel:      evt.ChannelOr(""),
		Fields:       evt.Fields,
		Confidence:   evt.Confidence,
		Evidence:     evt.Evidence,
		Unclassified: unclassified,
	}
	if evt.Timestamp != nil {
		te.Timestamp = evt.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	switch evt.Raw.Kind() {
	case schema.PayloadJSON:
		if v, err := evt.Raw.Decode(); err == nil {
			te.Raw = v
		}
	case schema.PayloadRow:
		m := make(map[string]string, len(evt.Raw.Row()))
		for _, f := range evt.Raw.Row() {
			m[f.Name] = f.Value
		}
		te.Raw = m
	case schema.PayloadText:
		te.Raw = evt.Raw.Text()
	case schema.PayloadFile:
		if ref, ok := evt.Raw.File(); ok {
			te.Raw = ref
		}
	}
	return te
}
