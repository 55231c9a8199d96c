// SPDX-License-Identifier: Apache-2.0

// Package emit writes run output: report artifacts, the event log, the
// SQLite event store and Prometheus textfile metrics.
package emit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/omegaparse/omegaparse/internal/aggregate"
)

// Format is an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Ext returns the file extension for artifacts in this format.
func (f Format) Ext() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

// artifact is one report file and the value written to it.
type artifact struct {
	name  string
	value any
}

func artifacts(r aggregate.Report) []artifact {
	return []artifact{
		{"summary", r.Summary},
		{"by_content_type", r.ByContentType},
		{"by_channel", r.ByChannel},
		{"by_source_system", r.BySourceSystem},
		{"by_file_type", r.ByFileType},
		{"unclassified", r.Unclassified},
		{"unclassified_files", r.UnclassifiedFiles},
	}
}

// WriteReport writes every report artifact into dir, creating it if needed,
// and returns the written paths in a fixed order.
func WriteReport(dir string, format Format, r aggregate.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var written []string
	for _, a := range artifacts(r) {
		data, err := Encode(format, a.value)
		if err != nil {
			return written, fmt.Errorf("encode %s: %w", a.name, err)
		}
		p := filepath.Join(dir, a.name+format.Ext())
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", p, err)
		}
		written = append(written, p)
	}
	return written, nil
}

// Encode renders v in format. JSON is indented with two spaces, HTML is not
// escaped, and the output always ends with a newline.
func Encode(format Format, v any) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(v)
	case FormatJSON, "":
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
