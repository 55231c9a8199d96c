// SPDX-License-Identifier: Apache-2.0

// Package aggregate folds events into deterministic counts and the
// unclassified bucket.
package aggregate

import (
	"path"
	"sort"
	"strings"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// DefaultThreshold is the confidence below which an event is listed as
// unclassified.
const DefaultThreshold = 0.5

// UnknownChannel groups events that carry no channel.
const UnknownChannel = "unknown"

// noExtension is the file-type bucket for files without an extension.
const noExtension = "none"

// Summary holds the run totals.
type Summary struct {
	TotalFiles             int     `json:"total_files" yaml:"total_files"`
	SkippedFiles           int     `json:"skipped_files" yaml:"skipped_files"`
	TotalEvents            int     `json:"total_events" yaml:"total_events"`
	UnclassifiedEvents     int     `json:"unclassified_events" yaml:"unclassified_events"`
	EventsWithoutTimestamp int     `json:"events_without_timestamp" yaml:"events_without_timestamp"`
	Threshold              float64 `json:"threshold" yaml:"threshold"`
}

// Report is the final, ordered result of a run.
type Report struct {
	Summary           Summary        `json:"summary" yaml:"summary"`
	ByContentType     Counts         `json:"by_content_type" yaml:"by_content_type"`
	ByChannel         Counts         `json:"by_channel" yaml:"by_channel"`
	BySourceSystem    Counts         `json:"by_source_system" yaml:"by_source_system"`
	ByFileType        Counts         `json:"by_file_type" yaml:"by_file_type"`
	UnclassifiedFiles []string       `json:"unclassified_files" yaml:"unclassified_files"`
	Unclassified      []schema.Event `json:"unclassified" yaml:"unclassified"`
}

// Accumulator is the running state of one aggregation. It is not safe for
// concurrent use; parallel callers keep one per worker and Merge them.
type Accumulator struct {
	threshold float64

	files, skipped, events, untimed int

	byContentType  map[string]int
	byChannel      map[string]int
	bySourceSystem map[string]int
	byFileType     map[string]int

	unclassifiedFiles []string
	unclassified      []schema.Event
}

// NewAccumulator creates an empty accumulator routing events below threshold
// into the unclassified bucket.
func NewAccumulator(threshold float64) *Accumulator {
	return &Accumulator{
		threshold:      threshold,
		byContentType:  make(map[string]int),
		byChannel:      make(map[string]int),
		bySourceSystem: make(map[string]int),
		byFileType:     make(map[string]int),
	}
}

// Threshold returns the configured unclassified threshold.
func (a *Accumulator) Threshold() float64 {
	return a.threshold
}

// IsUnclassified reports whether e belongs in the unclassified bucket.
func (a *Accumulator) IsUnclassified(e schema.Event) bool {
	return e.ContentType == schema.ContentUnknown || e.Confidence < a.threshold
}

// AddFile records one processed file and its file-level classification.
func (a *Accumulator) AddFile(file string, cls schema.Classification) {
	a.files++
	if cls.ContentType == schema.ContentUnknown || cls.Confidence < a.threshold {
		a.unclassifiedFiles = append(a.unclassifiedFiles, file)
	}
}

// AddSkipped records a file that could not be read.
func (a *Accumulator) AddSkipped(file string) {
	a.files++
	a.skipped++
	a.unclassifiedFiles = append(a.unclassifiedFiles, file)
}

// Add folds one event into the counts. Unclassified events still count in
// every grouping.
func (a *Accumulator) Add(e schema.Event) {
	a.events++
	a.byContentType[string(e.ContentType)]++
	a.byChannel[e.ChannelOr(UnknownChannel)]++
	a.bySourceSystem[string(e.SourceSystem)]++
	a.byFileType[FileType(e.SourceFile)]++
	if e.Timestamp == nil {
		a.untimed++
	}
	if a.IsUnclassified(e) {
		a.unclassified = append(a.unclassified, e)
	}
}

// Merge adds other into a. Merging is commutative and associative, so the
// report does not depend on the order partial accumulators arrive in.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil {
		return
	}
	a.files += other.files
	a.skipped += other.skipped
	a.events += other.events
	a.untimed += other.untimed
	mergeCounts(a.byContentType, other.byContentType)
	mergeCounts(a.byChannel, other.byChannel)
	mergeCounts(a.bySourceSystem, other.bySourceSystem)
	mergeCounts(a.byFileType, other.byFileType)
	a.unclassifiedFiles = append(a.unclassifiedFiles, other.unclassifiedFiles...)
	a.unclassified = append(a.unclassified, other.unclassified...)
}

func mergeCounts(dst, src map[string]int) {
	for k, v := range src {
		dst[k] += v
	}
}

// Report returns the ordered result. Groupings are sorted by key and the
// unclassified events by file, record index, then id.
func (a *Accumulator) Report() Report {
	files := append([]string{}, a.unclassifiedFiles...)
	sort.Strings(files)

	events := append([]schema.Event{}, a.unclassified...)
	sort.SliceStable(events, func(i, j int) bool {
		x, y := events[i], events[j]
		if x.SourceFile != y.SourceFile {
			return x.SourceFile < y.SourceFile
		}
		if x.RecordIndex != y.RecordIndex {
			return x.RecordIndex < y.RecordIndex
		}
		return x.ID < y.ID
	})

	return Report{
		Summary: Summary{
			TotalFiles:             a.files,
			SkippedFiles:           a.skipped,
			TotalEvents:            a.events,
			UnclassifiedEvents:     len(events),
			EventsWithoutTimestamp: a.untimed,
			Threshold:              a.threshold,
		},
		ByContentType:     sortedCounts(a.byContentType),
		ByChannel:         sortedCounts(a.byChannel),
		BySourceSystem:    sortedCounts(a.bySourceSystem),
		ByFileType:        sortedCounts(a.byFileType),
		UnclassifiedFiles: files,
		Unclassified:      events,
	}
}

// FileType is the grouping key for a source file: its lowercase extension.
func FileType(file string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(file)), ".")
	if ext == "" {
		return noExtension
	}
	return ext
}
