// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// RawRecord is one unit of original content extracted from a file.
// RecordIndex is the position inside the file, 0 for atomic files.
type RawRecord struct {
	SourceFile  string  `json:"source_file" yaml:"source_file"`
	RecordIndex int     `json:"record_index" yaml:"record_index"`
	Payload     Payload `json:"payload" yaml:"payload"`
}

// Event is the canonical, normalized form of a RawRecord. Optional values are
// nil when the source did not carry them; they are never defaulted.
type Event struct {
	ID           string         `json:"id" yaml:"id"`
	SourceFile   string         `json:"source_file" yaml:"source_file"`
	RecordIndex  int            `json:"record_index" yaml:"record_index"`
	SourceSystem SourceSystem   `json:"source_system" yaml:"source_system"`
	ContentType  ContentType    `json:"content_type" yaml:"content_type"`
	Channel      *string        `json:"channel,omitempty" yaml:"channel,omitempty"`
	Timestamp    *time.Time     `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Fields       map[string]any `json:"normalized_fields" yaml:"normalized_fields"`
	Confidence   float64        `json:"confidence" yaml:"confidence"`
	Evidence     []string       `json:"evidence" yaml:"evidence"`
	Raw          Payload        `json:"raw" yaml:"raw"`
}

// ChannelOr returns the channel, or fallback when the event has none.
func (e Event) ChannelOr(fallback string) string {
	if e.Channel == nil {
		return fallback
	}
	return *e.Channel
}

// Field looks up a normalized field.
func (e Event) Field(name string) (any, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// eventNamespace scopes every event ID. Changing it changes every ID ever emitted.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("omegaparse:event"))

// EventID derives the stable identity of a record. The source file path is
// part of the input, so identical payloads in different files get different IDs.
func EventID(sourceFile string, recordIndex int, payload Payload) string {
	data := make([]byte, 0, len(sourceFile)+32)
	data = append(data, sourceFile...)
	data = append(data, 0)
	data = strconv.AppendInt(data, int64(recordIndex), 10)
	data = append(data, 0)
	data = append(data, payload.Canonical()...)
	return uuid.NewSHA1(eventNamespace, data).String()
}
