// SPDX-License-Identifier: Apache-2.0

// Package schema holds the canonical data model shared by every pipeline stage:
// file descriptors, classifications, raw records, payloads and events.
package schema

import (
	"fmt"
	"strings"
)

// SourceSystem names the export family a file or record came from.
type SourceSystem string

const (
	SourceOpenAI         SourceSystem = "openai"
	SourceYouTubeTakeout SourceSystem = "youtube_takeout"
	SourceGenericCSV     SourceSystem = "generic_csv"
	SourceGenericJSON    SourceSystem = "generic_json"
	SourceGenericText    SourceSystem = "generic_text"
	SourceUnknown        SourceSystem = "unknown"
)

// sourceSystems is in declaration order. The detector breaks exact ties with it,
// so the order must stay stable.
var sourceSystems = []SourceSystem{
	SourceOpenAI,
	SourceYouTubeTakeout,
	SourceGenericCSV,
	SourceGenericJSON,
	SourceGenericText,
	SourceUnknown,
}

// SourceSystems returns every known source system in declaration order.
func SourceSystems() []SourceSystem {
	out := make([]SourceSystem, len(sourceSystems))
	copy(out, sourceSystems)
	return out
}

// ParseSourceSystem resolves a case-insensitive source name.
func ParseSourceSystem(s string) (SourceSystem, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for _, src := range sourceSystems {
		if string(src) == want {
			return src, nil
		}
	}
	return SourceUnknown, fmt.Errorf("unknown source system %q", s)
}

// Rank is the declaration position of s; unknown values sort last.
func (s SourceSystem) Rank() int {
	for i, src := range sourceSystems {
		if src == s {
			return i
		}
	}
	return len(sourceSystems)
}

// ContentType is the kind of user activity a record represents.
type ContentType string

const (
	ContentMessage ContentType = "message"
	ContentComment ContentType = "comment"
	ContentVideo   ContentType = "video"
	ContentSearch  ContentType = "search"
	ContentChannel ContentType = "channel"
	ContentUnknown ContentType = "unknown"
)

var contentTypes = []ContentType{
	ContentMessage,
	ContentComment,
	ContentVideo,
	ContentSearch,
	ContentChannel,
	ContentUnknown,
}

// ContentTypes returns every content type in declaration order.
func ContentTypes() []ContentType {
	out := make([]ContentType, len(contentTypes))
	copy(out, contentTypes)
	return out
}

// Rank is the declaration position of c; unknown values sort last.
func (c ContentType) Rank() int {
	for i, ct := range contentTypes {
		if ct == c {
			return i
		}
	}
	return len(contentTypes)
}

// Classification is a soft label for a file or record. Confidence is a score,
// not a gate; consumers pick their own thresholds.
type Classification struct {
	SourceSystem SourceSystem `json:"source_system" yaml:"source_system"`
	ContentType  ContentType  `json:"content_type" yaml:"content_type"`
	Confidence   float64      `json:"confidence" yaml:"confidence"`
	Evidence     []string     `json:"evidence" yaml:"evidence"`
	// Atomic marks files whose whole content is a single record.
	Atomic bool `json:"atomic,omitempty" yaml:"atomic,omitempty"`
}

// Unclassified is the terminal classification returned when no signal matches.
func Unclassified() Classification {
	return Classification{
		SourceSystem: SourceUnknown,
		ContentType:  ContentUnknown,
		Confidence:   0,
		Evidence:     []string{},
	}
}

// WithEvidence returns a copy of c with extra evidence appended.
func (c Classification) WithEvidence(evidence ...string) Classification {
	out := c
	out.Evidence = make([]string, 0, len(c.Evidence)+len(evidence))
	out.Evidence = append(out.Evidence, c.Evidence...)
	out.Evidence = append(out.Evidence, evidence...)
	return out
}

// Downgrade returns a copy of c marked as unknown content with zero confidence.
// The source system and prior evidence are kept so the decision stays auditable.
func (c Classification) Downgrade(reason string) Classification {
	out := c.WithEvidence(reason)
	out.ContentType = ContentUnknown
	out.Confidence = 0
	return out
}

// IsUnknown reports whether nothing useful is known about the content.
func (c Classification) IsUnknown() bool {
	return c.ContentType == ContentUnknown
}
