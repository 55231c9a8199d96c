// SPDX-License-Identifier: Apache-2.0

package detect

import (
	"strings"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// RecordRule refines the inherited file classification for one record.
// AppliesTo limits the rule to files of those sources; Source, when set,
// also reassigns the source system.
type RecordRule struct {
	Evidence  string
	AppliesTo []schema.SourceSystem
	Source    schema.SourceSystem
	Content   schema.ContentType
	Weight    float64
	Match     func(RecordView) bool
}

// RecordView is the read-only surface record rules inspect.
type RecordView interface {
	String(key string) (string, bool)
	Has(key string) bool
}

func titlePrefix(prefix string) func(RecordView) bool {
	return func(v RecordView) bool {
		title, ok := v.String("title")
		return ok && strings.HasPrefix(title, prefix)
	}
}

func chatMessage(v RecordView) bool {
	return v.Has("author.role") && v.Has("content")
}

// DefaultRecordRules are evaluated in order; the first match wins.
func DefaultRecordRules() []RecordRule {
	takeout := []schema.SourceSystem{schema.SourceYouTubeTakeout}
	return []RecordRule{
		{Evidence: "record title starts with 'Watched '", AppliesTo: takeout, Content: schema.ContentVideo, Weight: 0.1, Match: titlePrefix("Watched ")},
		{Evidence: "record title starts with 'Searched for '", AppliesTo: takeout, Content: schema.ContentSearch, Weight: 0.1, Match: titlePrefix("Searched for ")},
		{Evidence: "record title starts with 'Subscribed to '", AppliesTo: takeout, Content: schema.ContentChannel, Weight: 0.1, Match: titlePrefix("Subscribed to ")},
		{Evidence: "record title starts with 'Commented on '", AppliesTo: takeout, Content: schema.ContentComment, Weight: 0.1, Match: titlePrefix("Commented on ")},
		{Evidence: "record is a chat message (author.role+content)", AppliesTo: []schema.SourceSystem{schema.SourceOpenAI, schema.SourceGenericJSON, schema.SourceUnknown}, Source: schema.SourceOpenAI, Content: schema.ContentMessage, Weight: 0.3, Match: chatMessage},
	}
}

// RecordClassifier applies record rules on top of file classifications.
type RecordClassifier struct {
	rules []RecordRule
}

// NewRecordClassifier creates a classifier over rules; nil means the defaults.
func NewRecordClassifier(rules []RecordRule) *RecordClassifier {
	if rules == nil {
		rules = DefaultRecordRules()
	}
	return &RecordClassifier{rules: rules}
}

// Refine returns the record's classification. Without a matching rule the
// file classification is returned unchanged.
func (rc *RecordClassifier) Refine(file schema.Classification, view RecordView) schema.Classification {
	if view == nil {
		return file
	}
	for _, rule := range rc.rules {
		if !appliesTo(rule.AppliesTo, file.SourceSystem) || !rule.Match(view) {
			continue
		}
		out := file.WithEvidence(rule.Evidence)
		if rule.Source != "" {
			out.SourceSystem = rule.Source
		}
		out.ContentType = rule.Content
		out.Confidence = roundScore(file.Confidence + rule.Weight)
		return out
	}
	return file
}

func appliesTo(sources []schema.SourceSystem, src schema.SourceSystem) bool {
	if len(sources) == 0 {
		return true
	}
	for _, s := range sources {
		if s == src {
			return true
		}
	}
	return false
}
