// SPDX-License-Identifier: Apache-2.0

package detect

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// Specificity ranks how strongly a kind of signal identifies a source.
// Higher values beat lower ones regardless of accumulated weight.
type Specificity int

const (
	SpecExtension Specificity = iota + 1
	SpecNaming
	SpecManifest
	SpecStructural
)

func (s Specificity) String() string {
	switch s {
	case SpecExtension:
		return "extension"
	case SpecNaming:
		return "naming"
	case SpecManifest:
		return "manifest"
	case SpecStructural:
		return "structural"
	default:
		return "none"
	}
}

// Signal is one row of the detection cascade. A signal with an empty Content
// backs its Source without choosing a content type.
type Signal struct {
	Evidence     string
	Source       schema.SourceSystem
	Content      schema.ContentType
	Weight       float64
	Specificity  Specificity
	ShortCircuit bool
	Atomic       bool
	Match        func(*Sample) bool
}

func nameIs(names ...string) func(*Sample) bool {
	return func(s *Sample) bool {
		for _, n := range names {
			if s.Name == n {
				return true
			}
		}
		return false
	}
}

func pathContains(parts ...string) func(*Sample) bool {
	return func(s *Sample) bool {
		for _, p := range parts {
			if strings.Contains(s.Path, p) {
				return true
			}
		}
		return false
	}
}

func extIs(exts ...string) func(*Sample) bool {
	return func(s *Sample) bool {
		for _, e := range exts {
			if s.Ext == e {
				return true
			}
		}
		return false
	}
}

func jsonKeys(keys ...string) func(*Sample) bool {
	return func(s *Sample) bool { return s.HasKeys(keys...) }
}

func jsonKeyEquals(key, want string) func(*Sample) bool {
	return func(s *Sample) bool {
		v, ok := s.StringKey(key)
		return ok && v == want
	}
}

func jsonAnyKey(keys ...string) func(*Sample) bool {
	return func(s *Sample) bool {
		for _, k := range keys {
			if s.HasKeys(k) {
				return true
			}
		}
		return false
	}
}

// openAIMessage matches a bare chat message: an author object with a role
// next to a content object.
func openAIMessage(s *Sample) bool {
	if !s.HasKeys("author", "content") {
		return false
	}
	var author struct {
		Role *string `json:"role"`
	}
	if err := json.Unmarshal(s.JSONKeys["author"], &author); err != nil {
		return false
	}
	return author.Role != nil
}

func productsContain(product string) func(*Sample) bool {
	return func(s *Sample) bool {
		var products []string
		if err := json.Unmarshal(s.JSONKeys["products"], &products); err != nil {
			return false
		}
		for _, p := range products {
			if p == product {
				return true
			}
		}
		return false
	}
}

func csvHeader(names ...string) func(*Sample) bool {
	return func(s *Sample) bool { return s.HeaderHas(names...) }
}

func csvTextColumn(s *Sample) bool {
	for _, name := range []string{"text", "message", "body", "content", "comment"} {
		if s.HeaderHas(name) {
			return true
		}
	}
	return false
}

func takeoutHTML(s *Sample) bool {
	return (s.Ext == "html" || s.Ext == "htm") &&
		bytes.Contains(s.Prefix, []byte("outer-cell")) &&
		bytes.Contains(s.Prefix, []byte("mdl-grid"))
}

func mimeIs(prefix string) func(*Sample) bool {
	return func(s *Sample) bool { return strings.HasPrefix(s.MIME, prefix) }
}

// DefaultSignals is the cascade in evaluation order: manifests first, then
// structure, naming, and finally extensions. Adding a source means adding rows.
func DefaultSignals() []Signal {
	return []Signal{
		// export manifests
		{Evidence: "filename is conversations.json", Source: schema.SourceOpenAI, Content: schema.ContentMessage, Weight: 0.9, Specificity: SpecManifest, ShortCircuit: true, Match: nameIs("conversations.json")},
		{Evidence: "filename is shared_conversations.json", Source: schema.SourceOpenAI, Content: schema.ContentMessage, Weight: 0.8, Specificity: SpecManifest, ShortCircuit: true, Match: nameIs("shared_conversations.json")},
		{Evidence: "filename is message_feedback.json", Source: schema.SourceOpenAI, Content: schema.ContentComment, Weight: 0.8, Specificity: SpecManifest, ShortCircuit: true, Match: nameIs("message_feedback.json")},

		// JSON structure
		{Evidence: "json keys mapping+create_time", Source: schema.SourceOpenAI, Content: schema.ContentMessage, Weight: 0.6, Specificity: SpecStructural, Match: jsonKeys("mapping", "create_time")},
		{Evidence: "json keys author.role+content", Source: schema.SourceOpenAI, Content: schema.ContentMessage, Weight: 0.5, Specificity: SpecStructural, Match: openAIMessage},
		{Evidence: "json keys header+title+time", Source: schema.SourceYouTubeTakeout, Content: schema.ContentVideo, Weight: 0.4, Specificity: SpecStructural, Match: jsonKeys("header", "title", "time")},
		{Evidence: "json keys title+time", Source: schema.SourceYouTubeTakeout, Content: schema.ContentVideo, Weight: 0.3, Specificity: SpecStructural, Match: jsonKeys("title", "time")},
		{Evidence: "json key 'titleUrl' present", Source: schema.SourceYouTubeTakeout, Weight: 0.2, Specificity: SpecStructural, Match: jsonKeys("titleUrl")},
		{Evidence: `json key 'header' == "YouTube"`, Source: schema.SourceYouTubeTakeout, Weight: 0.2, Specificity: SpecStructural, Match: jsonKeyEquals("header", "YouTube")},
		{Evidence: `json key 'header' == "YouTube Music"`, Source: schema.SourceYouTubeTakeout, Weight: 0.2, Specificity: SpecStructural, Match: jsonKeyEquals("header", "YouTube Music")},
		{Evidence: "json key 'products' contains YouTube", Source: schema.SourceYouTubeTakeout, Weight: 0.1, Specificity: SpecStructural, Match: productsContain("YouTube")},
		{Evidence: "json keys text/message/body", Source: schema.SourceGenericJSON, Content: schema.ContentMessage, Weight: 0.4, Specificity: SpecStructural, Match: jsonAnyKey("text", "message", "body")},

		// CSV structure
		{Evidence: "csv header Channel Id+Channel Title", Source: schema.SourceYouTubeTakeout, Content: schema.ContentChannel, Weight: 0.7, Specificity: SpecStructural, Match: csvHeader("Channel Id", "Channel Title")},
		{Evidence: "csv header Comment ID+Comment Text", Source: schema.SourceYouTubeTakeout, Content: schema.ContentComment, Weight: 0.7, Specificity: SpecStructural, Match: csvHeader("Comment ID", "Comment Text")},
		{Evidence: "csv header has a text column", Source: schema.SourceGenericCSV, Content: schema.ContentMessage, Weight: 0.4, Specificity: SpecStructural, Match: csvTextColumn},

		// HTML structure
		{Evidence: "html activity cells (outer-cell)", Source: schema.SourceYouTubeTakeout, Weight: 0.3, Specificity: SpecStructural, Match: takeoutHTML},

		// naming conventions
		{Evidence: "path contains 'watch-history'", Source: schema.SourceYouTubeTakeout, Content: schema.ContentVideo, Weight: 0.5, Specificity: SpecNaming, Match: pathContains("watch-history")},
		{Evidence: "path contains 'search-history'", Source: schema.SourceYouTubeTakeout, Content: schema.ContentSearch, Weight: 0.5, Specificity: SpecNaming, Match: pathContains("search-history")},
		{Evidence: "path contains 'subscriptions'", Source: schema.SourceYouTubeTakeout, Content: schema.ContentChannel, Weight: 0.5, Specificity: SpecNaming, Match: pathContains("subscriptions")},
		{Evidence: "path contains 'comments'", Source: schema.SourceYouTubeTakeout, Content: schema.ContentComment, Weight: 0.4, Specificity: SpecNaming, Match: pathContains("comments")},
		{Evidence: "path contains 'takeout/youtube'", Source: schema.SourceYouTubeTakeout, Weight: 0.2, Specificity: SpecNaming, Match: pathContains("takeout/youtube")},
		{Evidence: "path contains 'chatgpt' or 'openai'", Source: schema.SourceOpenAI, Weight: 0.2, Specificity: SpecNaming, Match: pathContains("chatgpt", "openai")},

		// extensions and sniffed MIME types
		{Evidence: "extension .json", Source: schema.SourceGenericJSON, Weight: 0.2, Specificity: SpecExtension, Match: extIs("json")},
		{Evidence: "extension .csv", Source: schema.SourceGenericCSV, Weight: 0.2, Specificity: SpecExtension, Match: extIs("csv", "tsv")},
		{Evidence: "extension .txt", Source: schema.SourceGenericText, Weight: 0.2, Specificity: SpecExtension, Match: extIs("txt", "log")},
		{Evidence: "extension .md", Source: schema.SourceGenericText, Weight: 0.2, Specificity: SpecExtension, Atomic: true, Match: extIs("md", "markdown")},
		{Evidence: "extension .html", Source: schema.SourceGenericText, Weight: 0.1, Specificity: SpecExtension, Atomic: true, Match: extIs("html", "htm")},
		{Evidence: "mime application/json", Source: schema.SourceGenericJSON, Weight: 0.1, Specificity: SpecExtension, Match: mimeIs("application/json")},
		{Evidence: "mime text/csv", Source: schema.SourceGenericCSV, Weight: 0.1, Specificity: SpecExtension, Match: mimeIs("text/csv")},
	}
}
