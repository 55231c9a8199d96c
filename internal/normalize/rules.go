// SPDX-License-Identifier: Apache-2.0

package normalize

import (
	"github.com/omegaparse/omegaparse/internal/schema"
)

// Kind is the value type a field rule produces.
type Kind int

const (
	// KindString keeps scalars as parsed (text, JSON numbers, booleans).
	// Objects and arrays do not match.
	KindString Kind = iota
	// KindNumber accepts JSON numbers and numeric strings.
	KindNumber
	// KindTimestamp parses with the rule set's time parser and renders RFC 3339 UTC.
	KindTimestamp
)

// FieldRule maps a canonical field onto an ordered list of payload paths.
// The first path that resolves wins.
type FieldRule struct {
	Field string
	Paths []string
	Kind  Kind
}

// RuleSet is the mapping used for one (source, content) pair.
type RuleSet struct {
	Fields    []FieldRule
	Channel   []string
	Timestamp []string
	Time      TimeParser
}

// Key selects a rule set.
type Key struct {
	Source  schema.SourceSystem
	Content schema.ContentType
}

// Table holds the rule sets. Lookups fall back from (source, content) to
// (source, unknown) and then (unknown, unknown).
type Table map[Key]RuleSet

// Lookup returns the most specific rule set for the pair.
func (t Table) Lookup(source schema.SourceSystem, content schema.ContentType) (RuleSet, Key) {
	for _, k := range []Key{
		{source, content},
		{source, schema.ContentUnknown},
		{schema.SourceUnknown, schema.ContentUnknown},
	} {
		if rs, ok := t[k]; ok {
			return rs, k
		}
	}
	return RuleSet{}, Key{schema.SourceUnknown, schema.ContentUnknown}
}

var (
	genericTimestamp = []string{"timestamp", "time", "date", "created_at", "createdAt", "create_time"}
	genericChannel   = []string{"channel", "channel name", "channelName", "artist"}

	takeoutChannel = []string{"subtitles.0.name", "channel"}
)

func takeoutActivity(extra ...FieldRule) RuleSet {
	fields := []FieldRule{
		{Field: "title", Paths: []string{"title"}},
		{Field: "header", Paths: []string{"header"}},
		{Field: "url", Paths: []string{"titleUrl"}},
		{Field: "channel_url", Paths: []string{"subtitles.0.url", "channelUrl"}},
		{Field: "description", Paths: []string{"description"}},
	}
	return RuleSet{
		Fields:    append(fields, extra...),
		Channel:   takeoutChannel,
		Timestamp: []string{"time"},
		Time:      TakeoutTime,
	}
}

func genericRecord(text ...string) RuleSet {
	return RuleSet{
		Fields: []FieldRule{
			{Field: "id", Paths: []string{"id", "ID", "message_id"}},
			{Field: "title", Paths: []string{"title", "subject", "name"}},
			{Field: "author", Paths: []string{"author", "user", "sender", "from", "username"}},
			{Field: "text", Paths: text},
			{Field: "url", Paths: []string{"url", "link", "href"}},
		},
		Channel:   genericChannel,
		Timestamp: genericTimestamp,
		Time:      GenericTime,
	}
}

// DefaultTable is the built-in mapping for every supported export.
func DefaultTable() Table {
	openaiMessage := RuleSet{
		Fields: []FieldRule{
			{Field: "title", Paths: []string{"title"}},
			{Field: "conversation_id", Paths: []string{"conversation_id", "id"}},
			{Field: "author", Paths: []string{"author.role", "message.author.role"}},
			{Field: "text", Paths: []string{"content.parts.0", "message.content.parts.0", "content", "text"}},
			{Field: "model", Paths: []string{"default_model_slug", "metadata.model_slug", "message.metadata.model_slug"}},
			{Field: "updated_at", Paths: []string{"update_time"}, Kind: KindTimestamp},
		},
		Timestamp: []string{"create_time", "message.create_time", "update_time"},
		Time:      EpochTime,
	}
	openaiFeedback := RuleSet{
		Fields: []FieldRule{
			{Field: "conversation_id", Paths: []string{"conversation_id"}},
			{Field: "rating", Paths: []string{"rating"}},
			{Field: "text", Paths: []string{"text", "content"}},
		},
		Timestamp: []string{"create_time"},
		Time:      EpochTime,
	}

	text := []string{"text", "message", "body", "content", "comment"}
	return Table{
		{schema.SourceOpenAI, schema.ContentMessage}: openaiMessage,
		{schema.SourceOpenAI, schema.ContentComment}: openaiFeedback,
		{schema.SourceOpenAI, schema.ContentUnknown}: openaiMessage,

		{schema.SourceYouTubeTakeout, schema.ContentVideo}:  takeoutActivity(),
		{schema.SourceYouTubeTakeout, schema.ContentSearch}: takeoutActivity(),
		{schema.SourceYouTubeTakeout, schema.ContentChannel}: {
			Fields: []FieldRule{
				{Field: "channel_id", Paths: []string{"Channel Id"}},
				{Field: "title", Paths: []string{"Channel Title", "title"}},
				{Field: "url", Paths: []string{"Channel Url", "titleUrl"}},
			},
			Channel:   []string{"Channel Title", "subtitles.0.name", "channel"},
			Timestamp: []string{"time"},
			Time:      TakeoutTime,
		},
		{schema.SourceYouTubeTakeout, schema.ContentComment}: {
			Fields: []FieldRule{
				{Field: "comment_id", Paths: []string{"Comment ID"}},
				{Field: "video_id", Paths: []string{"Video ID"}},
				{Field: "channel_id", Paths: []string{"Channel ID"}},
				{Field: "text", Paths: []string{"Comment Text"}},
				{Field: "title", Paths: []string{"title"}},
				{Field: "url", Paths: []string{"titleUrl"}},
				{Field: "price", Paths: []string{"Price"}, Kind: KindNumber},
			},
			Channel:   takeoutChannel,
			Timestamp: []string{"Comment Create Timestamp", "time"},
			Time:      TakeoutTime,
		},
		{schema.SourceYouTubeTakeout, schema.ContentUnknown}: takeoutActivity(),

		{schema.SourceGenericCSV, schema.ContentUnknown}:  genericRecord(text...),
		{schema.SourceGenericJSON, schema.ContentUnknown}: genericRecord(text...),
		{schema.SourceGenericText, schema.ContentUnknown}: {
			Fields: []FieldRule{{Field: "text", Paths: []string{schema.WholeText}}},
			Time:   GenericTime,
		},
		{schema.SourceUnknown, schema.ContentUnknown}: genericRecord(append(text, schema.WholeText)...),
	}
}
