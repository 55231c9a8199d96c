// SPDX-License-Identifier: Apache-2.0

package normalize_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegaparse/omegaparse/internal/normalize"
	"github.com/omegaparse/omegaparse/internal/schema"
)

func classification(source schema.SourceSystem, content schema.ContentType) schema.Classification {
	return schema.Classification{SourceSystem: source, ContentType: content, Confidence: 0.8, Evidence: []string{"test"}}
}

func jsonRecord(file string, index int, body string) schema.RawRecord {
	return schema.RawRecord{SourceFile: file, RecordIndex: index, Payload: schema.JSONPayload([]byte(body))}
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func TestNormalize_WatchHistory(t *testing.T) {
	raw := jsonRecord("Takeout/YouTube/history/watch-history.json", 0, `{"title":"Video A","time":"2023-01-01T00:00:00Z"}`)
	evt := normalize.New(nil).Normalize(classification(schema.SourceYouTubeTakeout, schema.ContentVideo), raw)

	assert.Equal(t, schema.SourceYouTubeTakeout, evt.SourceSystem)
	assert.Equal(t, schema.ContentVideo, evt.ContentType)
	require.NotNil(t, evt.Timestamp)
	assert.Equal(t, "2023-01-01T00:00:00Z", evt.Timestamp.Format(time.RFC3339))
	assert.Equal(t, map[string]any{"title": "Video A"}, evt.Fields)
	assert.Nil(t, evt.Channel)
	assert.Equal(t, schema.EventID(raw.SourceFile, 0, raw.Payload), evt.ID)
	assert.True(t, evt.Raw.Equal(raw.Payload))
	assert.Equal(t, []string{"test"}, evt.Evidence)
}

func TestNormalize_CSVRow(t *testing.T) {
	raw := schema.RawRecord{
		SourceFile: "data.csv",
		Payload:    schema.RowPayload(schema.Row{{Name: "id", Value: "1"}, {Name: "text", Value: "hello"}}),
	}
	evt := normalize.New(nil).Normalize(classification(schema.SourceGenericCSV, schema.ContentMessage), raw)

	assert.Equal(t, map[string]any{"id": "1", "text": "hello"}, evt.Fields)
	assert.Nil(t, evt.Timestamp)
}

func TestNormalize_TakeoutChannel(t *testing.T) {
	raw := jsonRecord("watch-history.json", 3, `{
		"header": "YouTube",
		"title": "Watched Video B",
		"titleUrl": "https://www.youtube.com/watch?v=b",
		"subtitles": [{"name": "Channel Two", "url": "https://www.youtube.com/channel/UC2"}],
		"time": "2023-02-01T10:00:00.123Z"
	}`)
	evt := normalize.New(nil).Normalize(classification(schema.SourceYouTubeTakeout, schema.ContentVideo), raw)

	require.NotNil(t, evt.Channel)
	assert.Equal(t, "Channel Two", *evt.Channel)
	assert.Equal(t, "https://www.youtube.com/channel/UC2", evt.Fields["channel_url"])
	assert.Equal(t, "https://www.youtube.com/watch?v=b", evt.Fields["url"])
	assert.Equal(t, "YouTube", evt.Fields["header"])
	require.NotNil(t, evt.Timestamp)
	assert.Equal(t, "2023-02-01T10:00:00.123Z", evt.Timestamp.Format(time.RFC3339Nano))
}

func TestNormalize_TakeoutHTMLRow(t *testing.T) {
	raw := schema.RawRecord{SourceFile: "watch-history.html", Payload: schema.RowPayload(schema.Row{
		{Name: "title", Value: "Watched Video A"},
		{Name: "channel", Value: "Channel One"},
		{Name: "time", Value: "Jan 1, 2023, 12:00:00 AM PST"},
	})}
	evt := normalize.New(nil).Normalize(classification(schema.SourceYouTubeTakeout, schema.ContentVideo), raw)

	require.NotNil(t, evt.Channel)
	assert.Equal(t, "Channel One", *evt.Channel)
	require.NotNil(t, evt.Timestamp)
	assert.Equal(t, "2023-01-01T08:00:00Z", evt.Timestamp.Format(time.RFC3339Nano))
}

func TestNormalize_OpenAIConversation(t *testing.T) {
	raw := jsonRecord("conversations.json", 0, `{
		"title": "Go generics",
		"create_time": 1700000000.5,
		"update_time": 1700000100,
		"mapping": {},
		"conversation_id": "c-1",
		"default_model_slug": "gpt-4"
	}`)
	evt := normalize.New(nil).Normalize(classification(schema.SourceOpenAI, schema.ContentMessage), raw)

	assert.Equal(t, map[string]any{
		"title":           "Go generics",
		"conversation_id": "c-1",
		"model":           "gpt-4",
		"updated_at":      "2023-11-14T22:15:00Z",
	}, evt.Fields)
	require.NotNil(t, evt.Timestamp)
	assert.Equal(t, "2023-11-14T22:13:20.5Z", evt.Timestamp.Format(time.RFC3339Nano))
}

func TestNormalize_OpenAIMessageNode(t *testing.T) {
	raw := jsonRecord("dump.json", 1, `{"author":{"role":"assistant"},"content":{"parts":["hi there"]},"create_time":1672531200000}`)
	evt := normalize.New(nil).Normalize(classification(schema.SourceOpenAI, schema.ContentMessage), raw)

	assert.Equal(t, "assistant", evt.Fields["author"])
	assert.Equal(t, "hi there", evt.Fields["text"])
	require.NotNil(t, evt.Timestamp)
	assert.Equal(t, "2023-01-01T00:00:00Z", evt.Timestamp.Format(time.RFC3339Nano))
}

func TestNormalize_TakeoutComment(t *testing.T) {
	raw := schema.RawRecord{SourceFile: "comments.csv", Payload: schema.RowPayload(schema.Row{
		{Name: "Comment ID", Value: "Ugx1"},
		{Name: "Channel ID", Value: "UC9"},
		{Name: "Comment Create Timestamp", Value: "2023-03-04T05:06:07+00:00"},
		{Name: "Price", Value: "0"},
		{Name: "Video ID", Value: "v1"},
		{Name: "Comment Text", Value: "nice"},
	})}
	evt := normalize.New(nil).Normalize(classification(schema.SourceYouTubeTakeout, schema.ContentComment), raw)

	assert.Equal(t, map[string]any{
		"comment_id": "Ugx1",
		"channel_id": "UC9",
		"video_id":   "v1",
		"text":       "nice",
		"price":      int64(0),
	}, evt.Fields)
	require.NotNil(t, evt.Timestamp)
	assert.Equal(t, "2023-03-04T05:06:07Z", evt.Timestamp.Format(time.RFC3339Nano))
}

func TestNormalize_TextLine(t *testing.T) {
	raw := schema.RawRecord{SourceFile: "notes.txt", RecordIndex: 4, Payload: schema.TextPayload("remember the milk")}
	evt := normalize.New(nil).Normalize(classification(schema.SourceGenericText, schema.ContentUnknown), raw)
	assert.Equal(t, map[string]any{"text": "remember the milk"}, evt.Fields)
}

// ---------------------------------------------------------------------------
// No fabrication
// ---------------------------------------------------------------------------

func TestNormalize_NeverFabricates(t *testing.T) {
	tests := []struct {
		name       string
		cls        schema.Classification
		raw        schema.RawRecord
		wantFields map[string]any
		wantTime   bool
	}{
		{
			name:       "missing time",
			cls:        classification(schema.SourceYouTubeTakeout, schema.ContentVideo),
			raw:        jsonRecord("a.json", 0, `{"title":"Video A"}`),
			wantFields: map[string]any{"title": "Video A"},
		},
		{
			name:       "unparseable time",
			cls:        classification(schema.SourceYouTubeTakeout, schema.ContentVideo),
			raw:        jsonRecord("a.json", 0, `{"title":"Video A","time":"yesterday"}`),
			wantFields: map[string]any{"title": "Video A"},
		},
		{
			name:       "unknown zone abbreviation",
			cls:        classification(schema.SourceYouTubeTakeout, schema.ContentVideo),
			raw:        jsonRecord("a.json", 0, `{"time":"Jan 1, 2023, 12:00:00 AM XYZ"}`),
			wantFields: map[string]any{},
		},
		{
			name:       "null is absent",
			cls:        classification(schema.SourceYouTubeTakeout, schema.ContentVideo),
			raw:        jsonRecord("a.json", 0, `{"title":null,"time":null}`),
			wantFields: map[string]any{},
		},
		{
			name:       "empty string is present",
			cls:        classification(schema.SourceYouTubeTakeout, schema.ContentVideo),
			raw:        jsonRecord("a.json", 0, `{"title":""}`),
			wantFields: map[string]any{"title": ""},
		},
		{
			name:       "wrong kind stops alias search",
			cls:        classification(schema.SourceGenericJSON, schema.ContentMessage),
			raw:        jsonRecord("a.json", 0, `{"id":{"nested":1},"message_id":"m1"}`),
			wantFields: map[string]any{},
		},
		{
			name:       "malformed text record",
			cls:        schema.Unclassified(),
			raw:        schema.RawRecord{SourceFile: "bad.json", Payload: schema.TextPayload("not json")},
			wantFields: map[string]any{"text": "not json"},
		},
		{
			name:       "placeholder",
			cls:        schema.Unclassified(),
			raw:        schema.RawRecord{SourceFile: "gone.json", Payload: schema.NoPayload()},
			wantFields: map[string]any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := normalize.New(nil).Normalize(tt.cls, tt.raw)
			assert.Equal(t, tt.wantFields, evt.Fields)
			assert.Equal(t, tt.wantTime, evt.Timestamp != nil)
		})
	}
}

func TestNormalize_KeepsJSONScalarTypes(t *testing.T) {
	tests := []struct {
		name       string
		cls        schema.Classification
		raw        schema.RawRecord
		wantFields map[string]any
	}{
		{
			name:       "json integer and boolean",
			cls:        classification(schema.SourceGenericJSON, schema.ContentMessage),
			raw:        jsonRecord("a.json", 0, `{"id":5,"text":true}`),
			wantFields: map[string]any{"id": int64(5), "text": true},
		},
		{
			name:       "json float",
			cls:        classification(schema.SourceGenericJSON, schema.ContentMessage),
			raw:        jsonRecord("a.json", 0, `{"id":1.5,"text":"hi"}`),
			wantFields: map[string]any{"id": 1.5, "text": "hi"},
		},
		{
			name:       "csv cells stay strings",
			cls:        classification(schema.SourceGenericCSV, schema.ContentMessage),
			raw:        schema.RawRecord{SourceFile: "a.csv", Payload: schema.RowPayload(schema.Row{{Name: "id", Value: "5"}, {Name: "text", Value: "true"}})},
			wantFields: map[string]any{"id": "5", "text": "true"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := normalize.New(nil).Normalize(tt.cls, tt.raw)
			assert.Equal(t, tt.wantFields, evt.Fields)
		})
	}
}

func TestNormalize_NumericChannel(t *testing.T) {
	raw := jsonRecord("a.json", 0, `{"text":"hi","channel":42}`)
	evt := normalize.New(nil).Normalize(classification(schema.SourceGenericJSON, schema.ContentMessage), raw)
	require.NotNil(t, evt.Channel)
	assert.Equal(t, "42", *evt.Channel)
}

func TestNormalize_EmptyChannelIsAbsent(t *testing.T) {
	raw := jsonRecord("a.json", 0, `{"subtitles":[{"name":""}]}`)
	evt := normalize.New(nil).Normalize(classification(schema.SourceYouTubeTakeout, schema.ContentVideo), raw)
	assert.Nil(t, evt.Channel)
}

func TestNormalize_Deterministic(t *testing.T) {
	raw := jsonRecord("a.json", 7, `{"title":"x","time":"2023-01-01T00:00:00Z"}`)
	n := normalize.New(nil)
	cls := classification(schema.SourceYouTubeTakeout, schema.ContentVideo)
	first, err := json.Marshal(n.Normalize(cls, raw))
	require.NoError(t, err)
	second, err := json.Marshal(n.Normalize(cls, raw))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

// ---------------------------------------------------------------------------
// Rule tables
// ---------------------------------------------------------------------------

func TestTable_LookupFallback(t *testing.T) {
	table := normalize.DefaultTable()
	tests := []struct {
		source  schema.SourceSystem
		content schema.ContentType
		want    normalize.Key
	}{
		{schema.SourceYouTubeTakeout, schema.ContentVideo, normalize.Key{Source: schema.SourceYouTubeTakeout, Content: schema.ContentVideo}},
		{schema.SourceYouTubeTakeout, schema.ContentMessage, normalize.Key{Source: schema.SourceYouTubeTakeout, Content: schema.ContentUnknown}},
		{schema.SourceGenericCSV, schema.ContentMessage, normalize.Key{Source: schema.SourceGenericCSV, Content: schema.ContentUnknown}},
		{schema.SourceGenericText, schema.ContentComment, normalize.Key{Source: schema.SourceGenericText, Content: schema.ContentUnknown}},
		{schema.SourceUnknown, schema.ContentVideo, normalize.Key{Source: schema.SourceUnknown, Content: schema.ContentUnknown}},
	}
	for _, tt := range tests {
		t.Run(string(tt.source)+"/"+string(tt.content), func(t *testing.T) {
			_, got := table.Lookup(tt.source, tt.content)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTable_Custom(t *testing.T) {
	table := normalize.Table{
		{Source: schema.SourceUnknown, Content: schema.ContentUnknown}: {
			Fields: []normalize.FieldRule{{Field: "count", Paths: []string{"n"}, Kind: normalize.KindNumber}},
		},
	}
	evt := normalize.New(table).Normalize(schema.Unclassified(), jsonRecord("a.json", 0, `{"n":2.5,"time":"2023-01-01"}`))
	assert.Equal(t, map[string]any{"count": 2.5}, evt.Fields)
	assert.Nil(t, evt.Timestamp)
}

// ---------------------------------------------------------------------------
// Timestamps
// ---------------------------------------------------------------------------

func TestTimeParsers(t *testing.T) {
	tests := []struct {
		name   string
		parse  normalize.TimeParser
		in     any
		want   string
		wantOK bool
	}{
		{"takeout rfc3339", normalize.TakeoutTime, "2023-01-01T00:00:00Z", "2023-01-01T00:00:00Z", true},
		{"takeout offset", normalize.TakeoutTime, "2023-01-01T02:00:00+02:00", "2023-01-01T00:00:00Z", true},
		{"takeout textual", normalize.TakeoutTime, "Jan 1, 2023, 12:00:00 AM PST", "2023-01-01T08:00:00Z", true},
		{"takeout narrow space", normalize.TakeoutTime, "Jan 1, 2023, 12:00:00\u202fAM PST", "2023-01-01T08:00:00Z", true},
		{"takeout summer time", normalize.TakeoutTime, "Jul 4, 2023, 3:04:05 PM PDT", "2023-07-04T22:04:05Z", true},
		{"takeout gmt offset", normalize.TakeoutTime, "Jan 1, 2023, 12:00:00 AM GMT+01:00", "2022-12-31T23:00:00Z", true},
		{"takeout unknown zone", normalize.TakeoutTime, "Jan 1, 2023, 12:00:00 AM XYZ", "", false},
		{"takeout epoch rejected", normalize.TakeoutTime, json.Number("1672531200"), "", false},
		{"epoch seconds", normalize.EpochTime, json.Number("1672531200"), "2023-01-01T00:00:00Z", true},
		{"epoch fractional", normalize.EpochTime, json.Number("1672531200.25"), "2023-01-01T00:00:00.25Z", true},
		{"epoch millis", normalize.EpochTime, json.Number("1672531200000"), "2023-01-01T00:00:00Z", true},
		{"epoch string", normalize.EpochTime, "1672531200", "2023-01-01T00:00:00Z", true},
		{"epoch negative", normalize.EpochTime, json.Number("-1"), "", false},
		{"epoch garbage", normalize.EpochTime, "soon", "", false},
		{"generic datetime", normalize.GenericTime, "2023-01-01 10:00:00", "2023-01-01T10:00:00Z", true},
		{"generic iso no zone", normalize.GenericTime, "2023-01-01T10:00:00", "2023-01-01T10:00:00Z", true},
		{"generic date", normalize.GenericTime, "2023-01-01", "2023-01-01T00:00:00Z", true},
		{"generic epoch", normalize.GenericTime, json.Number("1672531200"), "2023-01-01T00:00:00Z", true},
		{"generic object", normalize.GenericTime, map[string]any{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.parse(tt.in)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got.Format(time.RFC3339Nano))
				assert.Equal(t, time.UTC, got.Location())
			}
		})
	}
}
