// SPDX-License-Identifier: Apache-2.0

// Package normalize maps raw records onto the canonical event schema using
// declarative field tables.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// Normalizer resolves canonical fields from raw records.
type Normalizer struct {
	table Table
}

// New creates a Normalizer over table; nil means DefaultTable.
func New(table Table) *Normalizer {
	if table == nil {
		table = DefaultTable()
	}
	return &Normalizer{table: table}
}

// Normalize builds the event for one record. It never fails: paths that do
// not resolve, or resolve to values of the wrong kind, leave the field unset.
func (n *Normalizer) Normalize(cls schema.Classification, raw schema.RawRecord) schema.Event {
	return n.NormalizeView(cls, raw, schema.NewView(raw.Payload))
}

// NormalizeView is Normalize with a view the caller already decoded.
func (n *Normalizer) NormalizeView(cls schema.Classification, raw schema.RawRecord, view schema.View) schema.Event {
	rules, _ := n.table.Lookup(cls.SourceSystem, cls.ContentType)

	evt := schema.Event{
		ID:           schema.EventID(raw.SourceFile, raw.RecordIndex, raw.Payload),
		SourceFile:   raw.SourceFile,
		RecordIndex:  raw.RecordIndex,
		SourceSystem: cls.SourceSystem,
		ContentType:  cls.ContentType,
		Fields:       make(map[string]any),
		Confidence:   cls.Confidence,
		Evidence:     append([]string{}, cls.Evidence...),
		Raw:          raw.Payload,
	}

	for _, rule := range rules.Fields {
		if v, ok := resolve(view, rule.Paths, rule.Kind, rules.Time); ok {
			evt.Fields[rule.Field] = v
		}
	}
	if v, ok := resolve(view, rules.Channel, KindString, nil); ok {
		if ch := channelName(v); ch != "" {
			evt.Channel = &ch
		}
	}
	if rules.Time != nil {
		for _, p := range rules.Timestamp {
			val, ok := view.Lookup(p)
			if !ok {
				continue
			}
			// the first present path decides; a bad value is not retried elsewhere
			if t, ok := rules.Time(val); ok {
				evt.Timestamp = &t
			}
			break
		}
	}
	return evt
}

// resolve returns the value of the first path present in view. A present
// value of the wrong kind stops the search so a lower-priority alias never
// shadows what the record actually says.
func resolve(view schema.View, paths []string, kind Kind, parse TimeParser) (any, bool) {
	for _, p := range paths {
		val, ok := view.Lookup(p)
		if !ok {
			continue
		}
		switch kind {
		case KindNumber:
			return toNumber(val)
		case KindTimestamp:
			if parse == nil {
				return nil, false
			}
			t, ok := parse(val)
			if !ok {
				return nil, false
			}
			return t.Format(time.RFC3339Nano), true
		default:
			return toString(val)
		}
	}
	return nil, false
}

// toString accepts scalar values and keeps them as parsed: JSON numbers
// become int64 or float64 and booleans stay booleans. CSV cells and text are
// always strings already.
func toString(v any) (any, bool) {
	switch t := v.(type) {
	case string, bool:
		return t, true
	case json.Number:
		return toNumber(t)
	default:
		return nil, false
	}
}

// channelName renders a resolved channel value as a grouping key.
func channelName(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func toNumber(v any) (any, bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return nil, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f, true
	}
	return nil, false
}
