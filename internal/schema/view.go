// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"strconv"
	"strings"
)

// WholeText is the lookup path that addresses an entire text payload.
const WholeText = "$"

// View is a decoded, read-only window over a payload used for field lookups.
// Paths are dot-separated; numeric segments index arrays ("subtitles.0.name").
// CSV rows are addressed by header name, exact match first, then ignoring case.
type View struct {
	kind PayloadKind
	root any
	row  Row
	text string
}

// NewView decodes p once. Payloads that fail to decode yield an empty view.
func NewView(p Payload) View {
	v := View{kind: p.Kind()}
	switch v.kind {
	case PayloadJSON:
		root, err := p.Decode()
		if err == nil {
			v.root = root
		}
	case PayloadRow:
		v.row = p.row
	case PayloadText:
		v.text = p.text
	}
	return v
}

// Lookup resolves path. Present-but-null JSON values count as absent.
func (v View) Lookup(path string) (any, bool) {
	switch v.kind {
	case PayloadText:
		if path == WholeText {
			return v.text, true
		}
		return nil, false
	case PayloadRow:
		if val, ok := v.row.Get(path); ok {
			return val, true
		}
		for _, f := range v.row {
			if strings.EqualFold(f.Name, path) {
				return f.Value, true
			}
		}
		return nil, false
	case PayloadJSON:
		cur := v.root
		for _, seg := range strings.Split(path, ".") {
			switch node := cur.(type) {
			case map[string]any:
				next, ok := node[seg]
				if !ok {
					return nil, false
				}
				cur = next
			case []any:
				i, err := strconv.Atoi(seg)
				if err != nil || i < 0 || i >= len(node) {
					return nil, false
				}
				cur = node[i]
			default:
				return nil, false
			}
		}
		if cur == nil {
			return nil, false
		}
		return cur, true
	default:
		return nil, false
	}
}

// Has reports whether path resolves to a non-null value.
func (v View) Has(path string) bool {
	_, ok := v.Lookup(path)
	return ok
}

// String resolves path to a scalar rendered as text. Objects and arrays are
// not strings and report false.
func (v View) String(path string) (string, bool) {
	val, ok := v.Lookup(path)
	if !ok {
		return "", false
	}
	switch t := val.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
