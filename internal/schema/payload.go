// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/goccy/go-yaml"
)

// PayloadKind identifies how a record's original content is represented.
type PayloadKind string

const (
	PayloadJSON PayloadKind = "json"
	PayloadRow  PayloadKind = "row"
	PayloadText PayloadKind = "text"
	PayloadFile PayloadKind = "file"
	PayloadNone PayloadKind = "none"
)

// Field is one CSV cell keyed by its header name.
type Field struct {
	Name  string
	Value string
}

// Row is a CSV row in header order. Names are unique within a row.
type Row []Field

// Get returns the first value whose header matches name exactly.
func (r Row) Get(name string) (string, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// MarshalJSON renders the row as an object with keys in header order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FileRef stands in for content the pipeline does not parse (media, archives,
// binaries). It is the payload; the bytes themselves are never copied.
type FileRef struct {
	Path string `json:"path" yaml:"path"`
	Size int64  `json:"size" yaml:"size"`
	MIME string `json:"mime" yaml:"mime"`
}

// Payload is the original content of a record. It is immutable: constructors
// copy their input and accessors hand out copies.
type Payload struct {
	kind PayloadKind
	raw  []byte
	row  Row
	text string
	file FileRef
}

// JSONPayload wraps the verbatim bytes of one JSON value.
func JSONPayload(raw []byte) Payload {
	return Payload{kind: PayloadJSON, raw: bytes.Clone(raw)}
}

// RowPayload wraps a CSV row.
func RowPayload(row Row) Payload {
	cp := make(Row, len(row))
	copy(cp, row)
	return Payload{kind: PayloadRow, row: cp}
}

// TextPayload wraps a line or a whole text document.
func TextPayload(text string) Payload {
	return Payload{kind: PayloadText, text: text}
}

// FilePayload wraps a reference to an unparsed file.
func FilePayload(ref FileRef) Payload {
	return Payload{kind: PayloadFile, file: ref}
}

// NoPayload is used for placeholders of files that could not be read.
func NoPayload() Payload {
	return Payload{kind: PayloadNone}
}

func (p Payload) Kind() PayloadKind {
	if p.kind == "" {
		return PayloadNone
	}
	return p.kind
}

// JSON returns a copy of the verbatim JSON bytes, or nil for other kinds.
func (p Payload) JSON() []byte {
	if p.kind != PayloadJSON {
		return nil
	}
	return bytes.Clone(p.raw)
}

// Row returns a copy of the CSV row, or nil for other kinds.
func (p Payload) Row() Row {
	if p.kind != PayloadRow {
		return nil
	}
	cp := make(Row, len(p.row))
	copy(cp, p.row)
	return cp
}

// Text returns the text content, or "" for other kinds.
func (p Payload) Text() string {
	return p.text
}

// File returns the file reference for PayloadFile payloads.
func (p Payload) File() (FileRef, bool) {
	return p.file, p.kind == PayloadFile
}

// Canonical returns the bytes that identify the payload. Kinds are prefixed so
// a text line never collides with a JSON string of the same spelling.
func (p Payload) Canonical() []byte {
	var buf bytes.Buffer
	buf.WriteString(string(p.Kind()))
	buf.WriteByte(0)
	switch p.Kind() {
	case PayloadJSON:
		buf.Write(p.raw)
	case PayloadRow:
		b, _ := p.row.MarshalJSON()
		buf.Write(b)
	case PayloadText:
		buf.WriteString(p.text)
	case PayloadFile:
		buf.WriteString(p.file.Path)
		buf.WriteByte(0)
		buf.WriteString(strconv.FormatInt(p.file.Size, 10))
	}
	return buf.Bytes()
}

// Equal reports whether two payloads carry identical content.
func (p Payload) Equal(other Payload) bool {
	return bytes.Equal(p.Canonical(), other.Canonical())
}

// Decode unmarshals a JSON payload with numbers kept as json.Number.
func (p Payload) Decode() (any, error) {
	if p.kind != PayloadJSON {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(p.raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// MarshalJSON writes JSON payloads back verbatim so raw output round-trips.
func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.Kind() {
	case PayloadJSON:
		var buf bytes.Buffer
		if err := json.Compact(&buf, p.raw); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case PayloadRow:
		return p.row.MarshalJSON()
	case PayloadText:
		return json.Marshal(p.text)
	case PayloadFile:
		return json.Marshal(p.file)
	default:
		return []byte("null"), nil
	}
}

// MarshalYAML renders the payload as a YAML value, keeping CSV column order.
func (p Payload) MarshalYAML() (any, error) {
	switch p.Kind() {
	case PayloadJSON:
		v, err := p.Decode()
		if err != nil {
			return nil, err
		}
		return plainNumbers(v), nil
	case PayloadRow:
		out := make(yaml.MapSlice, 0, len(p.row))
		for _, f := range p.row {
			out = append(out, yaml.MapItem{Key: f.Name, Value: f.Value})
		}
		return out, nil
	case PayloadText:
		return p.text, nil
	case PayloadFile:
		return p.file, nil
	default:
		return nil, nil
	}
}

// plainNumbers swaps json.Number for int64 or float64 so YAML emits bare scalars.
func plainNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, val := range t {
			t[k] = plainNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = plainNumbers(val)
		}
		return t
	default:
		return v
	}
}
