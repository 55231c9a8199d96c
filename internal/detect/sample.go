// SPDX-License-Identifier: Apache-2.0

package detect

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// Sample is the bounded view of a file that signals inspect. It is built once
// per file; nothing in it requires reading past the prefix.
type Sample struct {
	Path     string // lower-cased, slash-separated
	Name     string // lower-cased base name
	Ext      string
	Prefix   []byte
	Complete bool
	MIME     string

	// JSONShape is '[' or '{' when the prefix starts a JSON array or object.
	JSONShape byte
	// JSONKeys holds the top-level keys of the first object seen, with raw values.
	JSONKeys map[string]json.RawMessage
	// JSONErr is set when the prefix contains a syntax error.
	JSONErr error

	CSVHeader []string
}

func newSample(fd schema.FileDescriptor, prefix []byte, complete bool) *Sample {
	s := &Sample{
		Path:     strings.ToLower(fd.Path),
		Name:     strings.ToLower(fd.Name()),
		Ext:      fd.Ext(),
		Prefix:   prefix,
		Complete: complete,
		MIME:     mimetype.Detect(prefix).String(),
	}
	if looksLikeJSON(s) {
		s.inspectJSON()
	}
	if s.Ext == "csv" || s.Ext == "tsv" || strings.HasPrefix(s.MIME, "text/csv") {
		s.inspectCSV()
	}
	return s
}

// HasKeys reports whether every key is present in the first JSON object.
func (s *Sample) HasKeys(keys ...string) bool {
	if s.JSONKeys == nil {
		return false
	}
	for _, k := range keys {
		if _, ok := s.JSONKeys[k]; !ok {
			return false
		}
	}
	return true
}

// StringKey returns the string value of a top-level key of the first object.
func (s *Sample) StringKey(key string) (string, bool) {
	raw, ok := s.JSONKeys[key]
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

// HeaderHas reports whether the CSV header contains name, ignoring case.
func (s *Sample) HeaderHas(names ...string) bool {
	for _, name := range names {
		found := false
		for _, h := range s.CSVHeader {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// IsBinary reports whether the prefix does not look like text at all.
func (s *Sample) IsBinary() bool {
	return bytes.IndexByte(s.Prefix, 0) >= 0 && !strings.HasPrefix(s.MIME, "text/")
}

func looksLikeJSON(s *Sample) bool {
	if s.Ext == "json" {
		return true
	}
	trimmed := bytes.TrimSpace(s.Prefix)
	return len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{')
}

// inspectJSON walks the prefix token by token so a truncated file still
// yields the keys read before the cut.
func (s *Sample) inspectJSON() {
	dec := json.NewDecoder(bytes.NewReader(s.Prefix))
	tok, err := dec.Token()
	if err != nil {
		s.recordJSONErr(err)
		return
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		if s.Complete && !json.Valid(s.Prefix) {
			s.JSONErr = errors.New("trailing data after JSON value")
		}
		return
	}
	switch delim {
	case '[':
		s.JSONShape = '['
		if !dec.More() {
			break
		}
		tok, err = dec.Token()
		if err != nil {
			s.recordJSONErr(err)
			return
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			break
		}
		s.readObjectKeys(dec)
	case '{':
		s.JSONShape = '{'
		s.readObjectKeys(dec)
	}
	if s.JSONErr == nil && s.Complete && !json.Valid(s.Prefix) {
		s.JSONErr = errors.New("invalid JSON document")
	}
}

func (s *Sample) readObjectKeys(dec *json.Decoder) {
	s.JSONKeys = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			s.recordJSONErr(err)
			return
		}
		key, ok := tok.(string)
		if !ok {
			return
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			s.recordJSONErr(err)
			return
		}
		s.JSONKeys[key] = v
	}
}

// recordJSONErr ignores errors caused only by the prefix boundary.
func (s *Sample) recordJSONErr(err error) {
	if !s.Complete && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
		return
	}
	s.JSONErr = err
}

func (s *Sample) inspectCSV() {
	r := csv.NewReader(bytes.NewReader(s.Prefix))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if s.Ext == "tsv" {
		r.Comma = '\t'
	}
	header, err := r.Read()
	if err != nil {
		return
	}
	s.CSVHeader = header
}
