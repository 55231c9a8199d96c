// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// JSONExtractor splits JSON arrays into one record per element and treats a
// top-level object as a single record. Element bytes are kept verbatim.
type JSONExtractor struct{}

// NewJSONExtractor creates a new JSONExtractor.
func NewJSONExtractor() *JSONExtractor {
	return &JSONExtractor{}
}

func (x *JSONExtractor) Name() string {
	return "json"
}

func (x *JSONExtractor) CanHandle(fd schema.FileDescriptor, cls schema.Classification) bool {
	return fd.Ext() == "json" || (fd.Ext() == "" && cls.SourceSystem == schema.SourceGenericJSON)
}

// Extract validates the whole document in a streaming pass before yielding
// anything, so a syntax error late in a file cannot leave half its records
// emitted.
func (x *JSONExtractor) Extract(_ context.Context, fd schema.FileDescriptor, cls schema.Classification) (schema.Classification, iter.Seq2[schema.RawRecord, error], error) {
	shape, err := scanJSON(fd)
	if err != nil {
		var readErr *readError
		if errors.As(err, &readErr) {
			return cls, nil, readErr.err
		}
		return malformed(fd, cls, "json", err)
	}

	// the document already validated, so any failure here means the file
	// changed or became unreadable between passes
	records := func(yield func(schema.RawRecord, error) bool) {
		rc, err := fd.OpenText()
		if err != nil {
			yield(schema.RawRecord{}, err)
			return
		}
		defer rc.Close()
		dec := json.NewDecoder(rc)

		if shape == '{' {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				yield(schema.RawRecord{}, err)
				return
			}
			yield(schema.RawRecord{SourceFile: fd.Path, RecordIndex: 0, Payload: schema.JSONPayload(raw)}, nil)
			return
		}

		if _, err := dec.Token(); err != nil {
			yield(schema.RawRecord{}, err)
			return
		}
		for i := 0; dec.More(); i++ {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				yield(schema.RawRecord{}, err)
				return
			}
			if !yield(schema.RawRecord{SourceFile: fd.Path, RecordIndex: i, Payload: schema.JSONPayload(raw)}, nil) {
				return
			}
		}
	}
	return cls, records, nil
}

type readError struct{ err error }

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

// scanJSON checks the document is exactly one array or object and returns
// its opening delimiter. Scalars are the wrong shape for an export file.
func scanJSON(fd schema.FileDescriptor) (json.Delim, error) {
	rc, err := fd.OpenText()
	if err != nil {
		return 0, &readError{err}
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, errors.New("empty document")
		}
		return 0, err
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '[' && delim != '{') {
		return 0, fmt.Errorf("top-level value is %T, want array or object", tok)
	}

	if delim == '[' {
		for dec.More() {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return 0, err
			}
		}
		if _, err := dec.Token(); err != nil {
			return 0, err
		}
	} else {
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return 0, err
			}
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return 0, err
			}
		}
		if _, err := dec.Token(); err != nil {
			return 0, err
		}
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return 0, errors.New("trailing data after top-level value")
	}
	return delim, nil
}
