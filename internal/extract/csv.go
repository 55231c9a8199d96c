// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"iter"
	"strconv"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// CSVExtractor yields one record per data row. The header row names the
// fields; blank or missing names fall back to column_<n> (1-based), and a
// repeated name gets a _2, _3, ... suffix so every field keeps its own key.
type CSVExtractor struct{}

// NewCSVExtractor creates a new CSVExtractor.
func NewCSVExtractor() *CSVExtractor {
	return &CSVExtractor{}
}

func (x *CSVExtractor) Name() string {
	return "csv"
}

func (x *CSVExtractor) CanHandle(fd schema.FileDescriptor, cls schema.Classification) bool {
	switch fd.Ext() {
	case "csv", "tsv":
		return true
	case "":
		return cls.SourceSystem == schema.SourceGenericCSV
	}
	return false
}

func newCSVReader(r io.Reader, ext string) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	if ext == "tsv" {
		cr.Comma = '\t'
	}
	return cr
}

func (x *CSVExtractor) Extract(_ context.Context, fd schema.FileDescriptor, cls schema.Classification) (schema.Classification, iter.Seq2[schema.RawRecord, error], error) {
	if err := scanCSV(fd); err != nil {
		var readErr *readError
		if errors.As(err, &readErr) {
			return cls, nil, readErr.err
		}
		return malformed(fd, cls, "csv", err)
	}

	records := func(yield func(schema.RawRecord, error) bool) {
		rc, err := fd.OpenText()
		if err != nil {
			yield(schema.RawRecord{}, err)
			return
		}
		defer rc.Close()
		cr := newCSVReader(rc, fd.Ext())

		header, err := cr.Read()
		if err != nil {
			yield(schema.RawRecord{}, err)
			return
		}
		for i := 0; ; i++ {
			fields, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(schema.RawRecord{}, err)
				return
			}
			if !yield(schema.RawRecord{SourceFile: fd.Path, RecordIndex: i, Payload: schema.RowPayload(buildRow(header, fields))}, nil) {
				return
			}
		}
	}
	return cls, records, nil
}

// scanCSV reads the whole file once so parse errors surface before any row
// is emitted.
func scanCSV(fd schema.FileDescriptor) error {
	rc, err := fd.OpenText()
	if err != nil {
		return &readError{err}
	}
	defer rc.Close()
	cr := newCSVReader(rc, fd.Ext())
	cr.ReuseRecord = true
	for {
		_, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func buildRow(header, fields []string) schema.Row {
	row := make(schema.Row, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for i, v := range fields {
		name := ""
		if i < len(header) {
			name = header[i]
		}
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		row = append(row, schema.Field{Name: uniqueName(name, seen), Value: v})
	}
	return row
}

// uniqueName suffixes a repeated column name with _2, _3, ... until it no
// longer collides with an earlier column.
func uniqueName(name string, seen map[string]bool) string {
	unique := name
	for n := 2; seen[unique]; n++ {
		unique = name + "_" + strconv.Itoa(n)
	}
	seen[unique] = true
	return unique
}
