// SPDX-License-Identifier: Apache-2.0

// Package extract splits classified files into raw records.
package extract

import (
	"context"
	"fmt"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/omegaparse/omegaparse/internal/detect"
	"github.com/omegaparse/omegaparse/internal/schema"
)

// Record is one extracted record with the classification it ended up with
// and a decoded view for field lookups.
type Record struct {
	Raw            schema.RawRecord
	Classification schema.Classification
	View           schema.View
}

// FormatExtractor handles one container format.
type FormatExtractor interface {
	Name() string
	CanHandle(fd schema.FileDescriptor, cls schema.Classification) bool
	// Extract returns the file classification after parsing (possibly
	// downgraded) and a lazy record sequence. Errors mean the file could not
	// be read at all; malformed content is never an error. A read failure
	// while iterating is yielded once and ends the sequence.
	Extract(ctx context.Context, fd schema.FileDescriptor, cls schema.Classification) (schema.Classification, iter.Seq2[schema.RawRecord, error], error)
}

// Result is the outcome of extracting one file.
type Result struct {
	Format         string
	Classification schema.Classification
	Records        iter.Seq[Record]
}

// Extractor picks the first registered format that can handle a file.
type Extractor struct {
	formats []FormatExtractor
	records *detect.RecordClassifier
	logger  logrus.FieldLogger
}

// New creates an Extractor. With no formats given, the defaults are
// registered: JSON, CSV, HTML, text, and the opaque-file fallback. Order
// matters; the fallback must stay last.
func New(logger logrus.FieldLogger, records *detect.RecordClassifier, formats ...FormatExtractor) *Extractor {
	if len(formats) == 0 {
		formats = []FormatExtractor{
			NewJSONExtractor(),
			NewCSVExtractor(),
			NewHTMLExtractor(),
			NewTextExtractor(),
			NewFileExtractor(),
		}
	}
	if records == nil {
		records = detect.NewRecordClassifier(nil)
	}
	return &Extractor{formats: formats, records: records, logger: logger}
}

// Extract yields the records of fd. The sequence is finite and re-reads the
// file each time Extract is called.
func (e *Extractor) Extract(ctx context.Context, fd schema.FileDescriptor, cls schema.Classification) (Result, error) {
	format, err := e.selectFormat(fd, cls)
	if err != nil {
		return Result{}, err
	}

	fileCls, raws, err := format.Extract(ctx, fd, cls)
	if err != nil {
		return Result{}, fmt.Errorf("%s extractor: %w", format.Name(), err)
	}
	if fileCls.IsUnknown() && !cls.IsUnknown() {
		e.logger.WithFields(logrus.Fields{"file": fd.Path, "format": format.Name()}).Debug("classification downgraded during extraction")
	}

	records := func(yield func(Record) bool) {
		n := 0
		for raw, err := range raws {
			if err != nil {
				e.logger.WithError(err).WithFields(logrus.Fields{
					"file":    fd.Path,
					"format":  format.Name(),
					"records": n,
				}).Warn("record stream ended early")
				return
			}
			n++
			view := schema.NewView(raw.Payload)
			rec := Record{
				Raw:            raw,
				Classification: e.records.Refine(fileCls, view),
				View:           view,
			}
			if !yield(rec) {
				return
			}
		}
	}
	return Result{Format: format.Name(), Classification: fileCls, Records: records}, nil
}

func (e *Extractor) selectFormat(fd schema.FileDescriptor, cls schema.Classification) (FormatExtractor, error) {
	for _, f := range e.formats {
		if f.CanHandle(fd, cls) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("no extractor registered for %q", fd.Path)
}

// RegisteredFormats returns the names of the registered format extractors.
func (e *Extractor) RegisteredFormats() []string {
	names := make([]string, len(e.formats))
	for i, f := range e.formats {
		names[i] = f.Name()
	}
	return names
}

// single yields exactly one record.
func single(rec schema.RawRecord) iter.Seq2[schema.RawRecord, error] {
	return func(yield func(schema.RawRecord, error) bool) {
		yield(rec, nil)
	}
}

// malformed is the fallback for content that does not parse as its format:
// one record carrying the whole text, classification downgraded.
func malformed(fd schema.FileDescriptor, cls schema.Classification, format string, cause error) (schema.Classification, iter.Seq2[schema.RawRecord, error], error) {
	text, err := fd.ReadText()
	if err != nil {
		return cls, nil, err
	}
	rec := schema.RawRecord{SourceFile: fd.Path, RecordIndex: 0, Payload: schema.TextPayload(text)}
	return cls.Downgrade(fmt.Sprintf("malformed %s: %v", format, cause)), single(rec), nil
}
