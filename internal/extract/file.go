// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"context"
	"iter"

	"github.com/gabriel-vasile/mimetype"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// FileExtractor is the catch-all for media, archives and anything else with
// no record structure. It emits a single reference record and never copies
// the content.
type FileExtractor struct{}

// NewFileExtractor creates a new FileExtractor.
func NewFileExtractor() *FileExtractor {
	return &FileExtractor{}
}

func (x *FileExtractor) Name() string {
	return "file"
}

func (x *FileExtractor) CanHandle(schema.FileDescriptor, schema.Classification) bool {
	return true
}

func (x *FileExtractor) Extract(_ context.Context, fd schema.FileDescriptor, cls schema.Classification) (schema.Classification, iter.Seq2[schema.RawRecord, error], error) {
	rc, err := fd.Open()
	if err != nil {
		return cls, nil, err
	}
	defer rc.Close()
	mt, err := mimetype.DetectReader(rc)
	if err != nil {
		return cls, nil, err
	}

	ref := schema.FileRef{Path: fd.Path, Size: fd.Size, MIME: mt.String()}
	return cls, single(schema.RawRecord{SourceFile: fd.Path, RecordIndex: 0, Payload: schema.FilePayload(ref)}), nil
}
