// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"strings"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// TextExtractor yields one record per non-empty line, or one record for the
// whole file when the classification is atomic. RecordIndex is the 0-based
// line number.
type TextExtractor struct{}

// NewTextExtractor creates a new TextExtractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (x *TextExtractor) Name() string {
	return "text"
}

func (x *TextExtractor) CanHandle(fd schema.FileDescriptor, cls schema.Classification) bool {
	switch fd.Ext() {
	case "txt", "log", "md", "markdown":
		return true
	}
	return cls.SourceSystem == schema.SourceGenericText
}

func (x *TextExtractor) Extract(_ context.Context, fd schema.FileDescriptor, cls schema.Classification) (schema.Classification, iter.Seq2[schema.RawRecord, error], error) {
	if cls.Atomic {
		text, err := fd.ReadText()
		if err != nil {
			return cls, nil, err
		}
		return cls, single(schema.RawRecord{SourceFile: fd.Path, RecordIndex: 0, Payload: schema.TextPayload(text)}), nil
	}

	// open once so an unreadable file is reported instead of yielding nothing
	rc, err := fd.OpenText()
	if err != nil {
		return cls, nil, err
	}
	rc.Close()

	records := func(yield func(schema.RawRecord, error) bool) {
		rc, err := fd.OpenText()
		if err != nil {
			yield(schema.RawRecord{}, err)
			return
		}
		defer rc.Close()
		br := bufio.NewReader(rc)
		for n := 0; ; n++ {
			line, err := br.ReadString('\n')
			if len(line) > 0 {
				line = strings.TrimRight(line, "\r\n")
				if strings.TrimSpace(line) != "" {
					if !yield(schema.RawRecord{SourceFile: fd.Path, RecordIndex: n, Payload: schema.TextPayload(line)}, nil) {
						return
					}
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(schema.RawRecord{}, err)
				return
			}
		}
	}
	return cls, records, nil
}
