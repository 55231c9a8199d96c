// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"context"
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// HTMLExtractor reads Takeout "My Activity" pages, where every activity sits
// in its own .outer-cell block. Other HTML documents become one text record.
type HTMLExtractor struct{}

// NewHTMLExtractor creates a new HTMLExtractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

func (x *HTMLExtractor) Name() string {
	return "html"
}

func (x *HTMLExtractor) CanHandle(fd schema.FileDescriptor, _ schema.Classification) bool {
	ext := fd.Ext()
	return ext == "html" || ext == "htm"
}

func (x *HTMLExtractor) Extract(_ context.Context, fd schema.FileDescriptor, cls schema.Classification) (schema.Classification, iter.Seq2[schema.RawRecord, error], error) {
	text, err := fd.ReadText()
	if err != nil {
		return cls, nil, err
	}
	whole := single(schema.RawRecord{SourceFile: fd.Path, RecordIndex: 0, Payload: schema.TextPayload(text)})
	if cls.Atomic || cls.SourceSystem != schema.SourceYouTubeTakeout {
		return cls, whole, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return malformed(fd, cls, "html", err)
	}
	cells := doc.Find(".outer-cell")
	if cells.Length() == 0 {
		return cls, whole, nil
	}

	rows := make([]schema.Row, 0, cells.Length())
	cells.Each(func(_ int, cell *goquery.Selection) {
		rows = append(rows, activityRow(cell))
	})
	records := func(yield func(schema.RawRecord, error) bool) {
		for i, row := range rows {
			if !yield(schema.RawRecord{SourceFile: fd.Path, RecordIndex: i, Payload: schema.RowPayload(row)}, nil) {
				return
			}
		}
	}
	return cls, records, nil
}

// activityRow maps one activity cell onto the field names Takeout uses in its
// JSON exports. Only fields present in the markup are set.
func activityRow(cell *goquery.Selection) schema.Row {
	var row schema.Row
	set := func(name, value string) {
		if value = strings.TrimSpace(value); value != "" {
			row = append(row, schema.Field{Name: name, Value: value})
		}
	}

	set("header", cell.Find(".header-cell").First().Text())

	content := cell.Find(".content-cell").First()
	lines := cellLines(content)
	if len(lines) > 0 {
		set("title", lines[0])
	}
	links := content.Find("a")
	if links.Length() > 0 {
		href, _ := links.Eq(0).Attr("href")
		set("titleUrl", href)
	}
	if links.Length() > 1 {
		set("channel", links.Eq(1).Text())
		href, _ := links.Eq(1).Attr("href")
		set("channelUrl", href)
	}
	if len(lines) > 1 {
		set("time", lines[len(lines)-1])
	}
	return row
}

// cellLines splits a content cell on <br> into trimmed, non-empty lines.
func cellLines(sel *goquery.Selection) []string {
	var lines []string
	var cur strings.Builder
	flush := func() {
		if s := strings.Join(strings.Fields(cur.String()), " "); s != "" {
			lines = append(lines, s)
		}
		cur.Reset()
	}
	sel.Contents().Each(func(_ int, n *goquery.Selection) {
		if goquery.NodeName(n) == "br" {
			flush()
			return
		}
		cur.WriteString(n.Text())
	})
	flush()
	return lines
}
