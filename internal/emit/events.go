// SPDX-License-Identifier: Apache-2.0

package emit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/omegaparse/omegaparse/internal/pipeline"
)

// EventLog writes one JSON object per event, in the order files are
// delivered by the pipeline.
type EventLog struct {
	w      *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
	count  int
}

// CreateEventLog truncates path and returns a log writing to it.
func CreateEventLog(path string) (*EventLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create event log: %w", err)
	}
	l := NewEventLog(f)
	l.closer = f
	return l, nil
}

// NewEventLog writes to w. Close flushes but does not close w.
func NewEventLog(w io.Writer) *EventLog {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &EventLog{w: bw, enc: enc}
}

// Consume implements pipeline.Sink.
func (l *EventLog) Consume(_ context.Context, res pipeline.FileResult) error {
	for _, evt := range res.Events {
		if err := l.enc.Encode(evt); err != nil {
			return fmt.Errorf("write event %s: %w", evt.ID, err)
		}
		l.count++
	}
	return nil
}

// Count is the number of events written so far.
func (l *EventLog) Count() int {
	return l.count
}

// Close flushes buffered events and closes the underlying file, if any.
func (l *EventLog) Close() error {
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush event log: %w", err)
	}
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
