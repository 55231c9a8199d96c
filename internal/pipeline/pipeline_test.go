// SPDX-License-Identifier: Apache-2.0

package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegaparse/omegaparse/internal/pipeline"
	"github.com/omegaparse/omegaparse/internal/schema"
)

type recordingSink struct {
	mu      sync.Mutex
	results []pipeline.FileResult
	failOn  int
}

func (s *recordingSink) Consume(_ context.Context, res pipeline.FileResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	if s.failOn > 0 && len(s.results) == s.failOn {
		return errors.New("disk full")
	}
	return nil
}

func (s *recordingSink) paths() []string {
	var out []string
	for _, r := range s.results {
		out = append(out, r.Path)
	}
	return out
}

func unreadable(path string) schema.FileDescriptor {
	return schema.NewFileDescriptor(path, 42, "UTF-8", func() (io.ReadCloser, error) {
		return nil, errors.New("permission denied")
	})
}

func fixture() []schema.FileDescriptor {
	return []schema.FileDescriptor{
		schema.MemoryFile("Takeout/YouTube/history/watch-history.json", []byte(`[{"title":"Video A","time":"2023-01-01T00:00:00Z"}]`)),
		schema.MemoryFile("bad.json", []byte("not json")),
		schema.MemoryFile("data.csv", []byte("id,text\n1,hello\n")),
		schema.MemoryFile("notes.txt", []byte("hello\n\nworld\n")),
		unreadable("gone.json"),
	}
}

func newPipeline(workers int, opts ...pipeline.Option) *pipeline.Pipeline {
	logger, _ := test.NewNullLogger()
	return pipeline.New(append([]pipeline.Option{pipeline.WithWorkers(workers), pipeline.WithLogger(logger)}, opts...)...)
}

// ---------------------------------------------------------------------------
// End to end
// ---------------------------------------------------------------------------

func TestRun_Report(t *testing.T) {
	report, err := newPipeline(2).Run(context.Background(), slices.Values(fixture()))
	require.NoError(t, err)

	s := report.Summary
	assert.Equal(t, 5, s.TotalFiles)
	assert.Equal(t, 1, s.SkippedFiles)
	assert.Equal(t, 6, s.TotalEvents)
	assert.Equal(t, 4, s.UnclassifiedEvents)
	assert.Equal(t, 0.5, s.Threshold)

	assert.Equal(t, s.TotalEvents, report.ByContentType.Total())
	assert.Equal(t, 1, report.ByContentType.Get("video"))
	assert.Equal(t, 1, report.ByContentType.Get("message"))
	assert.Equal(t, 4, report.ByContentType.Get("unknown"))
	assert.Equal(t, 6, report.ByChannel.Get("unknown"))
	assert.Equal(t, 2, report.BySourceSystem.Get("generic_text"))
	assert.Equal(t, 1, report.BySourceSystem.Get("unknown"))
	assert.Equal(t, 3, report.ByFileType.Get("json"))

	var files []string
	for _, e := range report.Unclassified {
		files = append(files, e.SourceFile)
	}
	assert.Equal(t, []string{"bad.json", "gone.json", "notes.txt", "notes.txt"}, files)

	bad := report.Unclassified[0]
	assert.Equal(t, schema.ContentUnknown, bad.ContentType)
	assert.Zero(t, bad.Confidence)
	assert.Equal(t, "not json", bad.Raw.Text())

	gone := report.Unclassified[1]
	assert.Equal(t, schema.PayloadNone, gone.Raw.Kind())
	assert.Contains(t, gone.Evidence[len(gone.Evidence)-1], "unreadable: ")
	assert.Contains(t, gone.Evidence[len(gone.Evidence)-1], "permission denied")
}

func TestRun_SinksSeeInputOrder(t *testing.T) {
	sink := &recordingSink{}
	_, err := newPipeline(4, pipeline.WithSinks(sink)).Run(context.Background(), slices.Values(fixture()))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Takeout/YouTube/history/watch-history.json",
		"bad.json",
		"data.csv",
		"notes.txt",
		"gone.json",
	}, sink.paths())

	csv := sink.results[2]
	assert.Equal(t, "csv", csv.Format)
	require.Len(t, csv.Events, 1)
	assert.Equal(t, map[string]any{"id": "1", "text": "hello"}, csv.Events[0].Fields)

	watch := sink.results[0].Events[0]
	assert.Equal(t, schema.SourceYouTubeTakeout, watch.SourceSystem)
	assert.Equal(t, schema.ContentVideo, watch.ContentType)
	assert.Equal(t, "Video A", watch.Fields["title"])
	require.NotNil(t, watch.Timestamp)

	assert.True(t, sink.results[4].Skipped())
	assert.False(t, sink.results[0].Skipped())
}

func TestRun_DeterministicAcrossWorkerCounts(t *testing.T) {
	var many []schema.FileDescriptor
	for i := range 40 {
		many = append(many, schema.MemoryFile(fmt.Sprintf("dir%02d/watch-history.json", i),
			[]byte(fmt.Sprintf(`[{"title":"Watched %d","time":"2023-01-01T00:00:00Z","subtitles":[{"name":"ch%d"}]}]`, i, i%3))))
	}
	many = append(many, fixture()...)

	var reports []string
	var orders [][]string
	for _, workers := range []int{1, 3, 16} {
		sink := &recordingSink{}
		report, err := newPipeline(workers, pipeline.WithSinks(sink)).Run(context.Background(), slices.Values(many))
		require.NoError(t, err)
		data, err := json.Marshal(report)
		require.NoError(t, err)
		reports = append(reports, string(data))
		orders = append(orders, sink.paths())
	}
	assert.Equal(t, reports[0], reports[1])
	assert.Equal(t, reports[0], reports[2])
	assert.Equal(t, orders[0], orders[1])
	assert.Equal(t, orders[0], orders[2])
}

func TestRun_IDsIndependentOfRun(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	_, err := newPipeline(1, pipeline.WithSinks(first)).Run(context.Background(), slices.Values(fixture()))
	require.NoError(t, err)
	_, err = newPipeline(8, pipeline.WithSinks(second)).Run(context.Background(), slices.Values(fixture()))
	require.NoError(t, err)

	for i := range first.results {
		for j := range first.results[i].Events {
			assert.Equal(t, first.results[i].Events[j].ID, second.results[i].Events[j].ID)
		}
	}
}

func TestRun_SamePayloadDifferentPaths(t *testing.T) {
	body := []byte(`[{"title":"Video A","time":"2023-01-01T00:00:00Z"}]`)
	sink := &recordingSink{}
	_, err := newPipeline(1, pipeline.WithSinks(sink)).Run(context.Background(), slices.Values([]schema.FileDescriptor{
		schema.MemoryFile("a/watch-history.json", body),
		schema.MemoryFile("b/watch-history.json", body),
	}))
	require.NoError(t, err)
	assert.NotEqual(t, sink.results[0].Events[0].ID, sink.results[1].Events[0].ID)
}

// ---------------------------------------------------------------------------
// Cancellation and failures
// ---------------------------------------------------------------------------

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := newPipeline(2).Run(ctx, slices.Values(fixture()))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Summary.TotalFiles)
}

func TestRun_CancelAtFileBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fds := fixture()
	files := iter.Seq[schema.FileDescriptor](func(yield func(schema.FileDescriptor) bool) {
		for i, fd := range fds {
			if i == 3 {
				cancel()
			}
			if !yield(fd) {
				return
			}
		}
	})

	sink := &recordingSink{}
	report, err := newPipeline(2, pipeline.WithSinks(sink)).Run(ctx, files)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, report.Summary.TotalFiles)
	assert.Len(t, sink.results, 3)
	assert.Equal(t, report.Summary.TotalEvents, report.ByContentType.Total())
}

func TestRun_SinkFailureStopsRun(t *testing.T) {
	sink := &recordingSink{failOn: 1}
	_, err := newPipeline(1, pipeline.WithSinks(sink)).Run(context.Background(), slices.Values(fixture()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, sink.results, 1)
}

func TestRun_WindowBoundsFilesAheadOfSlowFile(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	started := map[string]bool{}

	slow := schema.NewFileDescriptor("00-slow.txt", 5, "UTF-8", func() (io.ReadCloser, error) {
		<-release
		return io.NopCloser(strings.NewReader("slow\n")), nil
	})
	fds := []schema.FileDescriptor{slow}
	for i := range 10 {
		p := fmt.Sprintf("%02d.txt", i+1)
		fds = append(fds, schema.NewFileDescriptor(p, 3, "UTF-8", func() (io.ReadCloser, error) {
			mu.Lock()
			started[p] = true
			mu.Unlock()
			return io.NopCloser(strings.NewReader("ok\n")), nil
		}))
	}
	startedCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(started)
	}

	sink := &recordingSink{}
	done := make(chan error, 1)
	go func() {
		_, err := newPipeline(2, pipeline.WithWindow(4), pipeline.WithSinks(sink)).Run(context.Background(), slices.Values(fds))
		done <- err
	}()

	// the window holds the slow file plus three more
	require.Eventually(t, func() bool { return startedCount() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, startedCount())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 10, startedCount())
	require.Len(t, sink.results, 11)
	assert.Equal(t, "00-slow.txt", sink.results[0].Path)
}

func TestProcessFile_Unreadable(t *testing.T) {
	res, partial := newPipeline(1).ProcessFile(context.Background(), unreadable("x/locked.csv"))
	require.Error(t, res.Err)
	require.Len(t, res.Events, 1)

	evt := res.Events[0]
	assert.Equal(t, schema.SourceUnknown, evt.SourceSystem)
	assert.Equal(t, schema.ContentUnknown, evt.ContentType)
	assert.Zero(t, evt.Confidence)
	assert.Empty(t, evt.Fields)

	r := partial.Report()
	assert.Equal(t, 1, r.Summary.SkippedFiles)
	assert.Equal(t, []string{"x/locked.csv"}, r.UnclassifiedFiles)
}
