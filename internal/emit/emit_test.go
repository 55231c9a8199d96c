// SPDX-License-Identifier: Apache-2.0

package emit_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegaparse/omegaparse/internal/aggregate"
	"github.com/omegaparse/omegaparse/internal/emit"
	"github.com/omegaparse/omegaparse/internal/pipeline"
	"github.com/omegaparse/omegaparse/internal/schema"
)

func fixture() []schema.FileDescriptor {
	return []schema.FileDescriptor{
		schema.MemoryFile("Takeout/YouTube/history/watch-history.json",
			[]byte(`[{"title":"Video <A>","time":"2023-01-01T00:00:00Z","subtitles":[{"name":"Chan"}]},{"title":"Video B"}]`)),
		schema.MemoryFile("bad.json", []byte("not json")),
		schema.MemoryFile("data.csv", []byte("id,text\n1,hello\n2,world\n")),
	}
}

func run(t *testing.T, sinks ...pipeline.Sink) aggregate.Report {
	t.Helper()
	logger, _ := test.NewNullLogger()
	p := pipeline.New(pipeline.WithWorkers(2), pipeline.WithLogger(logger), pipeline.WithSinks(sinks...))
	report, err := p.Run(context.Background(), slices.Values(fixture()))
	require.NoError(t, err)
	return report
}

// ---------------------------------------------------------------------------
// Report artifacts
// ---------------------------------------------------------------------------

func TestWriteReport_JSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	report := run(t)

	paths, err := emit.WriteReport(dir, emit.FormatJSON, report)
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{
		"summary.json",
		"by_content_type.json",
		"by_channel.json",
		"by_source_system.json",
		"by_file_type.json",
		"unclassified.json",
		"unclassified_files.json",
	}, names)

	data, err := os.ReadFile(filepath.Join(dir, "by_channel.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"Chan\": 1,\n  \"unknown\": 4\n}\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "summary.json"))
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.EqualValues(t, 3, summary["total_files"])
	assert.EqualValues(t, 5, summary["total_events"])

	data, err = os.ReadFile(filepath.Join(dir, "unclassified.json"))
	require.NoError(t, err)
	var unclassified []map[string]any
	require.NoError(t, json.Unmarshal(data, &unclassified))
	require.Len(t, unclassified, 1)
	assert.Equal(t, "bad.json", unclassified[0]["source_file"])
	assert.Equal(t, "not json", unclassified[0]["raw"])
}

func TestWriteReport_YAML(t *testing.T) {
	dir := t.TempDir()
	report := run(t)

	_, err := emit.WriteReport(dir, emit.FormatYAML, report)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "by_file_type.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "csv: 2\njson: 3\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "summary.yaml"))
	require.NoError(t, err)
	var summary aggregate.Summary
	require.NoError(t, yaml.Unmarshal(data, &summary))
	assert.Equal(t, report.Summary, summary)
}

func TestWriteReport_EmptyReport(t *testing.T) {
	dir := t.TempDir()
	_, err := emit.WriteReport(dir, emit.FormatJSON, aggregate.NewAccumulator(aggregate.DefaultThreshold).Report())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "unclassified.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestEncode_NoHTMLEscaping(t *testing.T) {
	data, err := emit.Encode(emit.FormatJSON, map[string]string{"title": "Video <A> & more"})
	require.NoError(t, err)
	assert.Contains(t, string(data), "Video <A> & more")
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    emit.Format
		wantErr bool
	}{
		{"json", emit.FormatJSON, false},
		{"yaml", emit.FormatYAML, false},
		{"xml", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := emit.ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ---------------------------------------------------------------------------
// Event log
// ---------------------------------------------------------------------------

func TestEventLog_WritesInputOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log, err := emit.CreateEventLog(path)
	require.NoError(t, err)
	run(t, log)
	require.NoError(t, log.Close())
	assert.Equal(t, 5, log.Count())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var files []string
	var indexes []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var evt map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &evt))
		files = append(files, evt["source_file"].(string))
		indexes = append(indexes, int(evt["record_index"].(float64)))
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{
		"Takeout/YouTube/history/watch-history.json",
		"Takeout/YouTube/history/watch-history.json",
		"bad.json",
		"data.csv",
		"data.csv",
	}, files)
	assert.Equal(t, []int{0, 1, 0, 0, 1}, indexes)
}

func TestEventLog_BuffersUntilClose(t *testing.T) {
	var buf bytes.Buffer
	log := emit.NewEventLog(&buf)
	run(t, log)
	require.NoError(t, log.Close())
	assert.Equal(t, 5, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"title":"Video <A>"`)
}

// ---------------------------------------------------------------------------
// SQLite store
// ---------------------------------------------------------------------------

func TestSQLiteStore(t *testing.T) {
	logger, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "events.db")
	store, err := emit.OpenSQLite(path, logger)
	require.NoError(t, err)

	run(t, store)
	counts, err := store.CountByContentType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"message": 2, "unknown": 1, "video": 2}, counts)
	require.NoError(t, store.Close())

	// reopening applies no migrations and re-running replaces rows by id
	store, err = emit.OpenSQLite(path, logger)
	require.NoError(t, err)
	defer store.Close()
	run(t, store)
	counts, err = store.CountByContentType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"message": 2, "unknown": 1, "video": 2}, counts)
}

func TestSQLiteStore_RawPayload(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store, err := emit.OpenSQLite(filepath.Join(t.TempDir(), "events.db"), logger)
	require.NoError(t, err)
	defer store.Close()

	fd := schema.MemoryFile("data.csv", []byte("id,text\n1,hello\n"))
	p := pipeline.New(pipeline.WithLogger(logger))
	res, _ := p.ProcessFile(context.Background(), fd)
	require.NoError(t, store.Consume(context.Background(), res))

	raw, err := store.RawPayload(context.Background(), res.Events[0].ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","text":"hello"}`, raw)

	_, err = store.RawPayload(context.Background(), "missing")
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

func TestMetrics(t *testing.T) {
	m := emit.NewMetrics()
	report := run(t, m)
	m.ObserveReport(report, 1500*time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsEmitted.WithLabelValues("youtube_takeout", "video")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesProcessed.WithLabelValues("csv", "generic_csv", "message")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FilesSkipped))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ReportEvents.WithLabelValues("total")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.RunDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LastRunSuccess))

	path := filepath.Join(t.TempDir(), "omegaparse.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `omegaparse_events_total{content_type="video",source_system="youtube_takeout"} 2`)
	assert.Contains(t, string(data), "omegaparse_last_run_success 1")
}
