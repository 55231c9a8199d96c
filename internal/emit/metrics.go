// SPDX-License-Identifier: Apache-2.0

package emit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/omegaparse/omegaparse/internal/aggregate"
	"github.com/omegaparse/omegaparse/internal/pipeline"
)

// Metrics holds the Prometheus metrics of one run. They are written as a
// node_exporter textfile at the end rather than served.
type Metrics struct {
	registry *prometheus.Registry

	FilesProcessed *prometheus.CounterVec
	FilesSkipped   prometheus.Counter
	EventsEmitted  *prometheus.CounterVec

	ReportEvents   *prometheus.GaugeVec
	RunDuration    prometheus.Gauge
	LastRunSuccess prometheus.Gauge
}

// NewMetrics registers the run metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FilesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "omegaparse_files_processed_total", Help: "Files processed, by format and classification."},
			[]string{"format", "source_system", "content_type"},
		),
		FilesSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "omegaparse_files_skipped_total", Help: "Files that could not be read."},
		),
		EventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "omegaparse_events_total", Help: "Events emitted, by classification."},
			[]string{"source_system", "content_type"},
		),
		ReportEvents: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "omegaparse_report_events", Help: "Event totals of the last report."},
			[]string{"kind"},
		),
		RunDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "omegaparse_run_duration_seconds", Help: "Wall time of the last run."},
		),
		LastRunSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "omegaparse_last_run_success", Help: "1 if the last run completed without error."},
		),
	}
	m.registry.MustRegister(
		m.FilesProcessed, m.FilesSkipped, m.EventsEmitted,
		m.ReportEvents, m.RunDuration, m.LastRunSuccess,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Consume implements pipeline.Sink.
func (m *Metrics) Consume(_ context.Context, res pipeline.FileResult) error {
	if res.Skipped() {
		m.FilesSkipped.Inc()
	} else {
		c := res.Classification
		m.FilesProcessed.WithLabelValues(res.Format, string(c.SourceSystem), string(c.ContentType)).Inc()
	}
	for _, evt := range res.Events {
		m.EventsEmitted.WithLabelValues(string(evt.SourceSystem), string(evt.ContentType)).Inc()
	}
	return nil
}

// ObserveReport records the final report totals and run outcome.
func (m *Metrics) ObserveReport(r aggregate.Report, elapsed time.Duration, runErr error) {
	s := r.Summary
	m.ReportEvents.WithLabelValues("total").Set(float64(s.TotalEvents))
	m.ReportEvents.WithLabelValues("unclassified").Set(float64(s.UnclassifiedEvents))
	m.ReportEvents.WithLabelValues("without_timestamp").Set(float64(s.EventsWithoutTimestamp))
	m.RunDuration.Set(elapsed.Seconds())
	if runErr == nil {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
}

// WriteTextfile writes all metrics in the text exposition format. The file
// is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
