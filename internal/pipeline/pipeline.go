// SPDX-License-Identifier: Apache-2.0

// Package pipeline wires detection, extraction, normalization and
// aggregation into one pass over a set of files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omegaparse/omegaparse/internal/aggregate"
	"github.com/omegaparse/omegaparse/internal/detect"
	"github.com/omegaparse/omegaparse/internal/extract"
	"github.com/omegaparse/omegaparse/internal/normalize"
	"github.com/omegaparse/omegaparse/internal/schema"
)

// FileResult is everything one file produced.
type FileResult struct {
	Path           string
	Format         string
	Classification schema.Classification
	Events         []schema.Event
	// Err is set when the file could not be read. Events then holds the
	// single placeholder event.
	Err error
}

// Skipped reports whether the file was unreadable.
func (r FileResult) Skipped() bool {
	return r.Err != nil
}

// Sink receives file results in input order, one call per file.
type Sink interface {
	Consume(ctx context.Context, res FileResult) error
}

// Pipeline processes files with a bounded worker pool. Output order and
// counts do not depend on scheduling.
type Pipeline struct {
	detector   *detect.Detector
	extractor  *extract.Extractor
	normalizer *normalize.Normalizer
	threshold  float64
	workers    int
	window     int
	sinks      []Sink
	logger     logrus.FieldLogger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDetector replaces the default detector.
func WithDetector(d *detect.Detector) Option {
	return func(p *Pipeline) { p.detector = d }
}

// WithExtractor replaces the default extractor.
func WithExtractor(x *extract.Extractor) Option {
	return func(p *Pipeline) { p.extractor = x }
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(p *Pipeline) { p.normalizer = n }
}

// WithThreshold sets the unclassified confidence threshold.
func WithThreshold(t float64) Option {
	return func(p *Pipeline) { p.threshold = t }
}

// WithWorkers sets how many files are processed at once.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithWindow caps how many files may be started ahead of the oldest file
// not yet delivered to sinks. It bounds the results held for reordering.
// The default is twice the worker count.
func WithWindow(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.window = n
		}
	}
}

// WithSinks registers sinks that receive every file result.
func WithSinks(sinks ...Sink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline. Unset stages get their defaults.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		threshold: aggregate.DefaultThreshold,
		workers:   1,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.window == 0 {
		p.window = 2 * p.workers
	}
	if p.window < p.workers {
		p.window = p.workers
	}
	if p.detector == nil {
		p.detector = detect.New(detect.WithLogger(p.logger))
	}
	if p.extractor == nil {
		p.extractor = extract.New(p.logger, nil)
	}
	if p.normalizer == nil {
		p.normalizer = normalize.New(nil)
	}
	return p
}

type outcome struct {
	seq     int
	res     FileResult
	partial *aggregate.Accumulator
}

// Run processes every file and returns the merged report. Cancellation is
// honoured between files only: a file that has started is finished and
// counted. On cancellation the report covers the files completed so far and
// the context error is returned alongside it. Sink failures stop the run.
func (p *Pipeline) Run(ctx context.Context, files iter.Seq[schema.FileDescriptor]) (aggregate.Report, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	acc := aggregate.NewAccumulator(p.threshold)
	outcomes := make(chan outcome, p.workers)
	// a slot is taken when a file starts and returned once it reaches the sinks
	slots := make(chan struct{}, p.window)

	var sinkErr error
	var reducer sync.WaitGroup
	reducer.Add(1)
	go func() {
		defer reducer.Done()
		pending := make(map[int]outcome)
		next := 0
		for o := range outcomes {
			pending[o.seq] = o
			for {
				ready, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				acc.Merge(ready.partial)
				if sinkErr == nil {
					if err := p.emit(ctx, ready.res); err != nil {
						sinkErr = err
						cancel()
					}
				}
				<-slots
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(p.workers)
	seq := 0
produce:
	for fd := range files {
		select {
		case <-runCtx.Done():
			break produce
		case slots <- struct{}{}:
		}
		if runCtx.Err() != nil {
			<-slots
			break
		}
		n := seq
		seq++
		g.Go(func() error {
			res, partial := p.ProcessFile(ctx, fd)
			outcomes <- outcome{seq: n, res: res, partial: partial}
			return nil
		})
	}
	waitErr := g.Wait()
	close(outcomes)
	reducer.Wait()

	report := acc.Report()
	p.logger.WithFields(logrus.Fields{
		"files":        report.Summary.TotalFiles,
		"skipped":      report.Summary.SkippedFiles,
		"events":       report.Summary.TotalEvents,
		"unclassified": report.Summary.UnclassifiedEvents,
	}).Info("run complete")

	if err := errors.Join(waitErr, sinkErr); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

func (p *Pipeline) emit(ctx context.Context, res FileResult) error {
	for _, s := range p.sinks {
		if err := s.Consume(ctx, res); err != nil {
			return fmt.Errorf("sink %T: %w", s, err)
		}
	}
	return nil
}

// ProcessFile runs one file end to end and returns its result together with
// a partial accumulator holding only that file's counts.
func (p *Pipeline) ProcessFile(ctx context.Context, fd schema.FileDescriptor) (FileResult, *aggregate.Accumulator) {
	partial := aggregate.NewAccumulator(p.threshold)
	log := p.logger.WithField("file", fd.Path)

	cls := p.detector.Classify(fd)
	result, err := p.extractor.Extract(ctx, fd, cls)
	if err != nil {
		log.WithError(err).Warn("skipping unreadable file")
		placeholder := schema.Unclassified().WithEvidence("unreadable: " + err.Error())
		evt := p.normalizer.Normalize(placeholder, schema.RawRecord{SourceFile: fd.Path, RecordIndex: 0, Payload: schema.NoPayload()})
		partial.AddSkipped(fd.Path)
		partial.Add(evt)
		return FileResult{Path: fd.Path, Classification: placeholder, Events: []schema.Event{evt}, Err: err}, partial
	}

	partial.AddFile(fd.Path, result.Classification)
	res := FileResult{Path: fd.Path, Format: result.Format, Classification: result.Classification}
	for rec := range result.Records {
		evt := p.normalizer.NormalizeView(rec.Classification, rec.Raw, rec.View)
		partial.Add(evt)
		res.Events = append(res.Events, evt)
	}

	log.WithFields(logrus.Fields{
		"format":        result.Format,
		"source_system": result.Classification.SourceSystem,
		"content_type":  result.Classification.ContentType,
		"confidence":    result.Classification.Confidence,
		"records":       len(res.Events),
	}).Debug("file processed")
	return res, partial
}
