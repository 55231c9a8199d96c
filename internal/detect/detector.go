// SPDX-License-Identifier: Apache-2.0

// Package detect classifies export files by source system and content type
// from their path and a bounded content prefix.
package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// DefaultSampleSize is how many decoded bytes of a file the detector reads.
const DefaultSampleSize = 64 * 1024

// hintWeight is the confidence granted by an explicit caller hint alone.
const hintWeight = 0.5

// Detector runs the signal cascade. It is safe for concurrent use.
type Detector struct {
	signals    []Signal
	sampleSize int
	hint       schema.SourceSystem
	logger     logrus.FieldLogger
}

// Option configures a Detector.
type Option func(*Detector)

// WithSignals replaces the default cascade.
func WithSignals(signals []Signal) Option {
	return func(d *Detector) { d.signals = signals }
}

// WithSampleSize bounds how much content is read per file.
func WithSampleSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.sampleSize = n
		}
	}
}

// WithSourceHint pins the source system; only that source's signals are used
// to pick the content type.
func WithSourceHint(src schema.SourceSystem) Option {
	return func(d *Detector) { d.hint = src }
}

// WithLogger sets the logger used for debug traces.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Detector) { d.logger = l }
}

// New creates a Detector with the default cascade.
func New(opts ...Option) *Detector {
	d := &Detector{
		signals:    DefaultSignals(),
		sampleSize: DefaultSampleSize,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type candidateKey struct {
	source  schema.SourceSystem
	content schema.ContentType
}

type candidate struct {
	key         candidateKey
	score       float64
	specificity Specificity
	evidence    []string
	atomic      bool
}

// Classify never fails: unreadable or malformed content lowers confidence
// instead of producing an error.
func (d *Detector) Classify(fd schema.FileDescriptor) schema.Classification {
	prefix, complete, err := fd.TextPrefix(d.sampleSize)
	if err != nil {
		d.logger.WithError(err).WithField("file", fd.Path).Debug("cannot sample file")
		prefix, complete = nil, false
	}
	return d.ClassifySample(newSample(fd, prefix, complete))
}

// ClassifySample runs the cascade over an already built sample.
func (d *Detector) ClassifySample(s *Sample) schema.Classification {
	matched := make([]Signal, 0, 8)
	var format []Signal
	for _, sig := range d.signals {
		if d.hint != "" && sig.Source != d.hint {
			// extension rows of other sources still describe the file format
			if sig.Specificity == SpecExtension && sig.Atomic && sig.Match(s) {
				format = append(format, sig)
			}
			continue
		}
		if !sig.Match(s) {
			continue
		}
		matched = append(matched, sig)
		if sig.ShortCircuit {
			break
		}
	}

	cands := rank(buildCandidates(matched))
	if d.hint != "" {
		return d.hinted(s, cands, format)
	}
	if len(cands) == 0 {
		return schema.Unclassified()
	}

	best := cands[0]
	cls := schema.Classification{
		SourceSystem: best.key.source,
		ContentType:  best.key.content,
		Confidence:   roundScore(best.score),
		Evidence:     append([]string{}, best.evidence...),
		Atomic:       best.atomic,
	}
	if len(cands) > 1 {
		cls.Evidence = append(cls.Evidence, runnerUp(cands[1]))
	}
	return cls.WithEvidence(diagnostics(s)...)
}

// hinted builds the classification under a source hint. Format rows only
// decide whether the file is atomic, and only when no structural or manifest
// row of the hinted source matched.
func (d *Detector) hinted(s *Sample, cands []*candidate, format []Signal) schema.Classification {
	cls := schema.Classification{
		SourceSystem: d.hint,
		ContentType:  schema.ContentUnknown,
		Confidence:   hintWeight,
		Evidence:     []string{"source hint: " + string(d.hint)},
	}
	var structural bool
	if len(cands) > 0 {
		best := cands[0]
		cls.ContentType = best.key.content
		cls.Confidence = roundScore(hintWeight + best.score)
		cls.Evidence = append(cls.Evidence, best.evidence...)
		cls.Atomic = best.atomic
		structural = best.specificity >= SpecManifest
	}
	if !structural {
		for _, sig := range format {
			cls.Atomic = true
			cls.Evidence = append(cls.Evidence, "format: "+sig.Evidence)
		}
	}
	return cls.WithEvidence(diagnostics(s)...)
}

// buildCandidates groups matched signals into (source, content) candidates.
// Source-only signals back every candidate of their source, and create an
// unknown-content candidate when the source has none.
func buildCandidates(matched []Signal) []*candidate {
	byKey := make(map[candidateKey]*candidate)
	var order []candidateKey
	add := func(k candidateKey) {
		if _, ok := byKey[k]; !ok {
			byKey[k] = &candidate{key: k}
			order = append(order, k)
		}
	}
	for _, sig := range matched {
		if sig.Content != "" {
			add(candidateKey{sig.Source, sig.Content})
		}
	}
	for _, sig := range matched {
		if sig.Content != "" {
			continue
		}
		hasSource := false
		for _, k := range order {
			if k.source == sig.Source {
				hasSource = true
				break
			}
		}
		if !hasSource {
			add(candidateKey{sig.Source, schema.ContentUnknown})
		}
	}

	out := make([]*candidate, 0, len(order))
	for _, k := range order {
		c := byKey[k]
		for _, sig := range matched {
			if sig.Source != k.source || (sig.Content != "" && sig.Content != k.content) {
				continue
			}
			c.score += sig.Weight
			c.evidence = append(c.evidence, sig.Evidence)
			c.atomic = c.atomic || sig.Atomic
			if sig.Specificity > c.specificity {
				c.specificity = sig.Specificity
			}
		}
		out = append(out, c)
	}
	return out
}

// rank orders candidates by specificity, then score, then enum declaration
// order of source and content. The result does not depend on signal order.
func rank(cands []*candidate) []*candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.specificity != b.specificity {
			return a.specificity > b.specificity
		}
		if sa, sb := roundScore(a.score), roundScore(b.score); sa != sb {
			return sa > sb
		}
		if a.key.source.Rank() != b.key.source.Rank() {
			return a.key.source.Rank() < b.key.source.Rank()
		}
		return a.key.content.Rank() < b.key.content.Rank()
	})
	return cands
}

func runnerUp(c *candidate) string {
	return fmt.Sprintf("runner-up: %s/%s (%.2f, %s)", c.key.source, c.key.content, roundScore(c.score), c.specificity)
}

// diagnostics turns malformed content into evidence rather than an error.
func diagnostics(s *Sample) []string {
	var out []string
	if s.JSONErr != nil && s.Ext == "json" {
		out = append(out, "content is not valid JSON")
	}
	if s.IsBinary() {
		out = append(out, "binary content (mime "+s.MIME+")")
	}
	return out
}

func roundScore(v float64) float64 {
	return math.Min(1, math.Round(v*100)/100)
}
