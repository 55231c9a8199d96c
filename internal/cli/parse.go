// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/omegaparse/omegaparse/internal/config"
	"github.com/omegaparse/omegaparse/internal/detect"
	"github.com/omegaparse/omegaparse/internal/emit"
	"github.com/omegaparse/omegaparse/internal/logging"
	"github.com/omegaparse/omegaparse/internal/pipeline"
	"github.com/omegaparse/omegaparse/internal/source"
)

// loadConfig merges defaults, config file, env files, environment and the
// flags that were set, then validates the result.
func loadConfig(cmd *cobra.Command, opts *options, args []string) (config.Config, error) {
	cfg, err := config.Load(opts.configFile, opts.envFiles...)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			apply()
		}
	}
	set("out", func() { cfg.OutDir = opts.outDir })
	set("format", func() { cfg.Format = opts.format })
	set("threshold", func() { cfg.Threshold = opts.threshold })
	set("source", func() { cfg.SourceHint = opts.sourceHint })
	set("workers", func() { cfg.Workers = opts.workers })
	set("sample-size", func() { cfg.SampleSize = opts.sampleSize })
	set("events", func() { cfg.EventsFile = opts.eventsFile })
	set("sqlite", func() { cfg.SQLitePath = opts.sqlitePath })
	set("metrics", func() { cfg.MetricsFile = opts.metricsFile })
	set("log-level", func() { cfg.LogLevel = opts.logLevel })
	set("log-format", func() { cfg.LogFormat = opts.logFormat })
	if len(args) > 0 {
		cfg.Input = args[0]
	}

	if cfg.Input == "" {
		return cfg, &config.Error{Field: "input", Reason: "an input ZIP file or directory is required"}
	}
	if err := config.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// closer is a sink that must be closed after the run.
type closer interface {
	pipeline.Sink
	Close() error
}

func runParse(cmd *cobra.Command, opts *options, args []string) (err error) {
	start := time.Now()
	cfg, err := loadConfig(cmd, opts, args)
	if err != nil {
		return err
	}
	hint, err := cfg.Hint()
	if err != nil {
		return err
	}
	format, err := emit.ParseFormat(cfg.Format)
	if err != nil {
		return &config.Error{Field: "format", Reason: err.Error()}
	}

	logger := logging.NewLoggerTo(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	ctx := cmd.Context()

	src, err := source.Open(cfg.Input, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	var sinks []pipeline.Sink
	var closers []closer
	defer func() {
		for _, c := range closers {
			if cerr := c.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	}()

	var eventsPath string
	if cfg.EventsFile != "" {
		eventsPath = outPath(cfg.OutDir, cfg.EventsFile)
		log, err := emit.CreateEventLog(eventsPath)
		if err != nil {
			return err
		}
		sinks = append(sinks, log)
		closers = append(closers, log)
	}
	if cfg.SQLitePath != "" {
		store, err := emit.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return err
		}
		sinks = append(sinks, store)
		closers = append(closers, store)
	}
	var metrics *emit.Metrics
	if cfg.MetricsFile != "" {
		metrics = emit.NewMetrics()
		sinks = append(sinks, metrics)
	}

	detectOpts := []detect.Option{detect.WithLogger(logger), detect.WithSampleSize(cfg.SampleSize)}
	if hint != "" {
		detectOpts = append(detectOpts, detect.WithSourceHint(hint))
	}
	p := pipeline.New(
		pipeline.WithDetector(detect.New(detectOpts...)),
		pipeline.WithThreshold(cfg.Threshold),
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithSinks(sinks...),
		pipeline.WithLogger(logger),
	)

	logger.WithFields(logrus.Fields{
		"input":   src.Name(),
		"out":     cfg.OutDir,
		"workers": cfg.Workers,
	}).Info("starting run")

	report, runErr := p.Run(ctx, src.Files())

	written, err := emit.WriteReport(cfg.OutDir, format, report)
	if err != nil {
		return errors.Join(runErr, err)
	}
	if eventsPath != "" {
		written = append(written, eventsPath)
	}
	elapsed := time.Since(start)
	if metrics != nil {
		metrics.ObserveReport(report, elapsed, runErr)
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			return errors.Join(runErr, err)
		}
		written = append(written, cfg.MetricsFile)
	}

	printSummary(cmd.OutOrStdout(), report, written, elapsed, !opts.noColor)
	return runErr
}

// outPath resolves name against dir unless it is absolute.
func outPath(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
