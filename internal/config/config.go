// SPDX-License-Identifier: Apache-2.0

// Package config loads run settings from defaults, an optional YAML file,
// .env files, OMEGAPARSE_* environment variables and flags, in that order.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/omegaparse/omegaparse/internal/aggregate"
	"github.com/omegaparse/omegaparse/internal/detect"
	"github.com/omegaparse/omegaparse/internal/schema"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "OMEGAPARSE_"

//go:embed config.cue
var cueSchema string

// Config is the full set of run settings.
type Config struct {
	Input       string  `json:"input,omitempty" yaml:"input"`
	OutDir      string  `json:"out_dir" yaml:"out_dir"`
	Format      string  `json:"format" yaml:"format"`
	Threshold   float64 `json:"threshold" yaml:"threshold"`
	SourceHint  string  `json:"source_hint" yaml:"source_hint"`
	Workers     int     `json:"workers" yaml:"workers"`
	SampleSize  int     `json:"sample_size" yaml:"sample_size"`
	EventsFile  string  `json:"events_file" yaml:"events_file"`
	SQLitePath  string  `json:"sqlite_path" yaml:"sqlite_path"`
	MetricsFile string  `json:"metrics_file" yaml:"metrics_file"`
	LogLevel    string  `json:"log_level" yaml:"log_level"`
	LogFormat   string  `json:"log_format" yaml:"log_format"`
}

// Error is a configuration problem. It is the only error class that aborts
// a run.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Default returns the built-in settings.
func Default() Config {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	return Config{
		OutDir:     "output",
		Format:     "json",
		Threshold:  aggregate.DefaultThreshold,
		Workers:    workers,
		SampleSize: detect.DefaultSampleSize,
		EventsFile: "events.jsonl",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty), the given .env files and the process environment.
// Missing .env files are ignored. The result is not validated; flags are
// usually applied on top before calling Validate.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, &Error{Field: "config", Reason: err.Error()}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &Error{Field: "config", Reason: yaml.FormatError(err, false, true)}
		}
	}

	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// existing variables win over .env contents
		if err := godotenv.Load(f); err != nil {
			return cfg, &Error{Field: f, Reason: err.Error()}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays OMEGAPARSE_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &Error{Field: EnvPrefix + name, Reason: fmt.Sprintf("%q is not an integer", v)}
		}
		*dst = n
		return nil
	}

	str("INPUT", &c.Input)
	str("OUT_DIR", &c.OutDir)
	str("FORMAT", &c.Format)
	str("SOURCE_HINT", &c.SourceHint)
	str("EVENTS_FILE", &c.EventsFile)
	str("SQLITE_PATH", &c.SQLitePath)
	str("METRICS_FILE", &c.MetricsFile)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	if v, ok := lookup(EnvPrefix + "THRESHOLD"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return &Error{Field: EnvPrefix + "THRESHOLD", Reason: fmt.Sprintf("%q is not a number", v)}
		}
		c.Threshold = f
	}
	if err := integer("WORKERS", &c.Workers); err != nil {
		return err
	}
	return integer("SAMPLE_SIZE", &c.SampleSize)
}

// Validate checks c against the embedded CUE schema. The first violation is
// returned as *Error.
func Validate(c Config) error {
	ctx := cuecontext.New()
	def := ctx.CompileString(cueSchema, cue.Filename("config.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	err := def.Unify(ctx.Encode(c)).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Reason: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &Error{Field: strings.Join(first.Path(), "."), Reason: fmt.Sprintf(format, args...)}
}

// Hint returns the configured source hint, empty when auto-detection is on.
func (c Config) Hint() (schema.SourceSystem, error) {
	if c.SourceHint == "" {
		return "", nil
	}
	s, err := schema.ParseSourceSystem(c.SourceHint)
	if err != nil {
		return "", &Error{Field: "source_hint", Reason: err.Error()}
	}
	return s, nil
}

// IsConfigError reports whether err is, or wraps, a configuration error.
func IsConfigError(err error) bool {
	var cfgErr *Error
	return errors.As(err, &cfgErr)
}
