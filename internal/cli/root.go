// SPDX-License-Identifier: Apache-2.0

// Package cli implements the omegaparse command line.
package cli

import (
	"github.com/spf13/cobra"
)

// options holds flag values. Only flags the user actually set override the
// loaded configuration.
type options struct {
	configFile  string
	envFiles    []string
	outDir      string
	format      string
	threshold   float64
	sourceHint  string
	workers     int
	sampleSize  int
	eventsFile  string
	sqlitePath  string
	metricsFile string
	logLevel    string
	logFormat   string
	noColor     bool
}

// NewRootCmd returns the root command: omegaparse <input>.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "omegaparse [flags] <input>",
		Short: "Turn personal data exports into canonical events",
		Long: "omegaparse reads a data export (a ZIP archive or a directory), classifies every file,\n" +
			"normalizes its records into canonical events and writes aggregate reports.\n\n" +
			"Supported sources: OpenAI exports, YouTube/Google Takeout, generic CSV, JSON and text files.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, opts, args)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "YAML config file")
	flags.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load (missing files are ignored)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug|info|warn|error")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: text|json")

	local := rootCmd.Flags()
	local.StringVarP(&opts.outDir, "out", "o", "", "output directory (default \"output\")")
	local.StringVarP(&opts.format, "format", "f", "", "report format: json|yaml (default json)")
	local.Float64Var(&opts.threshold, "threshold", 0, "confidence below which events are unclassified (default 0.5)")
	local.StringVar(&opts.sourceHint, "source", "", "source system hint: openai|youtube_takeout|generic_csv|generic_json|generic_text")
	local.IntVarP(&opts.workers, "workers", "w", 0, "files processed concurrently (default min(CPUs, 8))")
	local.IntVar(&opts.sampleSize, "sample-size", 0, "bytes sampled per file for detection")
	local.StringVar(&opts.eventsFile, "events", "", "events JSONL file, relative to the output directory; empty disables")
	local.StringVar(&opts.sqlitePath, "sqlite", "", "SQLite database to store events in")
	local.StringVar(&opts.metricsFile, "metrics", "", "Prometheus textfile to write run metrics to")
	local.BoolVar(&opts.noColor, "no-color", false, "disable colored summary output")

	rootCmd.AddCommand(newMCPCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
