// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/omegaparse/omegaparse/internal/aggregate"
)

// colorEnabled reports whether w is a terminal that should get colors.
func colorEnabled(w io.Writer, allowed bool) bool {
	if !allowed || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printSummary(w io.Writer, r aggregate.Report, written []string, elapsed time.Duration, allowColor bool) {
	title := color.New(color.Bold)
	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	dim := color.New(color.Faint)
	if colorEnabled(w, allowColor) {
		for _, c := range []*color.Color{title, ok, warn, dim} {
			c.EnableColor()
		}
	} else {
		for _, c := range []*color.Color{title, ok, warn, dim} {
			c.DisableColor()
		}
	}

	s := r.Summary
	title.Fprintln(w, "omegaparse summary")
	fmt.Fprintf(w, "  files:        %d", s.TotalFiles)
	if s.SkippedFiles > 0 {
		warn.Fprintf(w, " (%d skipped)", s.SkippedFiles)
	}
	fmt.Fprintln(w)
	ok.Fprintf(w, "  events:       %d\n", s.TotalEvents)
	unclassified := ok
	if s.UnclassifiedEvents > 0 {
		unclassified = warn
	}
	unclassified.Fprintf(w, "  unclassified: %d (threshold %.2f)\n", s.UnclassifiedEvents, s.Threshold)
	fmt.Fprintf(w, "  no timestamp: %d\n", s.EventsWithoutTimestamp)

	if len(r.ByContentType) > 0 {
		title.Fprintln(w, "by content type")
		for _, c := range r.ByContentType {
			fmt.Fprintf(w, "  %-14s %d\n", c.Key, c.Count)
		}
	}
	if len(r.BySourceSystem) > 0 {
		title.Fprintln(w, "by source system")
		for _, c := range r.BySourceSystem {
			fmt.Fprintf(w, "  %-16s %d\n", c.Key, c.Count)
		}
	}

	for _, p := range written {
		dim.Fprintf(w, "wrote %s\n", p)
	}
	dim.Fprintf(w, "done in %s\n", elapsed.Round(time.Millisecond))
}
