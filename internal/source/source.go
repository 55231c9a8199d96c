// SPDX-License-Identifier: Apache-2.0

// Package source turns a user-supplied export (directory or ZIP archive) into a
// lazy, path-sorted sequence of file descriptors.
package source

import (
	"fmt"
	"io"
	"iter"
	"os"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// Source yields the files of one input tree in lexical path order.
type Source interface {
	Files() iter.Seq[schema.FileDescriptor]
	Name() string
	io.Closer
}

// skippedNames are OS and VCS artefacts that never carry user data.
var skippedNames = map[string]bool{
	".DS_Store":  true,
	"Thumbs.db":  true,
	".gitignore": true,
	".gitkeep":   true,
}

var skippedDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
	".venv":        true,
	"__MACOSX":     true,
}

// skipFile reports whether a file (by base name) is noise.
func skipFile(name string) bool {
	return skippedNames[name] || strings.HasPrefix(name, ".")
}

// skipPath reports whether any directory segment of a slash path is excluded.
func skipPath(p string) bool {
	dir := path.Dir(p)
	if dir == "." {
		return false
	}
	for _, seg := range strings.Split(dir, "/") {
		if skippedDirs[seg] || strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// pathLess orders slash-separated relative paths bytewise over the whole
// path. Every Source yields in this order, so a tree and its ZIP produce the
// same sequence.
func pathLess(a, b string) bool {
	return a < b
}

// Open picks a reader for input: a .zip file is read in place, a directory is
// walked. Anything else is rejected.
func Open(input string, logger logrus.FieldLogger) (Source, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("input path: %w", err)
	}
	if info.IsDir() {
		return NewDirSource(input, logger), nil
	}
	if strings.EqualFold(path.Ext(input), ".zip") {
		return OpenZip(input, logger)
	}
	return nil, fmt.Errorf("input must be a ZIP file or directory, got %q", input)
}
