// SPDX-License-Identifier: Apache-2.0

package source

import (
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// DirSource walks a directory tree. Symlinks and special files are ignored.
type DirSource struct {
	root   string
	logger logrus.FieldLogger
}

// NewDirSource creates a DirSource rooted at root.
func NewDirSource(root string, logger logrus.FieldLogger) *DirSource {
	return &DirSource{root: root, logger: logger}
}

func (d *DirSource) Name() string {
	return d.root
}

func (d *DirSource) Close() error {
	return nil
}

// Files lists the tree, then yields files in full relative path order, the
// same order ZipSource uses. Contents are only opened as files are yielded.
// Directories that cannot be listed are logged and skipped; files that cannot
// be read still produce a descriptor so the failure is reported downstream.
func (d *DirSource) Files() iter.Seq[schema.FileDescriptor] {
	return func(yield func(schema.FileDescriptor) bool) {
		type dirEntry struct {
			rel, full string
			size      int64
		}
		var entries []dirEntry
		_ = filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
			if err != nil {
				d.logger.WithError(err).WithField("path", p).Warn("cannot read directory entry")
				if entry != nil && entry.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			rel, relErr := filepath.Rel(d.root, p)
			if relErr != nil || rel == "." {
				return nil
			}
			if entry.IsDir() {
				if skippedDirs[entry.Name()] || (len(entry.Name()) > 0 && entry.Name()[0] == '.') {
					return filepath.SkipDir
				}
				return nil
			}
			if !entry.Type().IsRegular() || skipFile(entry.Name()) {
				return nil
			}

			var size int64
			if info, infoErr := entry.Info(); infoErr == nil {
				size = info.Size()
			}
			entries = append(entries, dirEntry{rel: filepath.ToSlash(rel), full: p, size: size})
			if len(entries)%100 == 0 {
				d.logger.WithField("files", len(entries)).Debug("walking input tree")
			}
			return nil
		})
		sort.SliceStable(entries, func(i, j int) bool {
			return pathLess(entries[i].rel, entries[j].rel)
		})
		d.logger.WithField("files", len(entries)).Debug("finished walking input tree")

		for _, e := range entries {
			full := e.full
			open := func() (io.ReadCloser, error) { return os.Open(full) }
			if !yield(schema.NewFileDescriptor(e.rel, e.size, sniffEncoding(open), open)) {
				return
			}
		}
	}
}
