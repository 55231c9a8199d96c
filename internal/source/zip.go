// SPDX-License-Identifier: Apache-2.0

package source

import (
	"fmt"
	"io"
	"iter"
	"path"
	"sort"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"

	"github.com/omegaparse/omegaparse/internal/schema"
)

// ZipSource reads entries straight out of an archive without extracting it to disk.
type ZipSource struct {
	name    string
	archive *zip.ReadCloser
	logger  logrus.FieldLogger
}

// OpenZip opens the archive at p. The caller must Close it.
func OpenZip(p string, logger logrus.FieldLogger) (*ZipSource, error) {
	rc, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("invalid ZIP file: %w", err)
	}
	return &ZipSource{name: p, archive: rc, logger: logger}, nil
}

func (z *ZipSource) Name() string {
	return z.name
}

func (z *ZipSource) Close() error {
	return z.archive.Close()
}

// Files yields archive entries sorted by name, since archive order depends on
// whichever tool produced the ZIP.
func (z *ZipSource) Files() iter.Seq[schema.FileDescriptor] {
	return func(yield func(schema.FileDescriptor) bool) {
		type zipEntry struct {
			path string
			file *zip.File
		}
		entries := make([]zipEntry, 0, len(z.archive.File))
		for _, f := range z.archive.File {
			if f.FileInfo().IsDir() {
				continue
			}
			fd := schema.NewFileDescriptor(f.Name, 0, "", nil)
			if skipPath(fd.Path) || skipFile(path.Base(fd.Path)) {
				continue
			}
			entries = append(entries, zipEntry{path: fd.Path, file: f})
		}
		sort.SliceStable(entries, func(i, j int) bool {
			return pathLess(entries[i].path, entries[j].path)
		})

		for _, e := range entries {
			entry := e.file
			open := func() (io.ReadCloser, error) { return entry.Open() }
			fd := schema.NewFileDescriptor(e.path, int64(entry.UncompressedSize64), sniffEncoding(open), open)
			if !yield(fd) {
				return
			}
		}
		z.logger.WithField("files", len(entries)).Debug("finished reading archive")
	}
}
