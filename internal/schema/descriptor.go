// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"bytes"
	"errors"
	"io"
	"path"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Opener yields a fresh reader over a file's bytes.
type Opener func() (io.ReadCloser, error)

// FileDescriptor describes one file handed over by a reader. Path is relative
// and slash-separated. Encoding is a best-effort guess ("" when unknown).
type FileDescriptor struct {
	Path     string
	Size     int64
	Encoding string
	open     Opener
}

// NewFileDescriptor builds a descriptor around an opener.
func NewFileDescriptor(p string, size int64, enc string, open Opener) FileDescriptor {
	return FileDescriptor{
		Path:     strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/"),
		Size:     size,
		Encoding: enc,
		open:     open,
	}
}

// MemoryFile is a descriptor over in-memory content, used by the tool surface
// and tests.
func MemoryFile(p string, content []byte) FileDescriptor {
	data := bytes.Clone(content)
	return NewFileDescriptor(p, int64(len(data)), "", func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

var errNoOpener = errors.New("descriptor has no content accessor")

// Open returns the raw, undecoded bytes.
func (fd FileDescriptor) Open() (io.ReadCloser, error) {
	if fd.open == nil {
		return nil, errNoOpener
	}
	return fd.open()
}

// Name is the base name of the file.
func (fd FileDescriptor) Name() string {
	return path.Base(fd.Path)
}

// Ext is the lower-cased extension without the dot.
func (fd FileDescriptor) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(fd.Path)), ".")
}

// Prefix reads at most n raw bytes from the start of the file.
func (fd FileDescriptor) Prefix(n int) ([]byte, error) {
	rc, err := fd.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(rc, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

// OpenText returns the content decoded to UTF-8 with any byte order mark removed.
func (fd FileDescriptor) OpenText() (io.ReadCloser, error) {
	rc, err := fd.Open()
	if err != nil {
		return nil, err
	}
	return readCloser{
		Reader: transform.NewReader(rc, unicode.BOMOverride(decoderFor(fd.Encoding))),
		Closer: rc,
	}, nil
}

// TextPrefix reads at most n decoded bytes. complete reports whether the whole
// file fit in the prefix.
func (fd FileDescriptor) TextPrefix(n int) (prefix []byte, complete bool, err error) {
	rc, err := fd.OpenText()
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(rc, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return buf[:read], true, nil
	case err != nil:
		return nil, false, err
	}
	// exactly n bytes read; the file is complete only if nothing follows
	var next [1]byte
	more, _ := rc.Read(next[:])
	return buf, more == 0, nil
}

// ReadText reads the whole content decoded to UTF-8.
func (fd FileDescriptor) ReadText() (string, error) {
	rc, err := fd.OpenText()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// decoderFor picks a decoder by WHATWG label. UTF-8 and unknown labels pass
// bytes through untouched so invalid sequences are preserved, not replaced.
func decoderFor(label string) transform.Transformer {
	switch strings.ToLower(label) {
	case "", "utf-8", "utf8", "ascii", "us-ascii":
		return encoding.Nop.NewDecoder()
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return encoding.Nop.NewDecoder()
	}
	return enc.NewDecoder()
}
