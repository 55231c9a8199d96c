// SPDX-License-Identifier: Apache-2.0

package source

import (
	"bytes"
	"errors"
	"io"
	"unicode/utf8"

	"github.com/gogs/chardet"
)

// encodingSampleSize bounds how much of a file is read to guess its encoding.
const encodingSampleSize = 4096

// minCharsetConfidence is the chardet score below which the guess is dropped.
const minCharsetConfidence = 50

var (
	bomUTF8    = []byte{0xef, 0xbb, 0xbf}
	bomUTF16LE = []byte{0xff, 0xfe}
	bomUTF16BE = []byte{0xfe, 0xff}
)

func sniffEncoding(open func() (io.ReadCloser, error)) string {
	rc, err := open()
	if err != nil {
		return ""
	}
	defer rc.Close()
	buf := make([]byte, encodingSampleSize)
	n, err := io.ReadFull(rc, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return ""
	}
	return DetectEncoding(buf[:n], n < encodingSampleSize)
}

// DetectEncoding guesses the character set of sample. complete reports whether
// sample is the whole file. It returns "" for binary or undecidable content.
func DetectEncoding(sample []byte, complete bool) string {
	switch {
	case len(sample) == 0:
		return "UTF-8"
	case bytes.HasPrefix(sample, bomUTF8):
		return "UTF-8"
	case bytes.HasPrefix(sample, bomUTF16LE):
		return "UTF-16LE"
	case bytes.HasPrefix(sample, bomUTF16BE):
		return "UTF-16BE"
	}

	body := sample
	if !complete {
		body = trimPartialRune(sample)
	}
	if utf8.Valid(body) && bytes.IndexByte(body, 0) < 0 {
		return "UTF-8"
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return ""
	}

	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || res == nil || res.Confidence < minCharsetConfidence {
		return ""
	}
	return res.Charset
}

// trimPartialRune drops a multi-byte sequence cut off by the sample boundary.
func trimPartialRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return b
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}
