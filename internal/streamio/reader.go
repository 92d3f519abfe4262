// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package streamio opens corpus files as line streams with transparent
// compression, and writes zstd-compressed JSONL back out.
package streamio

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	// MaxLineSizeBytes bounds a single JSONL line. Documents beyond this are
	// treated as a read error for the file.
	MaxLineSizeBytes = 64 * 1024 * 1024

	lineBufferSize = 64 * 1024
)

type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var firstErr error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LineReader iterates over the lines of a possibly-compressed JSONL file.
// It is forward-only and must be closed.
type LineReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	closed  bool
}

// OpenLines opens path and wraps it in a decompressor chosen by suffix:
// .gz means gzip, .zst means zstd, anything else is read as-is.
func OpenLines(path string) (*LineReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	var rc io.ReadCloser = file
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		gz, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("gzip reader for %s: %w", path, err)
		}
		rc = &multiReadCloser{Reader: gz, closers: []io.Closer{gz, file}}
	case strings.HasSuffix(lower, ".zst"):
		zr, err := zstd.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("zstd reader for %s: %w", path, err)
		}
		zrc := zr.IOReadCloser()
		rc = &multiReadCloser{Reader: zrc, closers: []io.Closer{zrc, file}}
	}

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, lineBufferSize), MaxLineSizeBytes)
	return &LineReader{scanner: scanner, closer: rc}, nil
}

// Next returns the next line without its terminator. It returns io.EOF when
// the stream is exhausted; decompression and read failures are returned
// as-is and end the stream.
func (r *LineReader) Next() (string, error) {
	if r.closed {
		return "", io.EOF
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

// Close releases the underlying file and decompressor. Safe to call twice.
func (r *LineReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
