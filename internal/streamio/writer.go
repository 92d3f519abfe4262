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

package streamio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// CompressionLevel is the zstd level for every file this toolkit writes.
const CompressionLevel = 3

var newline = []byte{'\n'}

// LineWriter writes JSONL lines into a zstd-compressed file. Close finalizes
// the zstd frame; Abort removes the partial file instead. One of the two must
// be called on every path.
type LineWriter struct {
	path    string
	file    *os.File
	buf     *bufio.Writer
	enc     *zstd.Encoder
	written int64
	lines   int64
	closed  bool
}

// CreateLineWriter creates path (and its parent directories) and returns an
// open writer. An existing file at path is truncated.
func CreateLineWriter(path string) (*LineWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	buf := bufio.NewWriter(file)
	enc, err := zstd.NewWriter(buf,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(CompressionLevel)))
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("zstd writer for %s: %w", path, err)
	}
	return &LineWriter{path: path, file: file, buf: buf, enc: enc}, nil
}

// Path returns the destination path.
func (w *LineWriter) Path() string { return w.path }

// WriteLine appends one line plus a newline to the stream.
func (w *LineWriter) WriteLine(line []byte) error {
	if w.closed {
		return fmt.Errorf("write to closed writer %s", w.path)
	}
	if _, err := w.enc.Write(line); err != nil {
		return fmt.Errorf("writing to %s: %w", w.path, err)
	}
	if _, err := w.enc.Write(newline); err != nil {
		return fmt.Errorf("writing to %s: %w", w.path, err)
	}
	w.written += int64(len(line)) + 1
	w.lines++
	return nil
}

// BytesWritten returns the uncompressed bytes written, newlines included.
func (w *LineWriter) BytesWritten() int64 { return w.written }

// Lines returns the number of lines written.
func (w *LineWriter) Lines() int64 { return w.lines }

// Flush pushes all buffered data through the encoder to the OS without
// ending the zstd frame. Lines written so far are on disk afterwards.
func (w *LineWriter) Flush() error {
	if w.closed {
		return fmt.Errorf("flush of closed writer %s", w.path)
	}
	if err := w.enc.Flush(); err != nil {
		return fmt.Errorf("flushing encoder for %s: %w", w.path, err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", w.path, err)
	}
	return nil
}

// Close finalizes the zstd frame and closes the file. On failure the partial
// file is removed so no half-frame output survives.
func (w *LineWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.enc.Close(); err != nil {
		_ = w.file.Close()
		_ = os.Remove(w.path)
		return fmt.Errorf("finalizing %s: %w", w.path, err)
	}
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		_ = os.Remove(w.path)
		return fmt.Errorf("flushing %s: %w", w.path, err)
	}
	if err := w.file.Close(); err != nil {
		_ = os.Remove(w.path)
		return fmt.Errorf("closing %s: %w", w.path, err)
	}
	return nil
}

// Abort closes and deletes the file. Used when a run fails mid-shard.
func (w *LineWriter) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	_ = w.enc.Close()
	_ = w.file.Close()
	_ = os.Remove(w.path)
}
