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

// Package shardwriter rotates JSONL output across size- and line-bounded
// zstd shards.
package shardwriter

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/cardinalhq/datamap/internal/streamio"
)

// IndexSource hands out shard indices. Implementations decide whether
// indices are private to one writer or shared across workers.
type IndexSource interface {
	Next() int
}

// Sequence is a single-owner index source starting at a fixed value.
type Sequence struct {
	next int
}

// NewSequence returns a Sequence starting at start.
func NewSequence(start int) *Sequence { return &Sequence{next: start} }

func (s *Sequence) Next() int {
	n := s.next
	s.next++
	return n
}

// AtomicSequence is a shared index source safe for concurrent writers.
type AtomicSequence struct {
	n atomic.Int64
}

func (s *AtomicSequence) Next() int {
	return int(s.n.Add(1)) - 1
}

// Count returns how many indices have been handed out.
func (s *AtomicSequence) Count() int64 { return s.n.Load() }

// Options configures a Writer. Name maps a shard index to a file name
// relative to Dir. Zero limits mean unlimited.
type Options struct {
	Dir      string
	Name     func(index int) string
	MaxBytes int64
	MaxLines int64
	Index    IndexSource
}

// ShardName is the default shard naming scheme.
func ShardName(index int) string {
	return fmt.Sprintf("shard_%08d.jsonl.zst", index)
}

// Writer appends documents one per line, rotating to a new shard whenever a
// configured limit is reached. Shards are created lazily on first write; a
// single line may push a shard over its byte limit before rotation.
type Writer struct {
	opts       Options
	cur        *streamio.LineWriter
	totalLines int64
	closed     bool
}

// New returns a Writer. Callers that require bounded shards must set at
// least one limit; New does not enforce that, the strategy layer does.
func New(opts Options) *Writer {
	if opts.Name == nil {
		opts.Name = ShardName
	}
	if opts.Index == nil {
		opts.Index = NewSequence(0)
	}
	return &Writer{opts: opts}
}

// WriteLine appends one document line, rotating afterwards if a limit was
// reached.
func (w *Writer) WriteLine(line []byte) error {
	if w.closed {
		return fmt.Errorf("write to closed shard writer in %s", w.opts.Dir)
	}
	if w.cur == nil {
		if err := w.open(); err != nil {
			return err
		}
	}
	if err := w.cur.WriteLine(line); err != nil {
		return err
	}
	w.totalLines++

	overBytes := w.opts.MaxBytes > 0 && w.cur.BytesWritten() >= w.opts.MaxBytes
	overLines := w.opts.MaxLines > 0 && w.cur.Lines() >= w.opts.MaxLines
	if overBytes || overLines {
		return w.Rotate()
	}
	return nil
}

func (w *Writer) open() error {
	name := w.opts.Name(w.opts.Index.Next())
	lw, err := streamio.CreateLineWriter(filepath.Join(w.opts.Dir, name))
	if err != nil {
		return err
	}
	w.cur = lw
	return nil
}

// Rotate finalizes the current shard, if any. The next write opens a fresh
// shard with the next index.
func (w *Writer) Rotate() error {
	if w.cur == nil {
		return nil
	}
	err := w.cur.Close()
	w.cur = nil
	return err
}

// Flush pushes the open shard's buffered data to disk without rotating.
func (w *Writer) Flush() error {
	if w.cur == nil {
		return nil
	}
	return w.cur.Flush()
}

// TotalLines returns the number of lines written across all shards.
func (w *Writer) TotalLines() int64 { return w.totalLines }

// Close finalizes the open shard. Safe to call twice.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.Rotate()
}

// Abort removes the open partial shard. Finalized shards are left in place.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	if w.cur != nil {
		w.cur.Abort()
		w.cur = nil
	}
}
