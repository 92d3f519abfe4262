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

// Package partition routes documents into category or value-range buckets,
// each backed by a bounded sharded writer.
package partition

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/datamap/internal/shardwriter"
)

// NoCategory is the bucket for documents that match no configured choice.
const NoCategory = "no_category"

// bucketWriter serializes writes to one bucket's sharded writer. Buckets are
// shared across workers, so each write takes the bucket lock.
type bucketWriter struct {
	mu sync.Mutex
	w  *shardwriter.Writer
}

func (b *bucketWriter) writeLine(line []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.w.WriteLine(line)
}

// table lazily creates one bucketWriter per bucket name. Creation is
// lock-protected; lookups after first insertion take only a read lock.
type table struct {
	mu      sync.RWMutex
	buckets map[string]*bucketWriter
	open    func(bucket string) *shardwriter.Writer
}

func newTable(open func(bucket string) *shardwriter.Writer) *table {
	return &table{buckets: make(map[string]*bucketWriter), open: open}
}

func (t *table) get(bucket string) *bucketWriter {
	t.mu.RLock()
	bw, ok := t.buckets[bucket]
	t.mu.RUnlock()
	if ok {
		return bw
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if bw, ok := t.buckets[bucket]; ok {
		return bw
	}
	bw = &bucketWriter{w: t.open(bucket)}
	t.buckets[bucket] = bw
	return bw
}

// lineCounts returns per-bucket written line totals.
func (t *table) lineCounts() map[string]int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := make(map[string]int64, len(t.buckets))
	for name, bw := range t.buckets {
		counts[name] = bw.w.TotalLines()
	}
	return counts
}

func (t *table) closeAll() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var errs *multierror.Error
	for name, bw := range t.buckets {
		if err := bw.w.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing bucket %s: %w", name, err))
		}
	}
	return errs.ErrorOrNil()
}

func (t *table) abortAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, bw := range t.buckets {
		bw.w.Abort()
	}
}

// categoryShards opens a chunk-named sharded writer under dir/<bucket>/.
func categoryShards(dir string, maxBytes int64) func(bucket string) *shardwriter.Writer {
	return func(bucket string) *shardwriter.Writer {
		return shardwriter.New(shardwriter.Options{
			Dir:      filepath.Join(dir, bucket),
			Name:     func(index int) string { return fmt.Sprintf("chunk_%08d.jsonl.zst", index) },
			MaxBytes: maxBytes,
		})
	}
}
