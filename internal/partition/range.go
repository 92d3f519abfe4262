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

package partition

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/cardinalhq/datamap/internal/driver"
	"github.com/cardinalhq/datamap/internal/jsonpath"
	"github.com/cardinalhq/datamap/internal/shardwriter"
	"github.com/cardinalhq/datamap/internal/streamio"
	"github.com/cardinalhq/datamap/internal/walker"
)

// RangeOptions configures one range-partition run. Cutpoints must be sorted
// ascending; m-1 cutpoints yield m buckets.
type RangeOptions struct {
	InputDir     string
	OutputDir    string
	Cutpoints    []float64
	ValueKey     string
	DefaultValue float64 // used when ValueKey is absent
	MaxFileSize  int64
	BucketPrefix string // directory prefix, default "bucket"
	Threads      int
}

// RunRange partitions every document by the number at ValueKey into
// output_dir/<prefix>_NNNN/shard_NNNNNNNN.jsonl.zst shards. A value equal to
// a cutpoint lands in the upper bucket.
func RunRange(ctx context.Context, opts RangeOptions) error {
	start := time.Now()
	if opts.ValueKey == "" {
		return fmt.Errorf("value key must be set")
	}
	if len(opts.Cutpoints) == 0 {
		return fmt.Errorf("at least one cutpoint is required")
	}
	if !sort.Float64sAreSorted(opts.Cutpoints) {
		return fmt.Errorf("cutpoints must be sorted ascending")
	}
	if opts.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", opts.MaxFileSize)
	}
	prefix := opts.BucketPrefix
	if prefix == "" {
		prefix = "bucket"
	}

	files, err := walker.Walk(opts.InputDir)
	if err != nil {
		return err
	}

	buckets := newTable(func(bucket string) *shardwriter.Writer {
		return shardwriter.New(shardwriter.Options{
			Dir:      filepath.Join(opts.OutputDir, bucket),
			MaxBytes: opts.MaxFileSize,
		})
	})
	progress := driver.NewProgress(len(files))

	err = driver.ForEachFile(ctx, files, opts.Threads, func(_ context.Context, f walker.File) error {
		if err := rangePartitionFile(f, opts, prefix, buckets); err != nil {
			return fmt.Errorf("partitioning %s: %w", f.RelPath, err)
		}
		progress.FileDone(f.RelPath)
		return nil
	})
	if err != nil {
		buckets.abortAll()
		return err
	}
	if err := buckets.closeAll(); err != nil {
		return err
	}

	var total int64
	for bucket, count := range buckets.lineCounts() {
		total += count
		slog.Info("partition bucket",
			slog.String("bucket", bucket),
			slog.Int64("docs", count))
	}
	slog.Info("range partition finished",
		slog.Int64("totalDocs", total),
		slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return nil
}

// bucketIndex places value into [0, len(cuts)]; equality with a cutpoint
// selects the upper bucket.
func bucketIndex(cuts []float64, value float64) int {
	return sort.Search(len(cuts), func(i int) bool { return cuts[i] > value })
}

func rangePartitionFile(f walker.File, opts RangeOptions, prefix string, buckets *table) error {
	reader, err := streamio.OpenLines(f.AbsPath)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	for {
		line, err := reader.Next()
		if err == io.EOF {
			return reader.Close()
		}
		if err != nil {
			return err
		}
		doc, err := jsonpath.Parse([]byte(line))
		if err != nil {
			return err
		}
		value, err := jsonpath.GetFloat(doc, opts.ValueKey, opts.DefaultValue)
		if err != nil {
			return err
		}

		bucket := fmt.Sprintf("%s_%04d", prefix, bucketIndex(opts.Cutpoints, value))
		if err := buckets.get(bucket).writeLine([]byte(line)); err != nil {
			return err
		}
	}
}
