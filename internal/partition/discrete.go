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
	"time"

	"github.com/cardinalhq/datamap/internal/driver"
	"github.com/cardinalhq/datamap/internal/jsonpath"
	"github.com/cardinalhq/datamap/internal/streamio"
	"github.com/cardinalhq/datamap/internal/walker"
)

// DiscreteOptions configures one discrete-partition run.
type DiscreteOptions struct {
	InputDir     string
	OutputDir    string
	PartitionKey string
	// Choices restricts categories; non-matching documents go to NoCategory.
	// Empty means dynamic categories, created on first sight.
	Choices     []string
	MaxFileSize int64
	Threads     int
}

// RunDiscrete partitions every document under InputDir by the string at
// PartitionKey into output_dir/<category>/chunk_NNNNNNNN.jsonl.zst shards.
func RunDiscrete(ctx context.Context, opts DiscreteOptions) error {
	start := time.Now()
	if opts.PartitionKey == "" {
		return fmt.Errorf("partition key must be set")
	}
	if opts.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", opts.MaxFileSize)
	}

	files, err := walker.Walk(opts.InputDir)
	if err != nil {
		return err
	}

	var allowed map[string]bool
	if len(opts.Choices) > 0 {
		allowed = make(map[string]bool, len(opts.Choices))
		for _, c := range opts.Choices {
			allowed[c] = true
		}
	}

	buckets := newTable(categoryShards(opts.OutputDir, opts.MaxFileSize))
	progress := driver.NewProgress(len(files))

	err = driver.ForEachFile(ctx, files, opts.Threads, func(_ context.Context, f walker.File) error {
		if err := partitionFile(f, opts.PartitionKey, allowed, buckets); err != nil {
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
	for category, count := range buckets.lineCounts() {
		total += count
		slog.Info("partition category",
			slog.String("category", category),
			slog.Int64("docs", count))
	}
	slog.Info("discrete partition finished",
		slog.Int64("totalDocs", total),
		slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return nil
}

func partitionFile(f walker.File, key string, allowed map[string]bool, buckets *table) error {
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

		category := NoCategory
		if value, ok := jsonpath.GetString(doc, key); ok {
			if allowed == nil || allowed[value] {
				category = value
			}
		}
		if err := buckets.get(category).writeLine([]byte(line)); err != nil {
			return err
		}
	}
}
