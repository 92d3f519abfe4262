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

// Package reshard repacks JSONL corpora into uniformly bounded shards.
package reshard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/datamap/internal/driver"
	"github.com/cardinalhq/datamap/internal/shardwriter"
	"github.com/cardinalhq/datamap/internal/streamio"
	"github.com/cardinalhq/datamap/internal/walker"
)

// Options configures one reshard run. At least one of MaxLines and MaxSize
// must be positive.
type Options struct {
	InputDir  string
	OutputDir string
	MaxLines  int64
	MaxSize   int64 // uncompressed bytes
	// Subsample keeps each document with this probability. Zero or >= 1
	// disables subsampling.
	Subsample       float64
	KeepDirs        bool
	DeleteAfterRead bool
	Threads         int
	Seed            uint64
}

// errShardWrite marks failures of the output writer, which abort the run
// instead of being isolated to the current input file.
var errShardWrite = errors.New("shard write failed")

// unit is one worker's slice of the input: a set of files sharing an output
// directory and an index source. Units of the same subdirectory share the
// index source, so shard IDs never collide.
type unit struct {
	outDir string
	files  []walker.File
	index  shardwriter.IndexSource
}

// Run repacks every file under InputDir into shard_NNNNNNNN.jsonl.zst files
// bounded by the configured limits. With KeepDirs, the subdirectory layout is
// preserved and shard numbering restarts per subdirectory.
func Run(ctx context.Context, opts Options) error {
	start := time.Now()
	if opts.MaxLines <= 0 && opts.MaxSize <= 0 {
		return fmt.Errorf("either max lines or max size must be positive")
	}

	files, err := walker.Walk(opts.InputDir)
	if err != nil {
		return err
	}
	threads := driver.Threads(opts.Threads)

	var units []unit
	var shards *shardwriter.AtomicSequence
	if opts.KeepDirs {
		units = splitByDir(files, opts.OutputDir, threads)
	} else {
		shards = &shardwriter.AtomicSequence{}
		for _, chunk := range walker.SplitChunks(files, threads) {
			units = append(units, unit{outDir: opts.OutputDir, files: chunk, index: shards})
		}
	}

	var kept, seen atomic.Int64
	progress := driver.NewProgress(len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i, u := range units {
		rng := rand.New(rand.NewPCG(opts.Seed+uint64(i), opts.Seed^0x9e3779b97f4a7c15))
		g.Go(func() error {
			return reshardUnit(gctx, u, opts, rng, &kept, &seen, progress)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("reshard finished",
		slog.Int64("docsSeen", seen.Load()),
		slog.Int64("docsWritten", kept.Load()),
		slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return nil
}

// splitByDir groups files by parent directory, splitting a large directory
// into several units that share the directory's shard sequence. Unit counts
// are proportional to each directory's byte share.
func splitByDir(files []walker.File, outputDir string, threads int) []unit {
	byDir := make(map[string][]walker.File)
	var totalSize int64
	for _, f := range files {
		dir := filepath.Dir(f.RelPath)
		byDir[dir] = append(byDir[dir], f)
		totalSize += f.Size
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var units []unit
	for _, dir := range dirs {
		dirFiles := byDir[dir]
		var dirSize int64
		for _, f := range dirFiles {
			dirSize += f.Size
		}
		parts := 1
		if totalSize > 0 {
			parts = int(float64(threads) * float64(dirSize) / float64(totalSize))
			if parts < 1 {
				parts = 1
			}
		}

		outDir := outputDir
		if dir != "." {
			outDir = filepath.Join(outputDir, filepath.FromSlash(dir))
		}
		seq := &shardwriter.AtomicSequence{}
		for _, chunk := range walker.SplitChunks(dirFiles, parts) {
			units = append(units, unit{outDir: outDir, files: chunk, index: seq})
		}
	}
	return units
}

func reshardUnit(ctx context.Context, u unit, opts Options, rng *rand.Rand, kept, seen *atomic.Int64, progress *driver.Progress) error {
	writer := shardwriter.New(shardwriter.Options{
		Dir:      u.outDir,
		MaxBytes: opts.MaxSize,
		MaxLines: opts.MaxLines,
		Index:    u.index,
	})

	for _, f := range u.files {
		select {
		case <-ctx.Done():
			writer.Abort()
			return ctx.Err()
		default:
		}

		if err := reshardFile(f, opts, rng, writer, kept, seen); err != nil {
			if errors.Is(err, errShardWrite) {
				writer.Abort()
				return err
			}
			// Unreadable inputs are isolated; the rest of the run continues.
			slog.Error("skipping unreadable file",
				slog.String("file", f.RelPath),
				slog.Any("error", err))
			progress.FileDone(f.RelPath)
			continue
		}
		if opts.DeleteAfterRead {
			// The open shard must reach disk before its source disappears.
			if err := writer.Flush(); err != nil {
				writer.Abort()
				return fmt.Errorf("%w: %w", errShardWrite, err)
			}
			if err := os.Remove(f.AbsPath); err != nil {
				writer.Abort()
				return fmt.Errorf("deleting consumed input: %w", err)
			}
		}
		progress.FileDone(f.RelPath)
	}
	return writer.Close()
}

func reshardFile(f walker.File, opts Options, rng *rand.Rand, writer *shardwriter.Writer, kept, seen *atomic.Int64) error {
	reader, err := streamio.OpenLines(f.AbsPath)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	subsampling := opts.Subsample > 0 && opts.Subsample < 1
	for {
		line, err := reader.Next()
		if err == io.EOF {
			return reader.Close()
		}
		if err != nil {
			return err
		}
		seen.Add(1)
		if subsampling && rng.Float64() >= opts.Subsample {
			continue
		}
		if err := writer.WriteLine([]byte(line)); err != nil {
			return fmt.Errorf("%w: %w", errShardWrite, err)
		}
		kept.Add(1)
	}
}
