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

// Package shuffle scatters documents uniformly across a fixed number of
// output chunks in a single pass.
package shuffle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/datamap/internal/driver"
	"github.com/cardinalhq/datamap/internal/shardwriter"
	"github.com/cardinalhq/datamap/internal/streamio"
	"github.com/cardinalhq/datamap/internal/walker"
)

// Options configures one shuffle run.
type Options struct {
	InputDir        string
	OutputDir       string
	NumOutputs      int
	MaxLen          int64 // uncompressed bytes per chunk file before rotation
	DeleteAfterRead bool
	Threads         int
	Seed            uint64
}

// chunkName builds the file name for chunk c at rotation index.
func chunkName(chunk int) func(index int) string {
	return func(index int) string {
		return fmt.Sprintf("chunk_%08d.%08d.shuffled.jsonl.zst", chunk, index)
	}
}

// Run scatters every document under InputDir to a uniformly random chunk in
// [0, NumOutputs). Chunk c is owned exclusively by worker c mod W; readers
// hand lines to owners over channels, so no writer is ever shared.
func Run(ctx context.Context, opts Options) error {
	start := time.Now()
	if opts.NumOutputs <= 0 {
		return fmt.Errorf("num outputs must be positive, got %d", opts.NumOutputs)
	}
	if opts.MaxLen <= 0 {
		return fmt.Errorf("max len must be positive, got %d", opts.MaxLen)
	}

	files, err := walker.Walk(opts.InputDir)
	if err != nil {
		return err
	}

	workers := driver.Threads(opts.Threads)
	if workers > opts.NumOutputs {
		workers = opts.NumOutputs
	}

	lanes := make([]chan []byte, workers)
	for i := range lanes {
		lanes[i] = make(chan []byte, 1024)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Owners: one goroutine per worker, writing only its own chunks.
	owners := make([]*ownerState, workers)
	for w := 0; w < workers; w++ {
		owners[w] = newOwnerState(w, opts)
		g.Go(func() error {
			return owners[w].drain(lanes[w])
		})
	}

	// Readers: scatter lines to the owning worker's lane.
	readErr := driver.ForEachChunk(gctx, files, workers, func(rctx context.Context, worker int, chunk []walker.File) error {
		rng := rand.New(rand.NewPCG(opts.Seed+uint64(worker), opts.Seed^0x9e3779b97f4a7c15))
		for _, f := range chunk {
			if err := scatterFile(rctx, f, opts.NumOutputs, rng, lanes); err != nil {
				return fmt.Errorf("shuffling %s: %w", f.RelPath, err)
			}
		}
		return nil
	})
	for _, lane := range lanes {
		close(lane)
	}

	// A failed owner cancels the readers, so a writer error is the root
	// cause whenever both sides report one.
	writeErr := g.Wait()
	if writeErr != nil {
		return writeErr
	}
	if readErr != nil {
		return readErr
	}

	var total int64
	for _, o := range owners {
		total += o.lines()
	}
	if opts.DeleteAfterRead {
		for _, f := range files {
			if err := os.Remove(f.AbsPath); err != nil {
				return fmt.Errorf("deleting consumed input: %w", err)
			}
		}
	}
	slog.Info("shuffle finished",
		slog.Int64("totalDocs", total),
		slog.Int("chunks", opts.NumOutputs),
		slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return nil
}

// Routed lines carry their chunk id as a fixed-width decimal prefix so the
// owning worker knows which writer to use.
const headerLen = 8

func encodeLane(chunk int, line string) []byte {
	buf := make([]byte, headerLen+len(line))
	copy(buf, fmt.Sprintf("%08d", chunk))
	copy(buf[headerLen:], line)
	return buf
}

func decodeLane(buf []byte) (int, []byte) {
	var chunk int
	for _, c := range buf[:headerLen] {
		chunk = chunk*10 + int(c-'0')
	}
	return chunk, buf[headerLen:]
}

func scatterFile(ctx context.Context, f walker.File, numOutputs int, rng *rand.Rand, lanes []chan []byte) error {
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
		chunk := rng.IntN(numOutputs)
		select {
		case lanes[chunk%len(lanes)] <- encodeLane(chunk, line):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ownerState holds the rotating writers for the chunks one worker owns.
type ownerState struct {
	worker  int
	writers map[int]*shardwriter.Writer
	opts    Options
}

func newOwnerState(worker int, opts Options) *ownerState {
	return &ownerState{
		worker:  worker,
		writers: make(map[int]*shardwriter.Writer),
		opts:    opts,
	}
}

func (o *ownerState) drain(lane <-chan []byte) error {
	for buf := range lane {
		chunk, line := decodeLane(buf)
		w, ok := o.writers[chunk]
		if !ok {
			w = shardwriter.New(shardwriter.Options{
				Dir:      o.opts.OutputDir,
				Name:     chunkName(chunk),
				MaxBytes: o.opts.MaxLen,
			})
			o.writers[chunk] = w
		}
		if err := w.WriteLine(line); err != nil {
			o.abort()
			return err
		}
	}
	for chunk, w := range o.writers {
		if err := w.Close(); err != nil {
			return fmt.Errorf("closing chunk %d: %w", chunk, err)
		}
	}
	return nil
}

func (o *ownerState) abort() {
	for _, w := range o.writers {
		w.Abort()
	}
}

func (o *ownerState) lines() int64 {
	var n int64
	for _, w := range o.writers {
		n += w.TotalLines()
	}
	return n
}
