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

// Package mapper evaluates a processor pipeline over a corpus, routing every
// document to the step that dropped it or to the final output.
package mapper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/datamap/internal/config"
	"github.com/cardinalhq/datamap/internal/driver"
	"github.com/cardinalhq/datamap/internal/processors"
	"github.com/cardinalhq/datamap/internal/streamio"
	"github.com/cardinalhq/datamap/internal/walker"
)

// errWriteFailed marks failures of the output writers, which abort the run
// instead of being isolated to the current input file.
var errWriteFailed = errors.New("output write failed")

// Options configures one map run.
type Options struct {
	InputDir        string
	OutputDir       string
	ErrDir          string // empty: parse/processor errors are counted and discarded
	DeleteAfterRead bool
	Threads         int
	Config          *config.MapConfig
}

// Stats aggregates counters across all files of a run.
type Stats struct {
	TotalDocs       atomic.Int64
	ParseErrors     atomic.Int64
	ProcessorErrors atomic.Int64
	Survived        atomic.Int64

	stepTimeNanos []atomic.Int64
	stepRemovals  []atomic.Int64

	Elapsed time.Duration
}

func newStats(steps int) *Stats {
	return &Stats{
		stepTimeNanos: make([]atomic.Int64, steps),
		stepRemovals:  make([]atomic.Int64, steps),
	}
}

// StepRemovals returns the number of documents dropped at step i.
func (s *Stats) StepRemovals(i int) int64 { return s.stepRemovals[i].Load() }

// Run maps every file under InputDir through the configured pipeline.
func Run(ctx context.Context, opts Options) (*Stats, error) {
	start := time.Now()

	pipeline, err := processors.BuildPipeline(opts.Config)
	if err != nil {
		return nil, err
	}
	files, err := walker.Walk(opts.InputDir)
	if err != nil {
		return nil, err
	}

	stats := newStats(len(pipeline))
	progress := driver.NewProgress(len(files))

	err = driver.ForEachFile(ctx, files, opts.Threads, func(_ context.Context, f walker.File) error {
		if err := mapFile(f, pipeline, opts, stats); err != nil {
			if errors.Is(err, errWriteFailed) {
				return fmt.Errorf("mapping %s: %w", f.RelPath, err)
			}
			// Unreadable inputs are isolated; the rest of the run continues.
			slog.Error("skipping unreadable file",
				slog.String("file", f.RelPath),
				slog.Any("error", err))
		}
		progress.FileDone(f.RelPath)
		return nil
	})
	stats.Elapsed = time.Since(start)
	if err != nil {
		return stats, err
	}

	logSummary(stats, opts.Config)
	return stats, nil
}

// fileWriters lazily creates the per-step, final, and error writers of one
// input file. Writers are only created for routes that receive a document.
type fileWriters struct {
	outName string // relative path with extension normalized
	opts    *Options

	steps  []*streamio.LineWriter
	final  *streamio.LineWriter
	errors *streamio.LineWriter
}

func newFileWriters(relPath string, steps int, opts *Options) *fileWriters {
	return &fileWriters{
		outName: walker.NormalizedName(relPath),
		opts:    opts,
		steps:   make([]*streamio.LineWriter, steps),
	}
}

func (fw *fileWriters) step(i int) (*streamio.LineWriter, error) {
	if fw.steps[i] == nil {
		path := filepath.Join(fw.opts.OutputDir, fmt.Sprintf("step_%02d", i), fw.outName)
		w, err := streamio.CreateLineWriter(path)
		if err != nil {
			return nil, err
		}
		fw.steps[i] = w
	}
	return fw.steps[i], nil
}

func (fw *fileWriters) stepFinal() (*streamio.LineWriter, error) {
	if fw.final == nil {
		path := filepath.Join(fw.opts.OutputDir, "step_final", fw.outName)
		w, err := streamio.CreateLineWriter(path)
		if err != nil {
			return nil, err
		}
		fw.final = w
	}
	return fw.final, nil
}

// errSink returns the error writer, or nil when no error directory is
// configured.
func (fw *fileWriters) errSink() (*streamio.LineWriter, error) {
	if fw.opts.ErrDir == "" {
		return nil, nil
	}
	if fw.errors == nil {
		path := filepath.Join(fw.opts.ErrDir, fw.outName)
		w, err := streamio.CreateLineWriter(path)
		if err != nil {
			return nil, err
		}
		fw.errors = w
	}
	return fw.errors, nil
}

func (fw *fileWriters) all() []*streamio.LineWriter {
	out := make([]*streamio.LineWriter, 0, len(fw.steps)+2)
	for _, w := range fw.steps {
		if w != nil {
			out = append(out, w)
		}
	}
	if fw.final != nil {
		out = append(out, fw.final)
	}
	if fw.errors != nil {
		out = append(out, fw.errors)
	}
	return out
}

func (fw *fileWriters) closeAll() error {
	var errs *multierror.Error
	for _, w := range fw.all() {
		errs = multierror.Append(errs, w.Close())
	}
	return errs.ErrorOrNil()
}

func (fw *fileWriters) abortAll() {
	for _, w := range fw.all() {
		w.Abort()
	}
}

func mapFile(f walker.File, pipeline []processors.Processor, opts Options, stats *Stats) error {
	reader, err := streamio.OpenLines(f.AbsPath)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	fw := newFileWriters(f.RelPath, len(pipeline), &opts)
	for {
		line, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fw.abortAll()
			return err
		}
		if err := mapLine(line, pipeline, fw, stats); err != nil {
			fw.abortAll()
			return fmt.Errorf("%w: %w", errWriteFailed, err)
		}
	}

	if err := fw.closeAll(); err != nil {
		return fmt.Errorf("%w: %w", errWriteFailed, err)
	}
	if err := reader.Close(); err != nil {
		return err
	}
	if opts.DeleteAfterRead {
		if err := os.Remove(f.AbsPath); err != nil {
			return fmt.Errorf("deleting consumed input: %w", err)
		}
	}
	return nil
}

func mapLine(line string, pipeline []processors.Processor, fw *fileWriters, stats *Stats) error {
	stats.TotalDocs.Add(1)

	var doc any
	if err := json.Unmarshal([]byte(line), &doc); err != nil {
		stats.ParseErrors.Add(1)
		sink, werr := fw.errSink()
		if werr != nil {
			return werr
		}
		if sink != nil {
			return sink.WriteLine([]byte(line))
		}
		return nil
	}

	for i, proc := range pipeline {
		stepStart := time.Now()
		out, err := proc.Process(doc)
		stats.stepTimeNanos[i].Add(time.Since(stepStart).Nanoseconds())

		if err != nil {
			stats.ProcessorErrors.Add(1)
			sink, werr := fw.errSink()
			if werr != nil {
				return werr
			}
			if sink == nil {
				return nil
			}
			envelope, merr := json.Marshal(map[string]any{"error": err.Error(), "doc": doc})
			if merr != nil {
				return fmt.Errorf("encoding error envelope: %w", merr)
			}
			return sink.WriteLine(envelope)
		}
		if out == nil {
			stats.stepRemovals[i].Add(1)
			w, err := fw.step(i)
			if err != nil {
				return err
			}
			encoded, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encoding dropped doc: %w", err)
			}
			return w.WriteLine(encoded)
		}
		doc = out
	}

	stats.Survived.Add(1)
	w, err := fw.stepFinal()
	if err != nil {
		return err
	}
	// With no processors the input bytes pass through untouched; survivors of
	// a real pipeline are re-serialized from the possibly mutated document.
	if len(pipeline) == 0 {
		return w.WriteLine([]byte(line))
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding surviving doc: %w", err)
	}
	return w.WriteLine(encoded)
}

// logSummary emits the end-of-run accounting: wall time, document totals,
// and per-step time share and removal rates.
func logSummary(stats *Stats, cfg *config.MapConfig) {
	totalDocs := stats.TotalDocs.Load()
	var totalStepTime int64
	for i := range stats.stepTimeNanos {
		totalStepTime += stats.stepTimeNanos[i].Load()
	}

	slog.Info("map finished",
		slog.Duration("elapsed", stats.Elapsed.Round(time.Millisecond)),
		slog.Int64("totalDocs", totalDocs),
		slog.Int64("parseErrors", stats.ParseErrors.Load()),
		slog.Int64("processorErrors", stats.ProcessorErrors.Load()))

	remaining := totalDocs - stats.ParseErrors.Load()
	for i, step := range cfg.Pipeline {
		removed := stats.stepRemovals[i].Load()
		timePct := 0.0
		if totalStepTime > 0 {
			timePct = float64(stats.stepTimeNanos[i].Load()) / float64(totalStepTime) * 100
		}
		removedOfRemaining := 0.0
		if remaining > 0 {
			removedOfRemaining = float64(removed) / float64(remaining) * 100
		}
		removedOfTotal := 0.0
		if totalDocs > 0 {
			removedOfTotal = float64(removed) / float64(totalDocs) * 100
		}
		slog.Info("map step",
			slog.Int("step", i),
			slog.String("name", step.Name),
			slog.String("timePct", fmt.Sprintf("%.2f", timePct)),
			slog.Int64("removed", removed),
			slog.String("removedOfRemainingPct", fmt.Sprintf("%.2f", removedOfRemaining)),
			slog.String("removedOfTotalPct", fmt.Sprintf("%.2f", removedOfTotal)))
		remaining -= removed
	}

	survivedPct := 0.0
	if totalDocs > 0 {
		survivedPct = float64(stats.Survived.Load()) / float64(totalDocs) * 100
	}
	slog.Info("map survivors",
		slog.Int64("survived", stats.Survived.Load()),
		slog.String("ofPoolPct", fmt.Sprintf("%.2f", survivedPct)))
}
