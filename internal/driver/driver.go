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

// Package driver runs a per-file worker pool over discovered corpus files.
package driver

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/datamap/internal/walker"
)

// Threads resolves a --threads flag value: 0 means all CPUs.
func Threads(requested int) int {
	if requested <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return requested
}

// Progress tracks completed files for periodic logging.
type Progress struct {
	total int64
	done  atomic.Int64
	start time.Time
}

// NewProgress starts tracking total files from now.
func NewProgress(total int) *Progress {
	return &Progress{total: int64(total), start: time.Now()}
}

// FileDone records one completed file and logs every hundredth one.
func (p *Progress) FileDone(relPath string) {
	done := p.done.Add(1)
	if done%100 == 0 || done == p.total {
		slog.Info("processed files",
			slog.Int64("done", done),
			slog.Int64("total", p.total),
			slog.Duration("elapsed", time.Since(p.start).Round(time.Millisecond)))
	} else {
		slog.Debug("processed file",
			slog.String("file", relPath),
			slog.Int64("done", done),
			slog.Int64("total", p.total))
	}
}

// Elapsed is the wall time since tracking started.
func (p *Progress) Elapsed() time.Duration {
	return time.Since(p.start)
}

// ForEachFile runs fn over files with at most threads workers. The first
// error cancels the group; remaining workers drain after their current file.
func ForEachFile(ctx context.Context, files []walker.File, threads int, fn func(ctx context.Context, f walker.File) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Threads(threads))

	for _, f := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			return fn(gctx, f)
		})
	}
	return g.Wait()
}

// ForEachChunk partitions files into one size-balanced chunk per worker and
// runs fn once per non-empty chunk. Used by strategies that keep per-worker
// state (reservoirs, chunk writers).
func ForEachChunk(ctx context.Context, files []walker.File, threads int, fn func(ctx context.Context, worker int, chunk []walker.File) error) error {
	chunks := walker.SplitChunks(files, Threads(threads))

	g, gctx := errgroup.WithContext(ctx)
	for worker, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		g.Go(func() error {
			return fn(gctx, worker, chunk)
		})
	}
	return g.Wait()
}
