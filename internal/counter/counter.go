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

// Package counter totals documents and byte volumes across a corpus.
package counter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cardinalhq/datamap/internal/driver"
	"github.com/cardinalhq/datamap/internal/jsonpath"
	"github.com/cardinalhq/datamap/internal/streamio"
	"github.com/cardinalhq/datamap/internal/walker"
)

// Options configures one count run.
type Options struct {
	InputDir   string
	OutputFile string
	// CountBytes, when set, additionally sums the byte length of the string
	// at this path in each document.
	CountBytes string
	Threads    int
}

// Totals is the count output, written as JSON to OutputFile.
type Totals struct {
	TotalDocs      int64 `json:"total_docs"`
	TotalFileSize  int64 `json:"total_file_size"`
	TotalTextBytes int64 `json:"total_text_bytes"`
}

// Run counts every line under InputDir. Lines that fail to parse still count
// toward total_docs and total_file_size; their text contribution is zero.
func Run(ctx context.Context, opts Options) (*Totals, error) {
	start := time.Now()
	files, err := walker.Walk(opts.InputDir)
	if err != nil {
		return nil, err
	}

	var docs, fileSize, textBytes atomic.Int64
	progress := driver.NewProgress(len(files))

	err = driver.ForEachFile(ctx, files, opts.Threads, func(_ context.Context, f walker.File) error {
		if err := countFile(f, opts.CountBytes, &docs, &fileSize, &textBytes); err != nil {
			return fmt.Errorf("counting %s: %w", f.RelPath, err)
		}
		progress.FileDone(f.RelPath)
		return nil
	})
	if err != nil {
		return nil, err
	}

	totals := &Totals{
		TotalDocs:      docs.Load(),
		TotalFileSize:  fileSize.Load(),
		TotalTextBytes: textBytes.Load(),
	}
	if opts.OutputFile != "" {
		encoded, err := json.Marshal(totals)
		if err != nil {
			return nil, err
		}
		if dir := filepath.Dir(opts.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		if err := os.WriteFile(opts.OutputFile, encoded, 0o644); err != nil {
			return nil, err
		}
	}

	slog.Info("count finished",
		slog.Int64("totalDocs", totals.TotalDocs),
		slog.Int64("totalFileSize", totals.TotalFileSize),
		slog.Int64("totalTextBytes", totals.TotalTextBytes),
		slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return totals, nil
}

func countFile(f walker.File, countBytes string, docs, fileSize, textBytes *atomic.Int64) error {
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
		docs.Add(1)
		fileSize.Add(int64(len(line)))

		if countBytes == "" {
			continue
		}
		doc, err := jsonpath.Parse([]byte(line))
		if err != nil {
			continue
		}
		if v, ok := jsonpath.Get(doc, countBytes); ok {
			textBytes.Add(int64(len(asString(v))))
		}
	}
}

// asString renders non-string values the way their JSON form would look.
func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(encoded)
}
