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

package reservoir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/cardinalhq/datamap/internal/driver"
	"github.com/cardinalhq/datamap/internal/jsonpath"
	"github.com/cardinalhq/datamap/internal/streamio"
	"github.com/cardinalhq/datamap/internal/walker"
)

// Options configures one reservoir-sample run.
type Options struct {
	InputDir      string
	OutputFile    string
	Key           string // path of the sampled value
	Size          int    // reservoir capacity k
	TokenWeighted bool
	TextKey       string // path of the weighed text, token-weighted mode only
	Threads       int
	Seed          uint64
}

// Run samples Size values of Key across all files under InputDir and writes
// the reservoir to OutputFile as JSON.
func Run(ctx context.Context, opts Options) error {
	start := time.Now()
	if opts.Size <= 0 {
		return fmt.Errorf("reservoir size must be positive, got %d", opts.Size)
	}

	files, err := walker.Walk(opts.InputDir)
	if err != nil {
		return err
	}

	var payload any
	if opts.TokenWeighted {
		payload, err = runWeighted(ctx, files, opts)
	} else {
		payload, err = runUniform(ctx, files, opts)
	}
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(opts.OutputFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(opts.OutputFile, encoded, 0o644); err != nil {
		return err
	}
	slog.Info("reservoir sampled",
		slog.String("output", opts.OutputFile),
		slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return nil
}

// workerRNG derives an independent per-worker generator from the run seed.
func workerRNG(seed uint64, worker int) *rand.Rand {
	return rand.New(rand.NewPCG(seed+uint64(worker), seed^0x9e3779b97f4a7c15+uint64(worker)))
}

func runUniform(ctx context.Context, files []walker.File, opts Options) ([]float64, error) {
	var mu sync.Mutex
	var parts []*Uniform

	err := driver.ForEachChunk(ctx, files, opts.Threads, func(_ context.Context, worker int, chunk []walker.File) error {
		res := NewUniform(opts.Size, workerRNG(opts.Seed, worker))
		for _, f := range chunk {
			if err := sampleUniformFile(f, opts.Key, res); err != nil {
				return fmt.Errorf("sampling %s: %w", f.RelPath, err)
			}
		}
		mu.Lock()
		parts = append(parts, res)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	merged := NewUniform(opts.Size, workerRNG(opts.Seed, len(parts)))
	for _, part := range parts {
		merged.Merge(part)
	}
	slog.Info("uniform reservoir built",
		slog.Int("size", len(merged.Values())),
		slog.Int64("seen", merged.Seen()))
	if merged.Values() == nil {
		return []float64{}, nil
	}
	return merged.Values(), nil
}

func sampleUniformFile(f walker.File, key string, res *Uniform) error {
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
		v, ok := jsonpath.Get(doc, key)
		if !ok {
			return fmt.Errorf("missing key %q", key)
		}
		num, ok := v.(float64)
		if !ok {
			return fmt.Errorf("key %q is %T, want number", key, v)
		}
		res.Add(num)
	}
}

func runWeighted(ctx context.Context, files []walker.File, opts Options) ([]Percentile, error) {
	// Fail before any file is read when the tokenizer is unavailable.
	if _, err := tiktoken.GetEncoding("cl100k_base"); err != nil {
		return nil, fmt.Errorf("loading cl100k_base tokenizer: %w", err)
	}

	var mu sync.Mutex
	var parts []*Weighted

	err := driver.ForEachChunk(ctx, files, opts.Threads, func(_ context.Context, worker int, chunk []walker.File) error {
		tokenizer, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return err
		}
		res := NewWeighted(opts.Size, workerRNG(opts.Seed, worker))
		for _, f := range chunk {
			if err := sampleWeightedFile(f, opts.Key, opts.TextKey, tokenizer, res); err != nil {
				return fmt.Errorf("sampling %s: %w", f.RelPath, err)
			}
		}
		mu.Lock()
		parts = append(parts, res)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	merged := NewWeighted(opts.Size, workerRNG(opts.Seed, len(parts)))
	for _, part := range parts {
		merged.Merge(part)
	}
	slog.Info("weighted reservoir built", slog.Int("size", len(merged.Items())))
	return Percentiles(merged.Items()), nil
}

func sampleWeightedFile(f walker.File, key, textKey string, tokenizer *tiktoken.Tiktoken, res *Weighted) error {
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
		v, ok := jsonpath.Get(doc, key)
		if !ok {
			return fmt.Errorf("missing key %q", key)
		}
		num, ok := v.(float64)
		if !ok {
			return fmt.Errorf("key %q is %T, want number", key, v)
		}
		text, _ := jsonpath.GetString(doc, textKey)
		weight := len(tokenizer.Encode(text, []string{"all"}, nil))
		if weight < 1 {
			weight = 1
		}
		res.Add(num, float64(weight))
	}
}

// Cutpoints loads a reservoir output file and derives m-1 ascending bucket
// cutpoints for an m-way range partition. Uniform reservoirs (arrays of
// numbers) cut at evenly spaced ranks; weighted reservoirs (arrays of
// percentile objects) cut at the first value at or past each i/m percentile.
func Cutpoints(path string, numBuckets int) ([]float64, error) {
	if numBuckets < 2 {
		return nil, fmt.Errorf("num buckets must be at least 2, got %d", numBuckets)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var values []float64
	if err := json.Unmarshal(raw, &values); err == nil {
		return uniformCutpoints(values, numBuckets)
	}

	var weighted []Percentile
	if err := json.Unmarshal(raw, &weighted); err != nil {
		return nil, fmt.Errorf("reservoir file %s is neither a number array nor a percentile array: %w", path, err)
	}
	return weightedCutpoints(weighted, numBuckets)
}

func uniformCutpoints(values []float64, m int) ([]float64, error) {
	if len(values) < m {
		return nil, fmt.Errorf("reservoir has %d values, need at least %d", len(values), m)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	cuts := make([]float64, 0, m-1)
	for i := 1; i < m; i++ {
		cuts = append(cuts, sorted[i*len(sorted)/m])
	}
	return cuts, nil
}

func weightedCutpoints(items []Percentile, m int) ([]float64, error) {
	if len(items) < m {
		return nil, fmt.Errorf("reservoir has %d values, need at least %d", len(items), m)
	}
	sorted := append([]Percentile(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value < sorted[j].Value })

	cuts := make([]float64, 0, m-1)
	for i := 1; i < m; i++ {
		target := float64(i) / float64(m) * 100
		for _, it := range sorted {
			if it.Percentile >= target {
				cuts = append(cuts, it.Value)
				break
			}
		}
	}
	if len(cuts) != m-1 {
		return nil, fmt.Errorf("could not derive %d cutpoints from reservoir", m-1)
	}
	return cuts, nil
}
