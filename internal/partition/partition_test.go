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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/datamap/internal/streamio"
)

func writeLines(t *testing.T, dir, name string, lines []string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name),
		[]byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func readAllShards(t *testing.T, dir string) []string {
	t.Helper()
	var lines []string
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, e.IsDir())
		r, err := streamio.OpenLines(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		for {
			line, err := r.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			lines = append(lines, line)
		}
		require.NoError(t, r.Close())
	}
	return lines
}

func TestRunDiscreteWithChoices(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	writeLines(t, inDir, "a.jsonl", []string{
		`{"metadata":{"lang":"en"},"text":"one"}`,
		`{"metadata":{"lang":"es"},"text":"dos"}`,
		`{"metadata":{"lang":"xx"},"text":"unknown"}`,
		`{"metadata":{"lang":"en"},"text":"two"}`,
		`{"text":"no lang at all"}`,
	})

	err := RunDiscrete(context.Background(), DiscreteOptions{
		InputDir:     inDir,
		OutputDir:    outDir,
		PartitionKey: "metadata.lang",
		Choices:      []string{"en", "es", "fr"},
		MaxFileSize:  1 << 20,
		Threads:      1,
	})
	require.NoError(t, err)

	assert.Len(t, readAllShards(t, filepath.Join(outDir, "en")), 2)
	assert.Len(t, readAllShards(t, filepath.Join(outDir, "es")), 1)
	assert.Empty(t, readAllShards(t, filepath.Join(outDir, "fr")))
	assert.Len(t, readAllShards(t, filepath.Join(outDir, NoCategory)), 2)
}

func TestRunDiscreteDynamicCategories(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	writeLines(t, inDir, "a.jsonl", []string{
		`{"lang":"en"}`,
		`{"lang":"de"}`,
		`{"lang":"de"}`,
	})

	err := RunDiscrete(context.Background(), DiscreteOptions{
		InputDir:     inDir,
		OutputDir:    outDir,
		PartitionKey: "lang",
		MaxFileSize:  1 << 20,
		Threads:      2,
	})
	require.NoError(t, err)

	assert.Len(t, readAllShards(t, filepath.Join(outDir, "en")), 1)
	assert.Len(t, readAllShards(t, filepath.Join(outDir, "de")), 2)
}

func TestRunDiscreteShardRotation(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, fmt.Sprintf(`{"lang":"en","pad":"%060d"}`, i))
	}
	writeLines(t, inDir, "a.jsonl", lines)

	err := RunDiscrete(context.Background(), DiscreteOptions{
		InputDir:     inDir,
		OutputDir:    outDir,
		PartitionKey: "lang",
		MaxFileSize:  500,
		Threads:      1,
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(outDir, "en"))
	require.NoError(t, err)
	assert.Greater(t, len(entries), 1)
	assert.Equal(t, "chunk_00000000.jsonl.zst", entries[0].Name())
	assert.Len(t, readAllShards(t, filepath.Join(outDir, "en")), 100)
}

func TestRunDiscreteRequiresKey(t *testing.T) {
	err := RunDiscrete(context.Background(), DiscreteOptions{
		InputDir:    t.TempDir(),
		OutputDir:   t.TempDir(),
		MaxFileSize: 1 << 20,
	})
	assert.Error(t, err)
}

func TestBucketIndex(t *testing.T) {
	cuts := []float64{10, 20, 30}
	assert.Equal(t, 0, bucketIndex(cuts, 5))
	assert.Equal(t, 1, bucketIndex(cuts, 15))
	assert.Equal(t, 3, bucketIndex(cuts, 35))
	// Equality falls into the upper bucket.
	assert.Equal(t, 1, bucketIndex(cuts, 10))
	assert.Equal(t, 3, bucketIndex(cuts, 30))
}

func TestRunRange(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, fmt.Sprintf(`{"score":%d}`, i))
	}
	writeLines(t, inDir, "a.jsonl", lines)

	err := RunRange(context.Background(), RangeOptions{
		InputDir:    inDir,
		OutputDir:   outDir,
		Cutpoints:   []float64{10, 20, 30},
		ValueKey:    "score",
		MaxFileSize: 1 << 20,
		Threads:     1,
	})
	require.NoError(t, err)

	for bucket := 0; bucket < 4; bucket++ {
		got := readAllShards(t, filepath.Join(outDir, fmt.Sprintf("bucket_%04d", bucket)))
		require.Len(t, got, 10, "bucket %d", bucket)
		for _, line := range got {
			var doc map[string]any
			require.NoError(t, json.Unmarshal([]byte(line), &doc))
			score := doc["score"].(float64)
			assert.GreaterOrEqual(t, score, float64(bucket*10))
			assert.Less(t, score, float64((bucket+1)*10))
		}
	}
}

func TestRunRangeDefaultValue(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	writeLines(t, inDir, "a.jsonl", []string{`{"text":"scoreless"}`})

	err := RunRange(context.Background(), RangeOptions{
		InputDir:     inDir,
		OutputDir:    outDir,
		Cutpoints:    []float64{10},
		ValueKey:     "score",
		DefaultValue: 50,
		MaxFileSize:  1 << 20,
		BucketPrefix: "grp",
		Threads:      1,
	})
	require.NoError(t, err)

	assert.Len(t, readAllShards(t, filepath.Join(outDir, "grp_0001")), 1)
}

func TestRunRangeRejectsUnsortedCutpoints(t *testing.T) {
	err := RunRange(context.Background(), RangeOptions{
		InputDir:    t.TempDir(),
		OutputDir:   t.TempDir(),
		Cutpoints:   []float64{20, 10},
		ValueKey:    "score",
		MaxFileSize: 1 << 20,
	})
	assert.Error(t, err)
}
