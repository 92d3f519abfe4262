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

package counter

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCounts(t *testing.T) {
	inDir := t.TempDir()
	lines := `{"text":"hello"}` + "\n" + `{"text":"world!"}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "a.jsonl"), []byte(lines), 0o644))
	outFile := filepath.Join(t.TempDir(), "counts.json")

	totals, err := Run(context.Background(), Options{
		InputDir:   inDir,
		OutputFile: outFile,
		CountBytes: "text",
		Threads:    1,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), totals.TotalDocs)
	assert.Equal(t, int64(len(`{"text":"hello"}`)+len(`{"text":"world!"}`)), totals.TotalFileSize)
	assert.Equal(t, int64(len("hello")+len("world!")), totals.TotalTextBytes)

	raw, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var onDisk Totals
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, *totals, onDisk)
}

func TestRunCountsUnparseableLines(t *testing.T) {
	inDir := t.TempDir()
	lines := "not json\n" + `{"text":"ok"}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "a.jsonl"), []byte(lines), 0o644))

	totals, err := Run(context.Background(), Options{
		InputDir:   inDir,
		CountBytes: "text",
		Threads:    1,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), totals.TotalDocs)
	assert.Equal(t, int64(len("not json")+len(`{"text":"ok"}`)), totals.TotalFileSize)
	assert.Equal(t, int64(2), totals.TotalTextBytes)
}

func TestRunNonStringTextValue(t *testing.T) {
	inDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "a.jsonl"), []byte(`{"text":12345}`+"\n"), 0o644))

	totals, err := Run(context.Background(), Options{
		InputDir:   inDir,
		CountBytes: "text",
		Threads:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len("12345")), totals.TotalTextBytes)
}

func TestRunWithoutCountBytes(t *testing.T) {
	inDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "a.jsonl"), []byte(`{"text":"hi"}`+"\n"), 0o644))

	totals, err := Run(context.Background(), Options{InputDir: inDir, Threads: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.TotalDocs)
	assert.Equal(t, int64(0), totals.TotalTextBytes)
}

func TestRunEmptyDir(t *testing.T) {
	totals, err := Run(context.Background(), Options{InputDir: t.TempDir(), Threads: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.TotalDocs)
}

func TestRunDeterministicAcrossThreadCounts(t *testing.T) {
	inDir := t.TempDir()
	for _, name := range []string{"a.jsonl", "b.jsonl", "c.jsonl"} {
		require.NoError(t, os.WriteFile(filepath.Join(inDir, name),
			[]byte(`{"text":"abc"}`+"\n"+`{"text":"de"}`+"\n"), 0o644))
	}

	one, err := Run(context.Background(), Options{InputDir: inDir, CountBytes: "text", Threads: 1})
	require.NoError(t, err)
	four, err := Run(context.Background(), Options{InputDir: inDir, CountBytes: "text", Threads: 4})
	require.NoError(t, err)
	assert.Equal(t, one, four)
}
