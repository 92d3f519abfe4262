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

package streamio

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAllLines(t *testing.T, path string) []string {
	t.Helper()
	r, err := OpenLines(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	var lines []string
	for {
		line, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
	return lines
}

func TestOpenLinesPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\n{\"a\":2}\n"), 0o644))

	lines := readAllLines(t, path)
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`}, lines)
}

func TestOpenLinesGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jsonl.gz")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("one\ntwo\nthree\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	assert.Equal(t, []string{"one", "two", "three"}, readAllLines(t, path))
}

func TestOpenLinesZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jsonl.zst")
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte("x\ny\n"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	assert.Equal(t, []string{"x", "y"}, readAllLines(t, path))
}

func TestOpenLinesCorruptZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl.zst")
	require.NoError(t, os.WriteFile(path, []byte("this is not zstd"), 0o644))

	r, err := OpenLines(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	_, err = r.Next()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestOpenLinesMissingFile(t *testing.T) {
	_, err := OpenLines(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}

func TestLineWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "out.jsonl.zst")
	w, err := CreateLineWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.WriteLine([]byte(`{"v":1}`)))
	require.NoError(t, w.WriteLine([]byte(`{"v":22}`)))
	assert.Equal(t, int64(2), w.Lines())
	// 7+1 and 8+1 bytes of uncompressed accounting.
	assert.Equal(t, int64(17), w.BytesWritten())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close()) // idempotent

	assert.Equal(t, []string{`{"v":1}`, `{"v":22}`}, readAllLines(t, path))
}

func TestLineWriterFlushReachesDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl.zst")
	w, err := CreateLineWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.WriteLine([]byte(`{"v":1}`)))
	require.NoError(t, w.Flush())

	// The flushed bytes are visible on disk before the frame is finalized.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	require.NoError(t, w.WriteLine([]byte(`{"v":2}`)))
	require.NoError(t, w.Close())
	assert.Equal(t, []string{`{"v":1}`, `{"v":2}`}, readAllLines(t, path))
}

func TestLineWriterAbortRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl.zst")
	w, err := CreateLineWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteLine([]byte("partial")))

	w.Abort()
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLineWriterRejectsWriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl.zst")
	w, err := CreateLineWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Error(t, w.WriteLine([]byte("late")))
}
