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

// Package walker enumerates JSONL source files under a corpus root.
package walker

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// File is a single discovered JSONL source.
type File struct {
	// RelPath is the path relative to the walked root, using "/" separators.
	RelPath string
	// AbsPath is the absolute path on disk.
	AbsPath string
	// Size is the on-disk size in bytes.
	Size int64
}

var jsonlSuffixes = []string{
	".jsonl", ".json",
	".jsonl.gz", ".json.gz",
	".jsonl.zst", ".json.zst",
	".gz", ".zst",
}

// IsJSONLName reports whether a file name looks like a JSONL source,
// possibly compressed. Matching is case-insensitive.
func IsJSONLName(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range jsonlSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// NormalizedName rewrites a relative path's JSONL extension, compressed or
// not, to ".jsonl.zst".
func NormalizedName(relPath string) string {
	lower := strings.ToLower(relPath)
	for _, suffix := range jsonlSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return relPath[:len(relPath)-len(suffix)] + ".jsonl.zst"
		}
	}
	return relPath + ".jsonl.zst"
}

// Walk recursively enumerates regular JSONL files under root. The result is
// sorted by relative path so ordering is stable within a run.
func Walk(root string) ([]File, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", root, err)
	}

	var files []File
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !IsJSONLName(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		files = append(files, File{
			RelPath: filepath.ToSlash(rel),
			AbsPath: path,
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %q: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// SplitChunks partitions files into at most n chunks, balancing total byte
// volume greedily (largest file to the currently smallest chunk).
func SplitChunks(files []File, n int) [][]File {
	if n < 1 {
		n = 1
	}
	if n > len(files) {
		n = len(files)
	}
	if n == 0 {
		return nil
	}

	bySize := make([]File, len(files))
	copy(bySize, files)
	sort.Slice(bySize, func(i, j int) bool { return bySize[i].Size > bySize[j].Size })

	chunks := make([][]File, n)
	sizes := make([]int64, n)
	for _, f := range bySize {
		smallest := 0
		for i := 1; i < n; i++ {
			if sizes[i] < sizes[smallest] {
				smallest = i
			}
		}
		chunks[smallest] = append(chunks[smallest], f)
		sizes[smallest] += f.Size
	}

	var out [][]File
	for _, c := range chunks {
		if len(c) > 0 {
			out = append(out, c)
		}
	}
	return out
}
