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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAMLAndJSON(t *testing.T) {
	yamlPath := writeTemp(t, "c.yaml", "text_field: body\npipeline: []\n")
	tree, err := Load(yamlPath)
	require.NoError(t, err)
	s, err := tree.String("text_field", "")
	require.NoError(t, err)
	assert.Equal(t, "body", s)

	jsonPath := writeTemp(t, "c.json", `{"text_field":"body","pipeline":[]}`)
	tree2, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, tree, tree2)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeTemp(t, "c.toml", "x = 1")
	_, err := Load(path)
	var cerr *Error
	assert.True(t, errors.As(err, &cerr))
}

func TestLoadMapConfig(t *testing.T) {
	path := writeTemp(t, "map.yaml", `
text_field: content
pipeline:
  - name: text_len_filter
    kwargs:
      lower_bound: 2
      upper_bound: 10
  - name: add_id
    step: ids
`)
	cfg, err := LoadMapConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "content", cfg.TextField)
	require.Len(t, cfg.Pipeline, 2)
	assert.Equal(t, "text_len_filter", cfg.Pipeline[0].Name)
	lb, err := cfg.Pipeline[0].Kwargs.Int("lower_bound", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, lb)
	assert.Equal(t, "ids", cfg.Pipeline[1].Label)
}

func TestLoadMapConfigDefaultsTextField(t *testing.T) {
	path := writeTemp(t, "map.yaml", "pipeline: []\n")
	cfg, err := LoadMapConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.TextField)
	assert.Empty(t, cfg.Pipeline)
}

func TestLoadMapConfigRejectsUnknownTopLevelKey(t *testing.T) {
	path := writeTemp(t, "map.yaml", "pipeline: []\nbogus: 1\n")
	_, err := LoadMapConfig(path)
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Msg, "bogus")
}

func TestLoadMapConfigRejectsUnknownStepKey(t *testing.T) {
	path := writeTemp(t, "map.yaml", `
pipeline:
  - name: add_id
    wat: true
`)
	_, err := LoadMapConfig(path)
	assert.Error(t, err)
}

func TestLoadMapConfigRequiresStepName(t *testing.T) {
	path := writeTemp(t, "map.yaml", `
pipeline:
  - kwargs: {}
`)
	_, err := LoadMapConfig(path)
	assert.Error(t, err)
}

func TestLoadPartitionConfig(t *testing.T) {
	path := writeTemp(t, "part.yaml", `
name: langsplit
partition_key: metadata.lang
choices: [en, es, fr]
max_file_size: 1000000
`)
	cfg, err := LoadPartitionConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "metadata.lang", cfg.PartitionKey)
	assert.Equal(t, []string{"en", "es", "fr"}, cfg.Choices)
	assert.Equal(t, int64(1000000), cfg.MaxFileSize)
}

func TestLoadPartitionConfigDefaults(t *testing.T) {
	path := writeTemp(t, "part.yaml", "partition_key: lang\n")
	cfg, err := LoadPartitionConfig(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.Choices)
	assert.Equal(t, int64(DefaultPartitionFileSize), cfg.MaxFileSize)
}

func TestOptionsCheckKeys(t *testing.T) {
	o := Options{"a": 1, "b": 2}
	assert.NoError(t, o.CheckKeys("test", "a", "b", "c"))
	err := o.CheckKeys("test", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b")
}

func TestOptionsTypedGetters(t *testing.T) {
	o := Options{
		"s":     "str",
		"f":     1.5,
		"i":     3,
		"b":     true,
		"list":  []any{"x", "y"},
		"nest":  map[string]any{"k": "v"},
		"rules": []any{[]any{1, 2}, []any{3}},
	}

	s, err := o.String("s", "")
	require.NoError(t, err)
	assert.Equal(t, "str", s)

	f, err := o.Float("f", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	i, err := o.Int("i", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	b, err := o.Bool("b", false)
	require.NoError(t, err)
	assert.True(t, b)

	list, err := o.StringSlice("list")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, list)

	sub, err := o.Sub("nest")
	require.NoError(t, err)
	v, err := sub.String("k", "")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	rules, err := o.IntSlices("rules")
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}, {3}}, rules)

	// Absent keys fall back to defaults.
	def, err := o.String("missing", "d")
	require.NoError(t, err)
	assert.Equal(t, "d", def)

	// Wrong types are errors, not silent defaults.
	_, err = o.Int("s", 0)
	assert.Error(t, err)

	_, err = o.RequireString("missing")
	assert.Error(t, err)
}
