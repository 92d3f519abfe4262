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

package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/datamap/internal/config"
)

func TestIntervalFilterCutsRanges(t *testing.T) {
	p := mustNew(t, "interval_filter", config.Options{"interval_field": "spans"})

	doc := map[string]any{
		"text":  "0123456789",
		"spans": []any{[]any{float64(2), float64(5)}},
	}
	out, err := p.Process(doc)
	require.NoError(t, err)
	assert.Equal(t, "0156789", out.(map[string]any)["text"])
}

func TestIntervalFilterMultipleRanges(t *testing.T) {
	p := mustNew(t, "interval_filter", config.Options{"interval_field": "spans"})

	doc := map[string]any{
		"text": "abcdefghij",
		"spans": []any{
			[]any{float64(0), float64(2)},
			[]any{float64(5), float64(7)},
		},
	}
	out, err := p.Process(doc)
	require.NoError(t, err)
	assert.Equal(t, "cdehij", out.(map[string]any)["text"])
}

func TestIntervalFilterMissingFieldPassesThrough(t *testing.T) {
	p := mustNew(t, "interval_filter", config.Options{"interval_field": "spans"})
	doc := textDoc("untouched")
	out, err := p.Process(doc)
	require.NoError(t, err)
	assert.Equal(t, "untouched", out.(map[string]any)["text"])
}

func TestIntervalFilterDropsEmptiedDoc(t *testing.T) {
	p := mustNew(t, "interval_filter", config.Options{"interval_field": "spans"})
	doc := map[string]any{
		"text":  "gone",
		"spans": []any{[]any{float64(0), float64(4)}},
	}
	out, err := p.Process(doc)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestIntervalFilterOutputField(t *testing.T) {
	p := mustNew(t, "interval_filter", config.Options{
		"interval_field":    "spans",
		"output_text_field": "clean_text",
	})
	doc := map[string]any{
		"text":  "abcdef",
		"spans": []any{[]any{float64(0), float64(3)}},
	}
	out, err := p.Process(doc)
	require.NoError(t, err)
	got := out.(map[string]any)
	assert.Equal(t, "def", got["clean_text"])
	assert.Equal(t, "abcdef", got["text"])
}

func TestFuzzyIntervalMerge(t *testing.T) {
	// Two intervals covering 19 of 20 positions merge at threshold 0.95.
	got := fuzzyIntervalMerge([]interval{{0, 9}, {10, 20}}, 0.95)
	assert.Equal(t, []interval{{0, 20}}, got)

	// A large gap stays split.
	got = fuzzyIntervalMerge([]interval{{0, 5}, {50, 60}}, 0.95)
	assert.Equal(t, []interval{{0, 5}, {50, 60}}, got)
}

func TestMergeIntervals(t *testing.T) {
	got := mergeIntervals([]interval{{5, 8}, {0, 3}, {2, 6}})
	assert.Equal(t, []interval{{0, 8}}, got)

	got = mergeIntervals([]interval{{0, 2}, {4, 6}})
	assert.Equal(t, []interval{{0, 2}, {4, 6}}, got)
}
