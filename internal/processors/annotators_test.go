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
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"

	"github.com/cardinalhq/datamap/internal/config"
)

func TestAddID(t *testing.T) {
	p := mustNew(t, "add_id", nil)

	out, err := p.Process(textDoc("x"))
	require.NoError(t, err)
	id, ok := out.(map[string]any)["id"].(string)
	require.True(t, ok)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	// Two documents get different ids.
	out2, err := p.Process(textDoc("y"))
	require.NoError(t, err)
	assert.NotEqual(t, id, out2.(map[string]any)["id"])
}

func TestAddIDCustomKey(t *testing.T) {
	p := mustNew(t, "add_id", config.Options{"id_key": "metadata.doc_id"})
	out, err := p.Process(textDoc("x"))
	require.NoError(t, err)
	meta := out.(map[string]any)["metadata"].(map[string]any)
	assert.NotEmpty(t, meta["doc_id"])
}

func TestWordCountAdder(t *testing.T) {
	p := mustNew(t, "word_count_adder", nil)

	out, err := p.Process(textDoc("one two, three!"))
	require.NoError(t, err)
	assert.Equal(t, float64(3), out.(map[string]any)["original_word_count"])
}

func TestHashAnnotator64(t *testing.T) {
	p := mustNew(t, "hash_annotator", config.Options{"num_bits": 64})

	out, err := p.Process(textDoc("hello"))
	require.NoError(t, err)
	meta := out.(map[string]any)["metadata"].(map[string]any)
	assert.Equal(t, float64(xxh3.Hash([]byte("hello"))), meta["text_hash"])
}

func TestHashAnnotator128(t *testing.T) {
	p := mustNew(t, "hash_annotator", nil)

	out, err := p.Process(textDoc("hello"))
	require.NoError(t, err)
	meta := out.(map[string]any)["metadata"].(map[string]any)
	hash, ok := meta["text_hash"].(string)
	require.True(t, ok)

	sum := xxh3.Hash128([]byte("hello"))
	assert.Equal(t, u128String(sum.Hi, sum.Lo), hash)

	// Deterministic across calls.
	out2, err := p.Process(textDoc("hello"))
	require.NoError(t, err)
	assert.Equal(t, hash, out2.(map[string]any)["metadata"].(map[string]any)["text_hash"])
}

func TestHashAnnotatorRejectsBadBits(t *testing.T) {
	_, err := New("hash_annotator", config.Options{"num_bits": 32})
	assert.Error(t, err)
}

func TestU128String(t *testing.T) {
	assert.Equal(t, "0", u128String(0, 0))
	assert.Equal(t, "12345", u128String(0, 12345))
	assert.Equal(t, strconv.FormatUint(1<<63, 10), u128String(0, 1<<63))
	// 2^64 and 2^64+5.
	assert.Equal(t, "18446744073709551616", u128String(1, 0))
	assert.Equal(t, "18446744073709551621", u128String(1, 5))
	// 2^128 - 1.
	assert.Equal(t, "340282366920938463463374607431768211455", u128String(^uint64(0), ^uint64(0)))
}

func TestConstantAnnotator(t *testing.T) {
	p := mustNew(t, "constant_annotator", config.Options{
		"key":   "metadata.source",
		"value": "commoncrawl",
	})
	out, err := p.Process(textDoc("x"))
	require.NoError(t, err)
	meta := out.(map[string]any)["metadata"].(map[string]any)
	assert.Equal(t, "commoncrawl", meta["source"])
}

func TestDDMaxGetter(t *testing.T) {
	p := mustNew(t, "dd_max_getter", config.Options{
		"prefix":           "lang_",
		"output_attribute": "best_lang",
	})

	doc := map[string]any{
		"attributes": map[string]any{
			"lang_en":   []any{[]any{0.8}},
			"lang_fr":   []any{[]any{0.3}},
			"unrelated": []any{[]any{0.99}},
		},
	}
	out, err := p.Process(doc)
	require.NoError(t, err)
	assert.Equal(t, "lang_en", out.(map[string]any)["best_lang"])
}

func TestDDMaxGetterPlainNumbers(t *testing.T) {
	p := mustNew(t, "dd_max_getter", config.Options{
		"prefix":           "score_",
		"output_attribute": "best",
	})
	doc := map[string]any{
		"attributes": map[string]any{
			"score_a": 0.2,
			"score_b": 0.9,
		},
	}
	out, err := p.Process(doc)
	require.NoError(t, err)
	assert.Equal(t, "score_b", out.(map[string]any)["best"])
}

func TestDDMaxGetterNoMatches(t *testing.T) {
	p := mustNew(t, "dd_max_getter", config.Options{
		"prefix":           "lang_",
		"output_attribute": "best_lang",
	})
	doc := map[string]any{"attributes": map[string]any{}}
	out, err := p.Process(doc)
	require.NoError(t, err)
	assert.Equal(t, "null", out.(map[string]any)["best_lang"])
}

func TestMaxExtractor(t *testing.T) {
	p := mustNew(t, "max_extractor", config.Options{
		"main_attribute":   "scores",
		"output_attribute": "winner",
		"lower_bound":      0.5,
	})

	doc := map[string]any{
		"scores": map[string]any{"en": 0.9, "fr": 0.6, "de": 0.2},
	}
	out, err := p.Process(doc)
	require.NoError(t, err)
	assert.Equal(t, "en", out.(map[string]any)["winner"])
}

func TestMaxExtractorBelowBound(t *testing.T) {
	opts := config.Options{
		"main_attribute":   "scores",
		"output_attribute": "winner",
		"lower_bound":      0.5,
	}
	doc := map[string]any{"scores": map[string]any{"en": 0.3}}

	// keep_nulls defaults to true: document survives without the annotation.
	p := mustNew(t, "max_extractor", opts)
	out, err := p.Process(doc)
	require.NoError(t, err)
	require.NotNil(t, out)
	_, annotated := out.(map[string]any)["winner"]
	assert.False(t, annotated)

	opts["keep_nulls"] = false
	p = mustNew(t, "max_extractor", opts)
	out, err = p.Process(doc)
	require.NoError(t, err)
	assert.Nil(t, out)
}
