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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/datamap/internal/config"
)

func textDoc(text string) map[string]any {
	return map[string]any{"text": text}
}

func mustNew(t *testing.T, name string, opts config.Options) Processor {
	t.Helper()
	p, err := New(name, opts)
	require.NoError(t, err)
	return p
}

func TestNonNullFilter(t *testing.T) {
	p := mustNew(t, "non_null_filter", nil)

	out, err := p.Process(nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	doc := textDoc("hello")
	out, err = p.Process(doc)
	require.NoError(t, err)
	assert.Equal(t, doc, out)
}

func TestTextLenFilter(t *testing.T) {
	p := mustNew(t, "text_len_filter", config.Options{"lower_bound": 3, "upper_bound": 5})

	out, err := p.Process(textDoc("abcd"))
	require.NoError(t, err)
	assert.NotNil(t, out)

	out, err = p.Process(textDoc("ab"))
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = p.Process(textDoc("abcdef"))
	require.NoError(t, err)
	assert.Nil(t, out)

	// Bounds are inclusive.
	out, err = p.Process(textDoc("abc"))
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestTextLenFilterMissingField(t *testing.T) {
	p := mustNew(t, "text_len_filter", config.Options{"lower_bound": 1})
	_, err := p.Process(map[string]any{"other": "x"})
	assert.Error(t, err)
}

func TestSubsampleFilter(t *testing.T) {
	p := mustNew(t, "subsample", config.Options{"subsample_rate": 1.0})
	doc := textDoc("x")
	out, err := p.Process(doc)
	require.NoError(t, err)
	assert.Equal(t, doc, out)

	_, err = New("subsample", config.Options{"subsample_rate": 1.5})
	var cerr *config.Error
	assert.True(t, errors.As(err, &cerr))
}

func TestSantacoderPLFilter(t *testing.T) {
	p := mustNew(t, "santacoder_pl_filter", nil)

	doc := map[string]any{
		"text":     "code",
		"metadata": map[string]any{"language": "Python"},
	}
	out, err := p.Process(doc)
	require.NoError(t, err)
	assert.Equal(t, doc, out)

	doc["metadata"] = map[string]any{"language": "Rust"}
	out, err = p.Process(doc)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestFloatFilter(t *testing.T) {
	p := mustNew(t, "float_filter", config.Options{
		"float_field": "score",
		"lower_bound": 0.5,
		"upper_bound": 0.9,
	})

	out, err := p.Process(map[string]any{"score": 0.7})
	require.NoError(t, err)
	assert.NotNil(t, out)

	out, err = p.Process(map[string]any{"score": 0.3})
	require.NoError(t, err)
	assert.Nil(t, out)

	// Missing field reads as the default (0), below the lower bound.
	out, err = p.Process(map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestFloatFilterNegate(t *testing.T) {
	p := mustNew(t, "float_filter", config.Options{
		"float_field": "score",
		"lower_bound": 0.5,
		"upper_bound": 0.9,
		"negate":      true,
	})
	out, err := p.Process(map[string]any{"score": 0.7})
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = p.Process(map[string]any{"score": 0.3})
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestStringEqFilter(t *testing.T) {
	p := mustNew(t, "string_eq_filter", config.Options{"str_field": "lang", "eq": "en"})

	out, err := p.Process(map[string]any{"lang": "en"})
	require.NoError(t, err)
	assert.NotNil(t, out)

	out, err = p.Process(map[string]any{"lang": "fr"})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestStringEqFilterKeepMatchesFalse(t *testing.T) {
	p := mustNew(t, "string_eq_filter", config.Options{
		"str_field": "lang", "eq": "en", "keep_matches": false,
	})
	out, err := p.Process(map[string]any{"lang": "en"})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestPageLenFilterWords(t *testing.T) {
	p := mustNew(t, "page_len_filter", config.Options{
		"length_type": "word",
		"lower_bound": 3,
	})
	out, err := p.Process(textDoc("one two three four"))
	require.NoError(t, err)
	assert.NotNil(t, out)

	out, err = p.Process(textDoc("one two"))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestPageLenFilterCharIgnoresPunctuation(t *testing.T) {
	p := mustNew(t, "page_len_filter", config.Options{
		"length_type": "char",
		"lower_bound": 10,
		"upper_bound": 10,
	})
	// "Hello, world!" has exactly 10 letters.
	out, err := p.Process(textDoc("Hello, world!"))
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestPageLenFilterRejectsBadLengthType(t *testing.T) {
	_, err := New("page_len_filter", config.Options{"length_type": "bogus"})
	var cerr *config.Error
	assert.True(t, errors.As(err, &cerr))
}

func TestWordLenFilter(t *testing.T) {
	p := mustNew(t, "word_len_filter", config.Options{"lower_bound": 2.0, "upper_bound": 4.0})

	// Average word length 3.
	out, err := p.Process(textDoc("abc def ghi"))
	require.NoError(t, err)
	assert.NotNil(t, out)

	out, err = p.Process(textDoc("a b c"))
	require.NoError(t, err)
	assert.Nil(t, out)

	// No words at all drops.
	out, err = p.Process(textDoc("   "))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestSymbolRatioFilter(t *testing.T) {
	p := mustNew(t, "symbol_ratio_filter", config.Options{"max_symbol_to_word_ratio": 0.4})

	// 1 symbol over 3 words.
	out, err := p.Process(textDoc("# hello world"))
	require.NoError(t, err)
	assert.NotNil(t, out)

	// 2 symbols over 3 words.
	out, err = p.Process(textDoc("# hello ... world"))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestBulletFilter(t *testing.T) {
	p := mustNew(t, "bullet_filter", config.Options{"max_bullet_ratio": 0.5})

	// 2 of 5 lines are bullets.
	text := "line one\n• bullet one\n- bullet two\nanother line\nlast line"
	out, err := p.Process(textDoc(text))
	require.NoError(t, err)
	assert.NotNil(t, out)

	// 4 of 5 lines are bullets.
	text = "● a\n• b\n* c\n- d\nnormal"
	out, err = p.Process(textDoc(text))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestEllipsisLineRatioFilter(t *testing.T) {
	p := mustNew(t, "ellipsis_line_ratio_filter", config.Options{"max_ratio": 0.5})

	out, err := p.Process(textDoc("to be continued...\nsecond line\nthird line"))
	require.NoError(t, err)
	assert.NotNil(t, out)

	out, err = p.Process(textDoc("one...\ntwo…\nthree"))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestAlphabeticWordRatioFilter(t *testing.T) {
	p := mustNew(t, "alphabetic_word_ratio_filter", config.Options{"max_ratio": 0.3})

	out, err := p.Process(textDoc("mostly normal words here 42"))
	require.NoError(t, err)
	assert.NotNil(t, out)

	out, err = p.Process(textDoc("1 2 3 4 real"))
	require.NoError(t, err)
	assert.Nil(t, out)

	// Single-word docs always drop.
	out, err = p.Process(textDoc("word"))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestStopWordFilter(t *testing.T) {
	p := mustNew(t, "stop_word_filter", nil)

	out, err := p.Process(textDoc("the cat and the dog"))
	require.NoError(t, err)
	assert.NotNil(t, out)

	out, err = p.Process(textDoc("no qualifying vocabulary here"))
	require.NoError(t, err)
	assert.Nil(t, out)

	// Matching is case-insensitive.
	out, err = p.Process(textDoc("THE cat The dog"))
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestStopWordFilterUnique(t *testing.T) {
	p := mustNew(t, "stop_word_filter", config.Options{"count_unique": true, "min_stop_word": 2})

	// "the" twice is one unique stop word.
	out, err := p.Process(textDoc("the document with the content"))
	require.NoError(t, err)
	assert.NotNil(t, out) // "the" and "with"

	out, err = p.Process(textDoc("the document about the content"))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestStopWordFilterZeroMinimum(t *testing.T) {
	p := mustNew(t, "stop_word_filter", config.Options{"min_stop_word": 0})
	out, err := p.Process(textDoc("anything at all"))
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestWordRemovalRatioFilter(t *testing.T) {
	p := mustNew(t, "word_removal_ratio_filter", config.Options{"upper_bound": 0.5})

	doc := map[string]any{
		"text":                "one two three four five six seven eight",
		"original_word_count": float64(10),
	}
	out, err := p.Process(doc)
	require.NoError(t, err)
	assert.NotNil(t, out)

	doc = map[string]any{
		"text":                "one two",
		"original_word_count": float64(10),
	}
	out, err = p.Process(doc)
	require.NoError(t, err)
	assert.Nil(t, out)

	// Missing count is a processing failure, not a silent keep.
	_, err = p.Process(textDoc("one two"))
	assert.Error(t, err)
}

func TestUnknownOptionRejected(t *testing.T) {
	_, err := New("text_len_filter", config.Options{"lower": 1})
	var cerr *config.Error
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Error(), "lower")
}
