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
)

func TestRepetitionFractionUnigramUnweighted(t *testing.T) {
	// Two of four elements repeat.
	frac := repetitionFraction([]string{"a", "b", "a", "c"}, 1, false)
	assert.InDelta(t, 0.5, frac, 1e-9)

	frac = repetitionFraction([]string{"a", "b", "c"}, 1, false)
	assert.InDelta(t, 0.0, frac, 1e-9)
}

func TestRepetitionFractionUnigramWeighted(t *testing.T) {
	// "aaaa" repeats: 8 of 10 chars.
	frac := repetitionFraction([]string{"aaaa", "aaaa", "bb"}, 1, true)
	assert.InDelta(t, 0.8, frac, 1e-9)
}

func TestRepetitionFractionEmpty(t *testing.T) {
	assert.InDelta(t, 1.0, repetitionFraction(nil, 1, true), 1e-9)
	assert.InDelta(t, 0.0, repetitionFraction([]string{"a"}, 2, true), 1e-9)
	// A single n-gram never counts as repetition.
	assert.InDelta(t, 0.0, repetitionFraction([]string{"a", "b"}, 2, true), 1e-9)
}

func TestRepetitionFractionBigram(t *testing.T) {
	// "x y" appears twice: all four elements are inside a repeated bigram.
	frac := repetitionFraction([]string{"x", "y", "x", "y"}, 2, true)
	assert.InDelta(t, 1.0, frac, 1e-9)

	frac = repetitionFraction([]string{"a", "b", "c", "d"}, 2, true)
	assert.InDelta(t, 0.0, frac, 1e-9)
}

func TestMassiveWebRepetitionFilter(t *testing.T) {
	p := mustNew(t, "massive_web_repetition_filter", nil)

	// Duplicate lines push the unweighted line fraction to 1.0.
	out, err := p.Process(textDoc("copy paste line\ncopy paste line\ncopy paste line"))
	require.NoError(t, err)
	assert.Nil(t, out)

	// Heavy word repetition.
	out, err = p.Process(textDoc("buy now buy now buy now buy now buy now"))
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = p.Process(textDoc("The quick brown fox jumps over a lazy dog near riverbanks today"))
	require.NoError(t, err)
	assert.NotNil(t, out)
}
