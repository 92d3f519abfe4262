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
	"encoding/binary"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/cardinalhq/datamap/internal/config"
)

// massiveWebRepetitionFilter applies the Gopher MassiveWeb repetition
// checks: a document is dropped if any of the thirteen line, paragraph, or
// word n-gram repetition fractions exceeds its threshold.
type massiveWebRepetitionFilter struct {
	textField string
}

type repetitionCheck struct {
	source     func(lines, pars, words []string) []string
	ngramSize  int
	weighted   bool
	upperBound float64
}

var repetitionChecks = []repetitionCheck{
	{func(l, _, _ []string) []string { return l }, 1, false, 0.3},
	{func(_, p, _ []string) []string { return p }, 1, false, 0.3},
	{func(l, _, _ []string) []string { return l }, 1, true, 0.2},
	{func(_, p, _ []string) []string { return p }, 1, true, 0.2},
	{func(_, _, w []string) []string { return w }, 2, true, 0.2},
	{func(_, _, w []string) []string { return w }, 3, true, 0.18},
	{func(_, _, w []string) []string { return w }, 4, true, 0.16},
	{func(_, _, w []string) []string { return w }, 5, true, 0.15},
	{func(_, _, w []string) []string { return w }, 6, true, 0.14},
	{func(_, _, w []string) []string { return w }, 7, true, 0.13},
	{func(_, _, w []string) []string { return w }, 8, true, 0.12},
	{func(_, _, w []string) []string { return w }, 9, true, 0.11},
	{func(_, _, w []string) []string { return w }, 10, true, 0.10},
}

func newMassiveWebRepetitionFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("massive_web_repetition_filter", "text_field"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	return &massiveWebRepetitionFilter{textField: textField}, nil
}

func (f *massiveWebRepetitionFilter) Process(doc any) (any, error) {
	text, err := textOf(doc, f.textField)
	if err != nil {
		return nil, err
	}
	lines := splitNonEmpty(text, "\n")
	pars := splitNonEmpty(text, "\n\n")
	words := unicodeWords(text)

	for _, check := range repetitionChecks {
		frac := repetitionFraction(check.source(lines, pars, words), check.ngramSize, check.weighted)
		if frac > check.upperBound {
			return nil, nil
		}
	}
	return doc, nil
}

func splitNonEmpty(text, sep string) []string {
	var out []string
	for _, part := range strings.Split(text, sep) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

type ngramKey struct {
	hash    uint64
	charLen int
}

// ngramWindow hashes a rolling window of ngramSize elements with xxhash.
// Elements are length-prefixed so ("ab","c") and ("a","bc") hash apart.
type ngramWindow struct {
	elements []string
	size     int
	charLen  int
}

func (w *ngramWindow) roll(element string) {
	w.elements = append(w.elements, element)
	w.charLen += len(element)
	if len(w.elements) > w.size {
		w.charLen -= len(w.elements[0])
		w.elements = w.elements[1:]
	}
}

func (w *ngramWindow) full() bool {
	return len(w.elements) >= w.size
}

func (w *ngramWindow) key() ngramKey {
	d := xxhash.New()
	var lenBuf [8]byte
	for _, el := range w.elements {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(el)))
		_, _ = d.Write(lenBuf[:])
		_, _ = d.WriteString(el)
	}
	return ngramKey{hash: d.Sum64(), charLen: w.charLen}
}

// repetitionFraction measures how much of elements is covered by repeated
// n-grams. For unigrams the fraction is over element count (unweighted) or
// character length (weighted). For sizes 2..4 only the single most repeated
// n-gram counts; for larger sizes every repeated n-gram does.
func repetitionFraction(elements []string, ngramSize int, weighted bool) float64 {
	window := ngramWindow{size: ngramSize}
	ngramCounts := make(map[ngramKey][]int)
	totalNgrams := 0
	totalCharLen := 0
	for _, el := range elements {
		totalCharLen += len(el)
	}

	for idx, el := range elements {
		window.roll(el)
		if window.full() {
			k := window.key()
			ngramCounts[k] = append(ngramCounts[k], idx+1-ngramSize)
			totalNgrams++
		}
	}

	if totalNgrams == 0 {
		if ngramSize == 1 {
			return 1.0
		}
		return 0.0
	}
	if totalNgrams == 1 {
		return 0.0
	}

	if ngramSize == 1 {
		if weighted {
			totalRepeatLen := 0
			for k, idxs := range ngramCounts {
				if len(idxs) > 1 {
					totalRepeatLen += k.charLen * len(idxs)
				}
			}
			return float64(totalRepeatLen) / float64(totalCharLen)
		}
		totalRepeats := 0
		for _, idxs := range ngramCounts {
			if len(idxs) > 1 {
				totalRepeats += len(idxs)
			}
		}
		return float64(totalRepeats) / float64(len(elements))
	}

	var repeatedStartIdxs []int
	if ngramSize <= 4 {
		// Only the most frequent repeated n-gram counts. Ties break on
		// character length.
		var bestIdxs []int
		var bestLen int
		for k, idxs := range ngramCounts {
			if len(idxs) < 2 {
				continue
			}
			if len(idxs) > len(bestIdxs) || (len(idxs) == len(bestIdxs) && k.charLen > bestLen) {
				bestIdxs, bestLen = idxs, k.charLen
			}
		}
		repeatedStartIdxs = bestIdxs
	} else {
		for _, idxs := range ngramCounts {
			if len(idxs) > 1 {
				repeatedStartIdxs = append(repeatedStartIdxs, idxs...)
			}
		}
	}

	repeatElementIdxs := make(map[int]struct{})
	for _, start := range repeatedStartIdxs {
		for i := start; i < start+ngramSize; i++ {
			repeatElementIdxs[i] = struct{}{}
		}
	}
	repeatLen := 0
	for idx := range repeatElementIdxs {
		repeatLen += len(elements[idx])
	}
	return float64(repeatLen) / float64(totalCharLen)
}
