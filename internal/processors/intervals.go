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
	"fmt"
	"sort"
	"strings"

	"github.com/cardinalhq/datamap/internal/config"
	"github.com/cardinalhq/datamap/internal/jsonpath"
)

type interval struct {
	start int
	end   int
}

// intervalFilter cuts [start, end) byte ranges out of the text. Documents
// without the interval field pass through untouched; documents left with no
// text are dropped.
type intervalFilter struct {
	textField       string
	intervalField   string
	fuzzyMerge      bool
	mergeFuzziness  float64
	outputTextField string
}

func newIntervalFilter(opts config.Options) (Processor, error) {
	if err := opts.CheckKeys("interval_filter",
		"text_field", "interval_field", "fuzzy_merge", "merge_fuzziness", "output_text_field"); err != nil {
		return nil, err
	}
	textField, err := opts.String("text_field", "text")
	if err != nil {
		return nil, err
	}
	intervalField, err := opts.RequireString("interval_field")
	if err != nil {
		return nil, err
	}
	fuzzyMerge, err := opts.Bool("fuzzy_merge", false)
	if err != nil {
		return nil, err
	}
	fuzziness, err := opts.Float("merge_fuzziness", 1.0)
	if err != nil {
		return nil, err
	}
	outputField, err := opts.String("output_text_field", textField)
	if err != nil {
		return nil, err
	}
	return &intervalFilter{
		textField:       textField,
		intervalField:   intervalField,
		fuzzyMerge:      fuzzyMerge,
		mergeFuzziness:  fuzziness,
		outputTextField: outputField,
	}, nil
}

func (f *intervalFilter) Process(doc any) (any, error) {
	text, err := textOf(doc, f.textField)
	if err != nil {
		return nil, err
	}
	raw, ok := jsonpath.Get(doc, f.intervalField)
	if !ok {
		return doc, nil
	}
	intervals, err := parseIntervals(raw)
	if err != nil {
		return nil, fmt.Errorf("interval field %q: %w", f.intervalField, err)
	}
	if f.fuzzyMerge {
		intervals = fuzzyIntervalMerge(intervals, f.mergeFuzziness)
	}

	var out strings.Builder
	out.Grow(len(text))
	lastExcluded := 0
	for _, iv := range intervals {
		if iv.start > len(text) || iv.start < lastExcluded {
			return nil, fmt.Errorf("interval [%d, %d) out of bounds for text of %d bytes",
				iv.start, iv.end, len(text))
		}
		out.WriteString(text[lastExcluded:iv.start])
		lastExcluded = min(iv.end, len(text))
	}
	if lastExcluded < len(text) {
		out.WriteString(text[lastExcluded:])
	}
	if out.Len() == 0 {
		return nil, nil
	}
	if err := jsonpath.Set(doc, f.outputTextField, out.String()); err != nil {
		return nil, err
	}
	return doc, nil
}

func parseIntervals(raw any) ([]interval, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("not an array")
	}
	out := make([]interval, 0, len(list))
	for _, item := range list {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("interval is not a [start, end] pair")
		}
		start, ok1 := pair[0].(float64)
		end, ok2 := pair[1].(float64)
		if !ok1 || !ok2 || start < 0 || end < start {
			return nil, fmt.Errorf("invalid interval %v", item)
		}
		out = append(out, interval{start: int(start), end: int(end)})
	}
	return out, nil
}

// fuzzyIntervalMerge coalesces nearby intervals: runs of intervals whose
// combined coverage is at least mergeFuzziness of their span are fused into
// one. Scans in both directions and unions the results so a sparse gap at
// one end cannot block a dense run at the other.
func fuzzyIntervalMerge(intervals []interval, mergeFuzziness float64) []interval {
	forward := fuzzySandwich(intervals, true, mergeFuzziness)
	backward := fuzzySandwich(intervals, false, mergeFuzziness)
	return mergeIntervals(append(forward, backward...))
}

func fuzzySandwich(v []interval, forward bool, threshold float64) []interval {
	type weighted struct {
		interval
		covered int
	}
	var out []weighted
	for i := range v {
		next := v[i]
		if !forward {
			next = v[len(v)-1-i]
		}
		if len(out) == 0 {
			out = append(out, weighted{next, next.end - next.start})
			continue
		}
		cur := out[len(out)-1]
		merged := weighted{
			interval{start: min(next.start, cur.start), end: max(next.end, cur.end)},
			cur.covered + next.end - next.start,
		}
		if float64(merged.covered) >= float64(merged.end-merged.start)*threshold {
			out[len(out)-1] = merged
		} else {
			out = append(out, weighted{next, next.end - next.start})
		}
	}
	result := make([]interval, len(out))
	for i, w := range out {
		result[i] = w.interval
	}
	return result
}

// mergeIntervals sorts by start and unions overlapping or touching ranges.
func mergeIntervals(v []interval) []interval {
	sort.Slice(v, func(i, j int) bool {
		if v[i].start != v[j].start {
			return v[i].start < v[j].start
		}
		return v[i].end < v[j].end
	})
	var merged []interval
	for _, iv := range v {
		if n := len(merged); n > 0 && merged[n-1].end >= iv.start {
			if iv.end > merged[n-1].end {
				merged[n-1].end = iv.end
			}
		} else {
			merged = append(merged, iv)
		}
	}
	return merged
}
