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

// Package reservoir implements uniform (Vitter R) and weighted
// (Efraimidis-Spirakis A-Res) reservoir sampling with mergeable per-worker
// reservoirs.
package reservoir

import (
	"container/heap"
	"math"
	"math/rand/v2"
	"sort"
)

// Uniform holds up to k values sampled uniformly from the stream seen so far.
type Uniform struct {
	k     int
	n     int64
	items []float64
	rng   *rand.Rand
}

// NewUniform returns an empty uniform reservoir of capacity k.
func NewUniform(k int, rng *rand.Rand) *Uniform {
	return &Uniform{k: k, rng: rng}
}

// Add offers one value to the reservoir.
func (u *Uniform) Add(v float64) {
	if len(u.items) < u.k {
		u.items = append(u.items, v)
		u.n++
		return
	}
	// Vitter R: item n (0-based) replaces slot r when r < k, r drawn
	// uniformly from [0, n].
	r := u.rng.Int64N(u.n + 1)
	if r < int64(u.k) {
		u.items[r] = v
	}
	u.n++
}

// Seen returns how many values have been offered.
func (u *Uniform) Seen() int64 { return u.n }

// Values returns the sampled values. The slice aliases internal state.
func (u *Uniform) Values() []float64 { return u.items }

// Merge folds other into u, preserving uniformity: each merged slot comes
// from other with probability n_other / (n_self + n_other), sampling without
// replacement from both sides.
func (u *Uniform) Merge(other *Uniform) {
	size := u.k
	total := len(u.items) + len(other.items)
	if total < size {
		size = total
	}

	a := append([]float64(nil), u.items...)
	b := append([]float64(nil), other.items...)
	u.rng.Shuffle(len(a), func(i, j int) { a[i], a[j] = a[j], a[i] })
	u.rng.Shuffle(len(b), func(i, j int) { b[i], b[j] = b[j], b[i] })

	wa, wb := u.n, other.n
	merged := make([]float64, 0, size)
	for len(merged) < size {
		takeB := len(b) > 0 && (len(a) == 0 || u.rng.Float64()*float64(wa+wb) < float64(wb))
		if takeB {
			merged = append(merged, b[0])
			b = b[1:]
		} else {
			merged = append(merged, a[0])
			a = a[1:]
		}
	}
	u.items = merged
	u.n += other.n
}

// WeightedItem is one sampled value with its realized weight. Key is the
// log-space A-Res priority ln(U)/weight; larger keys win.
type WeightedItem struct {
	Value  float64
	Weight float64
	Key    float64
}

type itemHeap []WeightedItem

func (h itemHeap) Len() int           { return len(h) }
func (h itemHeap) Less(i, j int) bool { return h[i].Key < h[j].Key }
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)        { *h = append(*h, x.(WeightedItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Weighted holds up to k items sampled with probability proportional to
// weight (A-Res). The minimum-key item is evicted when the reservoir is full.
type Weighted struct {
	k    int
	heap itemHeap
	rng  *rand.Rand
}

// NewWeighted returns an empty weighted reservoir of capacity k.
func NewWeighted(k int, rng *rand.Rand) *Weighted {
	return &Weighted{k: k, rng: rng}
}

// Add offers one value with weight w > 0.
func (w *Weighted) Add(value, weight float64) {
	key := math.Log(w.rng.Float64()) / weight
	w.offer(WeightedItem{Value: value, Weight: weight, Key: key})
}

func (w *Weighted) offer(it WeightedItem) {
	if len(w.heap) < w.k {
		heap.Push(&w.heap, it)
		return
	}
	if it.Key > w.heap[0].Key {
		w.heap[0] = it
		heap.Fix(&w.heap, 0)
	}
}

// Merge folds other into w by keeping the top k of the union by key. Keys
// were drawn independently, so the union's top k is a valid A-Res reservoir.
func (w *Weighted) Merge(other *Weighted) {
	for _, it := range other.heap {
		w.offer(it)
	}
}

// Items returns the sampled items in heap order.
func (w *Weighted) Items() []WeightedItem { return w.heap }

// Percentile is one entry of the weighted reservoir output.
type Percentile struct {
	Percentile float64 `json:"percentile"`
	Value      float64 `json:"value"`
}

// Percentiles sorts items by value ascending and assigns each the midpoint
// percentile (cum_w - w/2) / total_w, scaled to [0, 100].
func Percentiles(items []WeightedItem) []Percentile {
	sorted := append([]WeightedItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value < sorted[j].Value })

	var totalW float64
	for _, it := range sorted {
		totalW += it.Weight
	}

	out := make([]Percentile, 0, len(sorted))
	var cumW float64
	for _, it := range sorted {
		cumW += it.Weight
		p := 0.0
		if totalW > 0 {
			p = (cumW - it.Weight/2) / totalW * 100
		}
		out = append(out, Percentile{Percentile: p, Value: it.Value})
	}
	return out
}
