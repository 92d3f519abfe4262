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

// Package processors implements the per-document filter/modifier/annotator
// catalogue and the name-to-constructor registry that pipelines are built
// from.
package processors

import (
	"math/rand/v2"
	"sync"
)

// Processor transforms a single document. The contract is uniform across
// filters, modifiers, and annotators:
//
//   - (doc', nil): keep the (possibly modified) document
//   - (nil, nil):  drop the document
//   - (nil, err):  processing failure, routed to the error sink
//
// Implementations are immutable after construction and safe for concurrent
// use.
type Processor interface {
	Process(doc any) (any, error)
}

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
)

// SetSeed reseeds the shared processor RNG. Used for deterministic tests and
// the --seed flag; per-worker seeding derives from this process seed.
func SetSeed(seed uint64) {
	rngMu.Lock()
	defer rngMu.Unlock()
	rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func randFloat() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Float64()
}
