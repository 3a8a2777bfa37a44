package graphpart

import (
	"cmp"
	"math/rand"
	"slices"
)

// refiner improves a k-way partition in place under a hard weight cap.
type refiner struct {
	g         *Graph
	part      []int32
	k         int
	cap       int64
	weights   []int64
	maxWeight int64
	rng       *rand.Rand

	conn    []int32
	touched []int32
}

func newRefiner(g *Graph, part []int32, k int, capWeight int64, rng *rand.Rand) *refiner {
	return &refiner{
		g:       g,
		part:    part,
		k:       k,
		cap:     capWeight,
		weights: BlockWeights(g, part, k),
		rng:     rng,
		conn:    make([]int32, k),
	}
}

// count fills conn with the number of neighbours of v per block.
func (r *refiner) count(v uint32) {
	for _, b := range r.touched {
		r.conn[b] = 0
	}
	r.touched = r.touched[:0]
	for _, u := range r.g.Adj[v] {
		b := r.part[u]
		if r.conn[b] == 0 {
			r.touched = append(r.touched, b)
		}
		r.conn[b]++
	}
}

func (r *refiner) move(v uint32, to int32) {
	w := r.g.weight(v)
	r.weights[r.part[v]] -= w
	r.weights[to] += w
	r.part[v] = to
}

// labelPropagation moves each vertex to the block holding most of its
// neighbours when that block has room. Ties go to the lower block id.
func (r *refiner) labelPropagation(passes int) {
	order := r.rng.Perm(len(r.part))

	for pass := 0; pass < passes; pass++ {
		moved := 0
		for _, i := range order {
			v := uint32(i)
			from := r.part[v]
			r.count(v)

			best, bestConn := from, r.conn[from]
			w := r.g.weight(v)
			for _, b := range r.touched {
				if b == from || r.weights[b]+w > r.cap {
					continue
				}
				if r.conn[b] > bestConn || (r.conn[b] == bestConn && b < best && best != from) {
					best, bestConn = b, r.conn[b]
				}
			}
			if best != from {
				r.move(v, best)
				moved++
			}
		}
		if moved == 0 {
			break
		}
	}
}

// enforceBalance drains every block above the cap, moving the vertices whose
// departure loses the fewest internal edges. Reports whether all blocks fit.
func (r *refiner) enforceBalance() bool {
	type cand struct {
		v    uint32
		loss int32
		to   int32
	}

	ok := true
	for from := int32(0); int(from) < r.k; from++ {
		for r.weights[from] > r.cap {
			var cands []cand
			for i, b := range r.part {
				if b != from {
					continue
				}
				v := uint32(i)
				if to, loss, found := r.bestTarget(v, from); found {
					cands = append(cands, cand{v: v, loss: loss, to: to})
				}
			}
			slices.SortFunc(cands, func(x, y cand) int {
				if c := cmp.Compare(x.loss, y.loss); c != 0 {
					return c
				}
				return cmp.Compare(x.v, y.v)
			})

			moved := false
			for _, c := range cands {
				if r.weights[from] <= r.cap {
					break
				}
				if r.weights[c.to]+r.g.weight(c.v) > r.cap {
					continue
				}
				r.move(c.v, c.to)
				moved = true
			}
			if !moved {
				ok = false
				break
			}
		}
	}

	r.maxWeight = slices.Max(r.weights)
	return ok
}

// bestTarget picks the block with room that keeps most of v's edges, falling
// back to the lightest block with room.
func (r *refiner) bestTarget(v uint32, from int32) (int32, int32, bool) {
	w := r.g.weight(v)
	r.count(v)

	best, bestConn := int32(-1), int32(-1)
	for _, b := range r.touched {
		if b == from || r.weights[b]+w > r.cap {
			continue
		}
		if r.conn[b] > bestConn || (r.conn[b] == bestConn && b < best) {
			best, bestConn = b, r.conn[b]
		}
	}
	if best < 0 {
		var lightest int64
		for b := int32(0); int(b) < r.k; b++ {
			if b == from || r.weights[b]+w > r.cap {
				continue
			}
			if best < 0 || r.weights[b] < lightest {
				best, lightest = b, r.weights[b]
			}
		}
		bestConn = 0
	}
	if best < 0 {
		return 0, 0, false
	}
	return best, r.conn[from] - bestConn, true
}
