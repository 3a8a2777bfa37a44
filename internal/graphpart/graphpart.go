package graphpart

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"
)

// ErrInvalidGraph is returned for adjacency lists that reference missing vertices.
var ErrInvalidGraph = errors.New("graphpart: invalid graph")

// Graph is an undirected graph with unit edge weights.
type Graph struct {
	// Adj[v] lists the neighbours of v. Every edge appears in both lists.
	Adj [][]uint32

	// VertexWeights defaults to 1 per vertex when nil.
	VertexWeights []int64
}

func (g *Graph) weight(v uint32) int64 {
	if g.VertexWeights == nil {
		return 1
	}
	return g.VertexWeights[v]
}

// TotalWeight returns the sum of vertex weights.
func (g *Graph) TotalWeight() int64 {
	if g.VertexWeights == nil {
		return int64(len(g.Adj))
	}
	var w int64
	for _, x := range g.VertexWeights {
		w += x
	}
	return w
}

// Options configures a partitioning run.
type Options struct {
	// Epsilon is the allowed imbalance. Defaults to 0.05.
	Epsilon float64

	// Seed drives seed-vertex selection and visit orders.
	Seed int64

	// Strong spends more restarts and refinement passes.
	Strong bool

	// Logger receives balance warnings. Nil discards them.
	Logger *slog.Logger
}

func (o Options) budget() (restarts, passes, kwayPasses int) {
	if o.Strong {
		return 8, 8, 10
	}
	return 2, 4, 3
}

// MaxBlockWeight is the block weight cap for total weight w split k ways.
func MaxBlockWeight(w int64, k int, eps float64) int64 {
	floor := int64(math.Floor(float64(w) * (1 + eps) / float64(k)))
	ceil := (w + int64(k) - 1) / int64(k)
	return max(floor, ceil)
}

// Partition assigns every vertex a block in [0, k).
func Partition(ctx context.Context, g *Graph, k int, opts Options) ([]int32, error) {
	if k <= 0 {
		return nil, fmt.Errorf("graphpart: invalid block count %d", k)
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = 0.05
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	n := len(g.Adj)
	if g.VertexWeights != nil && len(g.VertexWeights) != n {
		return nil, fmt.Errorf("%w: %d weights for %d vertices", ErrInvalidGraph, len(g.VertexWeights), n)
	}
	for v, row := range g.Adj {
		for _, u := range row {
			if int(u) >= n {
				return nil, fmt.Errorf("%w: edge %d-%d", ErrInvalidGraph, v, u)
			}
		}
	}

	part := make([]int32, n)
	if k == 1 || n == 0 {
		return part, nil
	}

	restarts, passes, kwayPasses := opts.budget()
	b := &bisector{
		g:        g,
		rng:      rand.New(rand.NewSource(opts.Seed)),
		stamp:    make([]int32, n),
		side:     make([]int8, n),
		gain:     make([]int32, n),
		restarts: restarts,
		passes:   passes,
		tol:      opts.Epsilon / 2,
	}

	verts := make([]uint32, n)
	for i := range verts {
		verts[i] = uint32(i)
	}
	if err := b.recurse(ctx, verts, k, 0, part); err != nil {
		return nil, err
	}

	r := newRefiner(g, part, k, MaxBlockWeight(g.TotalWeight(), k, opts.Epsilon), b.rng)
	r.labelPropagation(kwayPasses)
	if !r.enforceBalance() {
		opts.Logger.Warn("Partition exceeds block weight cap", "k", k, "max_block_weight", r.maxWeight, "cap", r.cap)
	}

	return part, nil
}

// EdgeCut counts edges whose endpoints lie in different blocks.
func EdgeCut(g *Graph, part []int32) int {
	cut := 0
	for v, row := range g.Adj {
		for _, u := range row {
			if part[v] != part[u] {
				cut++
			}
		}
	}
	return cut / 2
}

// BlockWeights returns the total vertex weight of each block.
func BlockWeights(g *Graph, part []int32, k int) []int64 {
	out := make([]int64, k)
	for v, b := range part {
		out[b] += g.weight(uint32(v))
	}
	return out
}

type bisector struct {
	g        *Graph
	rng      *rand.Rand
	stamp    []int32
	cur      int32
	side     []int8
	gain     []int32
	restarts int
	passes   int
	tol      float64
}

func (b *bisector) recurse(ctx context.Context, verts []uint32, k int, base int32, part []int32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if k == 1 || len(verts) == 0 {
		for _, v := range verts {
			part[v] = base
		}
		return nil
	}

	k1 := k / 2
	var total int64
	for _, v := range verts {
		total += b.g.weight(v)
	}
	target := float64(total) * float64(k1) / float64(k)

	b.bisect(verts, target)

	left := make([]uint32, 0, len(verts))
	right := make([]uint32, 0, len(verts))
	for _, v := range verts {
		if b.side[v] == 0 {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}

	if err := b.recurse(ctx, left, k1, base, part); err != nil {
		return err
	}
	return b.recurse(ctx, right, k-k1, base+int32(k1), part)
}

// bisect leaves side[v] in {0, 1} for every v in verts, with side 0 weighing
// about target.
func (b *bisector) bisect(verts []uint32, target float64) {
	b.cur++
	for _, v := range verts {
		b.stamp[v] = b.cur
	}

	var maxW int64
	for _, v := range verts {
		maxW = max(maxW, b.g.weight(v))
	}
	slack := max(b.tol*target, float64(maxW))

	best := make([]int8, len(verts))
	bestCut, bestDev := math.MaxInt, math.Inf(1)

	for r := 0; r < b.restarts; r++ {
		seed := verts[b.rng.Intn(len(verts))]
		wA := b.grow(verts, seed, target)
		wA = b.refine(verts, wA, target, slack)

		dev := math.Abs(float64(wA) - target)
		if dev <= slack {
			dev = 0
		}
		cut := b.cut(verts)
		if dev < bestDev || (dev == bestDev && cut < bestCut) {
			bestDev, bestCut = dev, cut
			for i, v := range verts {
				best[i] = b.side[v]
			}
		}
	}

	for i, v := range verts {
		b.side[v] = best[i]
	}
}

func (b *bisector) in(v uint32) bool { return b.stamp[v] == b.cur }

// grow moves vertices to side 0 in order of decreasing gain, starting at seed,
// until side 0 reaches target weight. Returns the weight of side 0.
func (b *bisector) grow(verts []uint32, seed uint32, target float64) int64 {
	for _, v := range verts {
		b.side[v] = 1
		var d int32
		for _, u := range b.g.Adj[v] {
			if b.in(u) {
				d++
			}
		}
		b.gain[v] = -d
	}

	pq := &gainQueue{}
	pq.push(seed, b.gain[seed])

	var wA int64
	scan := b.rng.Intn(len(verts))
	for float64(wA) < target {
		v, ok := pq.pop(b)
		if !ok {
			// Frontier exhausted: the set is disconnected. Restart elsewhere.
			found := false
			for i := 0; i < len(verts); i++ {
				u := verts[(scan+i)%len(verts)]
				if b.side[u] == 1 {
					v, found = u, true
					scan = (scan + i) % len(verts)
					break
				}
			}
			if !found {
				break
			}
		}

		b.side[v] = 0
		wA += b.g.weight(v)
		for _, u := range b.g.Adj[v] {
			if b.in(u) && b.side[u] == 1 {
				b.gain[u] += 2
				pq.push(u, b.gain[u])
			}
		}
	}

	return wA
}

// refine moves boundary vertices with positive gain across the cut while the
// side weights stay within target +- slack. Zero-gain moves are taken when
// they reduce imbalance. Returns the new weight of side 0.
func (b *bisector) refine(verts []uint32, wA int64, target, slack float64) int64 {
	type cand struct {
		v    uint32
		gain int32
	}

	gainOf := func(v uint32) int32 {
		var ext, internal int32
		for _, u := range b.g.Adj[v] {
			if !b.in(u) {
				continue
			}
			if b.side[u] == b.side[v] {
				internal++
			} else {
				ext++
			}
		}
		return ext - internal
	}

	for pass := 0; pass < b.passes; pass++ {
		var cands []cand
		for _, v := range verts {
			if g := gainOf(v); g >= 0 && b.boundary(v) {
				cands = append(cands, cand{v: v, gain: g})
			}
		}
		slices.SortFunc(cands, func(x, y cand) int {
			if c := cmp.Compare(y.gain, x.gain); c != 0 {
				return c
			}
			return cmp.Compare(x.v, y.v)
		})

		moved := 0
		for _, c := range cands {
			g := gainOf(c.v)
			if g < 0 {
				continue
			}
			w := b.g.weight(c.v)
			next := wA + w
			if b.side[c.v] == 0 {
				next = wA - w
			}
			devNow := math.Abs(float64(wA) - target)
			devNext := math.Abs(float64(next) - target)
			if devNext > slack && devNext >= devNow {
				continue
			}
			if g == 0 && devNext >= devNow {
				continue
			}
			b.side[c.v] ^= 1
			wA = next
			moved++
		}
		if moved == 0 {
			break
		}
	}

	return wA
}

func (b *bisector) boundary(v uint32) bool {
	for _, u := range b.g.Adj[v] {
		if b.in(u) && b.side[u] != b.side[v] {
			return true
		}
	}
	return false
}

func (b *bisector) cut(verts []uint32) int {
	cut := 0
	for _, v := range verts {
		if b.side[v] != 0 {
			continue
		}
		for _, u := range b.g.Adj[v] {
			if b.in(u) && b.side[u] != 0 {
				cut++
			}
		}
	}
	return cut
}
