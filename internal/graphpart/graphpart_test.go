package graphpart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addEdge(adj [][]uint32, u, v int) {
	adj[u] = append(adj[u], uint32(v))
	adj[v] = append(adj[v], uint32(u))
}

func grid(w, h int) *Graph {
	adj := make([][]uint32, w*h)
	for y := range h {
		for x := range w {
			v := y*w + x
			if x+1 < w {
				addEdge(adj, v, v+1)
			}
			if y+1 < h {
				addEdge(adj, v, v+w)
			}
		}
	}
	return &Graph{Adj: adj}
}

func TestMaxBlockWeight(t *testing.T) {
	tests := []struct {
		w    int64
		k    int
		eps  float64
		want int64
	}{
		{1000, 4, 0.05, 262},
		{10, 3, 0, 4},
		{10, 3, 0.05, 4},
		{100, 100, 0.05, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaxBlockWeight(tt.w, tt.k, tt.eps))
	}
}

func TestPartition_TwoCliques(t *testing.T) {
	adj := make([][]uint32, 10)
	for u := range 5 {
		for v := u + 1; v < 5; v++ {
			addEdge(adj, u, v)
			addEdge(adj, u+5, v+5)
		}
	}
	addEdge(adj, 4, 5)
	g := &Graph{Adj: adj}

	for _, strong := range []bool{false, true} {
		part, err := Partition(t.Context(), g, 2, Options{Seed: 555, Strong: strong})
		require.NoError(t, err)
		assert.Equal(t, 1, EdgeCut(g, part))
		assert.Equal(t, []int64{5, 5}, BlockWeights(g, part, 2))
	}
}

func TestPartition_GridBalancedLowCut(t *testing.T) {
	g := grid(20, 20)
	k := 4

	part, err := Partition(t.Context(), g, k, Options{Seed: 555})
	require.NoError(t, err)

	limit := MaxBlockWeight(400, k, 0.05)
	for b, w := range BlockWeights(g, part, k) {
		assert.Positive(t, w, "block %d", b)
		assert.LessOrEqual(t, w, limit, "block %d", b)
	}
	// A random 4-way split cuts about 570 of the 760 edges.
	assert.Less(t, EdgeCut(g, part), 200)
}

func TestPartition_Deterministic(t *testing.T) {
	g := grid(15, 10)
	a, err := Partition(t.Context(), g, 5, Options{Seed: 7})
	require.NoError(t, err)
	b, err := Partition(t.Context(), g, 5, Options{Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPartition_Disconnected(t *testing.T) {
	g := &Graph{Adj: make([][]uint32, 31)}

	part, err := Partition(t.Context(), g, 3, Options{Seed: 1})
	require.NoError(t, err)

	for _, w := range BlockWeights(g, part, 3) {
		assert.LessOrEqual(t, w, MaxBlockWeight(31, 3, 0.05))
	}
}

func TestPartition_VertexWeights(t *testing.T) {
	g := grid(8, 8)
	g.VertexWeights = make([]int64, 64)
	for i := range g.VertexWeights {
		g.VertexWeights[i] = int64(1 + i%3)
	}
	total := g.TotalWeight()

	part, err := Partition(t.Context(), g, 4, Options{Seed: 3, Strong: true})
	require.NoError(t, err)

	var sum int64
	for _, w := range BlockWeights(g, part, 4) {
		assert.LessOrEqual(t, w, MaxBlockWeight(total, 4, 0.05))
		sum += w
	}
	assert.Equal(t, total, sum)
}

func TestPartition_Errors(t *testing.T) {
	_, err := Partition(t.Context(), &Graph{Adj: [][]uint32{{5}}}, 2, Options{})
	assert.ErrorIs(t, err, ErrInvalidGraph)

	_, err = Partition(t.Context(), grid(2, 2), 0, Options{})
	assert.Error(t, err)

	part, err := Partition(t.Context(), grid(2, 2), 1, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 0, 0, 0}, part)
}
