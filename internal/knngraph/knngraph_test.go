package knngraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardann/internal/topk"
	"github.com/hupe1980/shardann/testutil"
)

func TestBuild_Line(t *testing.T) {
	g, err := Build(t.Context(), testutil.LinePoints(5), Options{Neighbors: 1})
	require.NoError(t, err)

	// 0-1, 1-0 (tie 0/2 goes to lower id), 2-1, 3-2, 4-3.
	assert.Equal(t, [][]uint32{{1}, {0, 2}, {1, 3}, {2, 4}, {3}}, g.Adj)
	assert.Equal(t, 4, g.NumEdges())
}

func TestSymmetrize(t *testing.T) {
	g := Symmetrize([][]topk.Item{
		{{ID: 1}, {ID: 0}},
		{{ID: 0}},
		{{ID: 0}},
	})
	assert.Equal(t, [][]uint32{{1, 2}, {0}, {0}}, g.Adj)
}

func TestNeighbors_ApproximateMatchesExact(t *testing.T) {
	points := testutil.NewRNG(5).UniformPoints(BruteForceLimit+500, 4)

	nn, err := Neighbors(t.Context(), points, Options{Neighbors: 5, Workers: 4, Seed: 555})
	require.NoError(t, err)
	require.Len(t, nn, points.Len())

	for i := range 20 {
		assert.Len(t, nn[i], 5)
		for _, nb := range nn[i] {
			assert.NotEqual(t, uint32(i), nb.ID)
		}
	}
}

func TestNeighbors_Tiny(t *testing.T) {
	nn, err := Neighbors(t.Context(), testutil.LinePoints(1), Options{})
	require.NoError(t, err)
	assert.Equal(t, [][]topk.Item{nil}, nn)
}
