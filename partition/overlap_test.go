package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardann/pointset"
	"github.com/hupe1980/shardann/testutil"
)

func TestOverlappingMethods_Invariants(t *testing.T) {
	points := testutil.NewRNG(11).ClusteredPoints(1000, 8, 6, 0.2)
	n, k, o := points.Len(), 5, 0.2
	maxSize := MaxShardSize(n, k, 0.05)

	for _, m := range []Method{ORKM, OBKM, OKM, OGPS, OGP} {
		t.Run(m.String(), func(t *testing.T) {
			res := run(t, m, points, k, func(o2 *Options) {
				o2.Overlap = o
				o2.Workers = 2
			})

			extra, err := res.Clusters.CheckOverlap(n)
			require.NoError(t, err)
			assert.LessOrEqual(t, extra, int(o*float64(n)))
			require.NotNil(t, res.Overlap)
			assert.Equal(t, extra, res.Overlap.Realized)
			assert.Equal(t, 200, res.Overlap.Requested)
			assert.Len(t, res.Partition, n)

			if m != OGP && m != OGPS {
				for b, size := range res.Clusters.Sizes() {
					assert.LessOrEqual(t, size, maxSize, "shard %d", b)
				}
			}
		})
	}
}

func TestOverlapHeadroom(t *testing.T) {
	points := testutil.NewRNG(12).UniformPoints(1000, 4)

	res := run(t, OBKM, points, 4, func(o *Options) { o.Overlap = 0.5 })
	assert.Len(t, res.Clusters, 6) // ceil(4 * 1.5)
	assert.Equal(t, 6, res.Centroids.Len())

	// cap(k=4) = 262, k' = ceil((1000 + 500) / 262) = 6.
	res = run(t, OGPS, points, 4, func(o *Options) { o.Overlap = 0.5 })
	assert.Len(t, res.Clusters, 6)
}

func TestSPANNOverlap_Budget(t *testing.T) {
	points := testutil.LinePoints(10)
	base := Clusters{{0, 1, 2, 3, 4}, {5, 6, 7, 8, 9}}

	out, stats, err := SPANNOverlap(t.Context(), points, base, 2, 1.0, 0.2, OverlapOptions{MaxReplicas: 2, Closure: 10})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Requested)
	assert.Equal(t, 2, stats.Realized)
	// Best ratios belong to the boundary points 4 and 5.
	assert.Equal(t, Clusters{{0, 1, 2, 3, 4, 5}, {4, 5, 6, 7, 8, 9}}, out)
}

func TestSPANNOverlap_CapBinds(t *testing.T) {
	points := testutil.LinePoints(10)
	base := Clusters{{0, 1, 2, 3, 4}, {5, 6, 7, 8, 9}}

	// cap = max(floor(10*1.05/2), 5) = 5: no shard can grow.
	out, stats, err := SPANNOverlap(t.Context(), points, base, 2, 0.05, 0.5, OverlapOptions{Closure: 10})
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Requested)
	assert.Equal(t, 0, stats.Realized)
	assert.Equal(t, base, out)
}

func TestSPANNOverlap_RNGRule(t *testing.T) {
	// Shards 1 and 2 lie on the same side of the point; 2 is occluded by 1.
	points, err := pointset.FromRows([][]float32{
		{0}, {0.4},
		{1}, {1.2},
		{2}, {2.2},
	})
	require.NoError(t, err)
	base := Clusters{{0, 1}, {2, 3}, {4, 5}}

	out, stats, err := SPANNOverlap(t.Context(), points, base, 1, 1.0, 1.0, OverlapOptions{MaxReplicas: 3, Closure: 100})
	require.NoError(t, err)

	_, err = out.CheckOverlap(6)
	require.NoError(t, err)
	for _, id := range out[2] {
		assert.GreaterOrEqual(t, id, uint32(2), "points 0 and 1 must not replicate past shard 1")
	}
	assert.Positive(t, stats.Realized)
}

func TestGraphOverlap(t *testing.T) {
	// Path 0-1-2-3, split in the middle.
	adj := [][]uint32{{1}, {0, 2}, {1, 3}, {2}}
	base := Partition{0, 0, 1, 1}

	out, stats := GraphOverlap(adj, base, 2, 2, 1.0, 0.5, 8)
	assert.Equal(t, 2, stats.Requested)
	assert.Equal(t, 2, stats.Realized)
	assert.Equal(t, Clusters{{0, 1, 2}, {1, 2, 3}}, out)
}
