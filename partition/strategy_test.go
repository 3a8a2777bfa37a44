package partition

import (
	"bytes"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardann/pointset"
	"github.com/hupe1980/shardann/testutil"
)

func run(t *testing.T, m Method, points *pointset.PointSet, k int, optFns ...func(o *Options)) *Result {
	t.Helper()
	s, err := New(m, optFns...)
	require.NoError(t, err)
	res, err := s.Partition(t.Context(), points, k)
	require.NoError(t, err)
	return res
}

func TestBalancedKMeans_ScenarioA(t *testing.T) {
	points := testutil.NewRNG(1).UniformPoints(1000, 16)

	res := run(t, BalancedKMeans, points, 4)

	require.NoError(t, res.Clusters.CheckCoverage(1000))
	for _, size := range res.Clusters.Sizes() {
		assert.LessOrEqual(t, size, 262)
	}
	require.NotNil(t, res.Centroids)
	assert.Equal(t, 4, res.Centroids.Len())
	assert.Equal(t, 16, res.Centroids.Dim())
}

func TestRandom_ScenarioB(t *testing.T) {
	p := RandomPartition(100, 5, 555)

	require.Len(t, p, 100)
	assert.Equal(t, []int{20, 20, 20, 20, 20}, p.Sizes(5))

	sorted := slices.Clone(p)
	slices.Sort(sorted)
	assert.NotEqual(t, sorted, p, "assignment must be shuffled")
	assert.Equal(t, p, RandomPartition(100, 5, 555))
}

func TestRandom_Remainder(t *testing.T) {
	p := RandomPartition(103, 5, 1)
	assert.Equal(t, []int{21, 21, 21, 20, 20}, p.Sizes(5))
}

func TestBalancedStrategies_RespectCapAndCoverage(t *testing.T) {
	points := testutil.NewRNG(7).ClusteredPoints(1200, 8, 5, 0.1)
	k := 6
	maxSize := MaxShardSize(points.Len(), k, 0.05)

	for _, m := range []Method{BalancedKMeans, RKM, GP, OurPyramid, Random} {
		t.Run(m.String(), func(t *testing.T) {
			res := run(t, m, points, k, func(o *Options) { o.Workers = 4 })

			require.Len(t, res.Clusters, k)
			require.NoError(t, res.Clusters.CheckCoverage(points.Len()))
			for b, size := range res.Clusters.Sizes() {
				assert.LessOrEqual(t, size, maxSize, "shard %d", b)
			}
		})
	}
}

func TestKMeans_SplitsOversizedClusters(t *testing.T) {
	// Two blobs of very different size force a split of the large one.
	points := testutil.NewRNG(9).ClusteredPoints(900, 4, 2, 0.05)
	rows := make([][]float32, 0, 1000)
	for i := range points.Len() {
		rows = append(rows, points.At(i))
	}
	for i := range 100 {
		rows = append(rows, []float32{10 + float32(i)*0.01, 10, 10, 10})
	}
	skewed, err := pointset.FromRows(rows)
	require.NoError(t, err)

	res := run(t, KMeans, skewed, 2)

	require.NoError(t, res.Clusters.CheckCoverage(skewed.Len()))
	assert.Greater(t, res.NumShards(), 2)
	for _, size := range res.Clusters.Sizes() {
		assert.LessOrEqual(t, size, MaxShardSize(skewed.Len(), 2, 0.05))
	}
	assert.Equal(t, res.NumShards(), res.Centroids.Len())
}

func TestFlatKMeans_Coverage(t *testing.T) {
	points := testutil.NewRNG(2).UniformPoints(300, 4)
	res := run(t, FlatKMeans, points, 5)
	require.NoError(t, res.Clusters.CheckCoverage(300))
	assert.Equal(t, 5, res.Centroids.Len())
}

func TestPyramid_RoutingIndex(t *testing.T) {
	points := testutil.NewRNG(3).ClusteredPoints(2000, 8, 10, 0.1)
	k := 4

	res := run(t, Pyramid, points, k)

	require.NoError(t, res.Clusters.CheckCoverage(points.Len()))
	require.NotNil(t, res.RoutingIndex)
	assert.Equal(t, 80, res.RoutingIndex.Points.Len())
	for _, l := range res.RoutingIndex.Labels {
		assert.GreaterOrEqual(t, l, int32(0))
		assert.Less(t, l, int32(k))
	}
}

func TestPyramid_WarnsWhenCapExceeded(t *testing.T) {
	// identical points all follow one centre into one shard
	points := pointset.New(500, 2)
	for i := range points.Len() {
		points.Set(i, []float32{1, 1})
	}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	res := run(t, Pyramid, points, 5, func(o *Options) { o.Logger = logger })

	require.NoError(t, res.Clusters.CheckCoverage(points.Len()))
	assert.Equal(t, 500, slices.Max(res.Clusters.Sizes()))
	assert.Contains(t, logs.String(), "Shard exceeds size cap")
	assert.Contains(t, logs.String(), "cap=105")
}

func TestOurPyramid_RoutingIndexIsSample(t *testing.T) {
	points := testutil.NewRNG(4).UniformPoints(1000, 4)

	res := run(t, OurPyramid, points, 5)

	require.NotNil(t, res.RoutingIndex)
	assert.Equal(t, 20, res.RoutingIndex.Points.Len())
	assert.Len(t, res.RoutingIndex.Labels, 20)
}

func TestDeterminism(t *testing.T) {
	points := testutil.NewRNG(5).UniformPoints(600, 8)

	for _, m := range []Method{BalancedKMeans, FlatKMeans, Random, RKM, GP} {
		t.Run(m.String(), func(t *testing.T) {
			a := run(t, m, points, 4, func(o *Options) { o.Workers = 1 })
			b := run(t, m, points, 4, func(o *Options) { o.Workers = 4 })
			assert.Equal(t, a.Partition, b.Partition)
			if a.Centroids != nil {
				assert.Equal(t, a.Centroids.Data(), b.Centroids.Data())
			}
		})
	}
}

func TestSeedChangesResult(t *testing.T) {
	points := testutil.NewRNG(5).UniformPoints(600, 8)
	a := run(t, Random, points, 4)
	b := run(t, Random, points, 4, func(o *Options) { o.Seed = 556 })
	assert.NotEqual(t, a.Partition, b.Partition)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Method(99))
	var um *UnknownMethodError
	assert.ErrorAs(t, err, &um)

	_, err = New(OBKM, func(o *Options) { o.Overlap = 1.5 })
	assert.ErrorIs(t, err, ErrInvalidOverlap)

	s, err := New(BalancedKMeans)
	require.NoError(t, err)
	_, err = s.Partition(t.Context(), testutil.LinePoints(3), 0)
	assert.ErrorIs(t, err, ErrInvalidShardCount)
}

func TestNew_GPWithOverlapBecomesOGP(t *testing.T) {
	s, err := New(GP, func(o *Options) { o.Overlap = 0.1 })
	require.NoError(t, err)
	assert.Equal(t, OGP, s.Method())
}
