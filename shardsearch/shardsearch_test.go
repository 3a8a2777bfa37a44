package shardsearch

import (
	"bytes"
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardann/distance"
	"github.com/hupe1980/shardann/groundtruth"
	"github.com/hupe1980/shardann/internal/resource"
	"github.com/hupe1980/shardann/partition"
	"github.com/hupe1980/shardann/testutil"
)

func TestBuildShardIndex_Empty(t *testing.T) {
	points := testutil.NewRNG(1).UniformPoints(10, 4)
	_, err := BuildShardIndex(t.Context(), points, nil, 0, DefaultIndexParams, 1)
	assert.ErrorIs(t, err, ErrEmptyShard)
}

func TestBuildShardIndex_GlobalIDs(t *testing.T) {
	points := testutil.NewRNG(2).UniformPoints(300, 8)
	members := make([]uint32, 0, 150)
	for i := uint32(0); i < 300; i += 2 {
		members = append(members, i)
	}

	params := DefaultIndexParams
	params.SequentialPrefix = 32
	params.ChunkSize = 16
	idx, err := BuildShardIndex(t.Context(), points, members, 3, params, 4)
	require.NoError(t, err)
	assert.Equal(t, 150, idx.Len())
	assert.Equal(t, 150, idx.Index.Len())

	// The member list itself is not reordered.
	assert.Equal(t, uint32(0), members[0])

	found, err := idx.Search(points.At(42), 5, 100)
	require.NoError(t, err)
	require.Len(t, found, 5)
	assert.Equal(t, uint32(42), found[0].ID)
	assert.Zero(t, found[0].Distance)
	for _, nb := range found {
		assert.Zero(t, nb.ID%2, "hit %d is not a member", nb.ID)
		assert.InDelta(t, distance.SquaredL2(points.At(42), points.At(int(nb.ID))), nb.Distance, 1e-5)
	}

	seen := make(map[uint32]bool)
	for local := range idx.Len() {
		seen[idx.Global(uint32(local))] = true
	}
	assert.Len(t, seen, 150)
}

func TestBuildShardIndex_Deterministic(t *testing.T) {
	points := testutil.NewRNG(3).UniformPoints(400, 8)
	members := make([]uint32, 400)
	for i := range members {
		members[i] = uint32(i)
	}
	q := testutil.NewRNG(4).UniformPoints(1, 8).At(0)

	params := DefaultIndexParams
	a, err := BuildShardIndex(t.Context(), points, members, 1, params, 1)
	require.NoError(t, err)
	b, err := BuildShardIndex(t.Context(), points, members, 1, params, 1)
	require.NoError(t, err)

	ra, err := a.Search(q, 10, 50)
	require.NoError(t, err)
	rb, err := b.Search(q, 10, 50)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func sampleResult() *Result {
	r := NewResult(50, 2, 3)
	r.Neighbors[0][0] = []uint32{1, 7}
	r.Neighbors[0][1] = []uint32{3}
	r.Neighbors[0][2] = []uint32{9, 4, 12}
	r.Neighbors[1][0] = []uint32{20}
	r.Neighbors[1][2] = []uint32{21, 22}
	r.Times[0] = []float64{0.00125, 0.00125, 0.00125}
	r.Times[1] = []float64{1.5e-7, 1.5e-7, 1.5e-7}
	return r
}

func TestWriteReadResults_RoundTrip(t *testing.T) {
	in := []*Result{sampleResult(), NewResult(80, 2, 3)}

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, in))

	lines := strings.Split(buf.String(), "\n")
	assert.Equal(t, "2", lines[0])
	assert.Equal(t, "S", lines[1])
	assert.Equal(t, "50 2 3", lines[2])
	assert.Equal(t, "1 7", lines[3])
	assert.Equal(t, "", lines[7], "shard 1 has no hits for query 1")
	assert.Equal(t, "0.00125 0.00125 0.00125", lines[9])

	out, err := ReadResults(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, 9, out[0].TotalHits())
	assert.Zero(t, out[1].TotalHits())
}

func TestReadResults_Malformed(t *testing.T) {
	tests := map[string]string{
		"count":     "x\n",
		"marker":    "1\nT\n50 1 1\n\n0\n",
		"header":    "1\nS\n50 one 1\n",
		"truncated": "1\nS\n50 1 2\n1 2\n",
		"hit":       "1\nS\n50 1 1\n-3\n0\n",
		"times":     "1\nS\n50 1 2\n\n\n0.5\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadResults(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestResultsFile_Compressed(t *testing.T) {
	in := []*Result{sampleResult()}
	for _, name := range []string{"out.searches", "out.searches.zst", "out.searches.lz4"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, WriteResultsFile(path, in))
		out, err := ReadResultsFile(path)
		require.NoError(t, err)
		assert.Equal(t, in, out, name)
	}
}

func TestEvaluator_Run(t *testing.T) {
	rng := testutil.NewRNG(5)
	points := rng.UniformPoints(600, 8)
	queries := rng.UniformPoints(25, 8)
	k := 10

	gt, err := groundtruth.Compute(t.Context(), points, queries, k, 2)
	require.NoError(t, err)
	distToKth, err := groundtruth.DistanceToKth(gt, k, points, queries)
	require.NoError(t, err)

	clusters := partition.FromPartition(partition.RandomPartition(600, 3, 555), 3)

	ev := New(func(o *Options) {
		o.Controller = resource.NewController(resource.Config{Workers: 4, ShardParallelism: 2})
	})
	results, err := ev.Run(t.Context(), points, queries, clusters, distToKth, k)
	require.NoError(t, err)
	require.Len(t, results, len(DefaultEfforts))

	prevHits := -1
	for i, res := range results {
		assert.Equal(t, DefaultEfforts[i], res.Effort)
		assert.Equal(t, 3, res.NumShards())
		assert.Equal(t, 25, res.NumQueries())

		for b := range 3 {
			for q := range 25 {
				for _, id := range res.Neighbors[b][q] {
					_, ok := slices.BinarySearch(clusters[b], id)
					assert.True(t, ok, "hit %d not in shard %d", id, b)
					assert.LessOrEqual(t, distance.SquaredL2(queries.At(q), points.At(int(id))), distToKth[q])
				}
				assert.GreaterOrEqual(t, res.Times[b][q], 0.0)
			}
		}

		hits := res.TotalHits()
		assert.GreaterOrEqual(t, hits, prevHits, "effort %d", res.Effort)
		prevHits = hits
	}
	assert.GreaterOrEqual(t, prevHits, int(0.95*float64(25*k)))
}

func TestEvaluator_EmptyShard(t *testing.T) {
	rng := testutil.NewRNG(6)
	points := rng.UniformPoints(100, 4)
	queries := rng.UniformPoints(5, 4)
	distToKth := []float32{1, 1, 1, 1, 1}

	members := make([]uint32, 100)
	for i := range members {
		members[i] = uint32(i)
	}
	clusters := partition.Clusters{members, nil}

	ev := New(func(o *Options) { o.Efforts = []int{100, 50} })
	assert.Equal(t, []int{50, 100}, ev.Efforts())

	results, err := ev.Run(t.Context(), points, queries, clusters, distToKth, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		for q := range 5 {
			assert.Empty(t, res.Neighbors[1][q])
			assert.Zero(t, res.Times[1][q])
		}
	}
}

func TestEvaluator_Errors(t *testing.T) {
	points := testutil.NewRNG(7).UniformPoints(10, 4)
	ev := New()

	_, err := ev.Run(t.Context(), points, testutil.NewRNG(8).UniformPoints(2, 4), nil, []float32{1}, 1)
	assert.Error(t, err)

	_, err = ev.Run(t.Context(), points, testutil.NewRNG(8).UniformPoints(1, 3), nil, []float32{1}, 1)
	assert.Error(t, err)
}

func TestBuildShardIndex_DotMetric(t *testing.T) {
	points := testutil.NewRNG(9).UniformPoints(200, 6)
	members := make([]uint32, 200)
	for i := range members {
		members[i] = uint32(i)
	}

	params := DefaultIndexParams
	params.Metric = distance.MetricDot
	idx, err := BuildShardIndex(t.Context(), points, members, 0, params, 2)
	require.NoError(t, err)

	q := points.At(17)
	found, err := idx.Search(q, 5, 200)
	require.NoError(t, err)
	require.Len(t, found, 5)
	for _, nb := range found {
		assert.InDelta(t, distance.NegativeDot(q, points.At(int(nb.ID))), nb.Distance, 1e-5)
	}

	params.Metric = distance.Metric(42)
	_, err = BuildShardIndex(t.Context(), points, members, 0, params, 2)
	assert.Error(t, err)
}

func TestEvaluator_RunCancelled(t *testing.T) {
	rng := testutil.NewRNG(10)
	points := rng.UniformPoints(300, 4)
	queries := rng.UniformPoints(3, 4)
	clusters := partition.FromPartition(partition.RandomPartition(300, 4, 555), 4)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	ev := New(func(o *Options) {
		o.Index.SequentialPrefix = 0
		o.Controller = resource.NewController(resource.Config{Workers: 2, ShardParallelism: 2})
	})
	_, err := ev.Run(ctx, points, queries, clusters, []float32{1, 1, 1}, 2)
	assert.ErrorIs(t, err, context.Canceled)
}
