package combine

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardann/routing"
	"github.com/hupe1980/shardann/shardsearch"
)

// Two shards overlap on point 7, which is a true neighbour of query 0.
func overlappingSearch(effort int) *shardsearch.Result {
	s := shardsearch.NewResult(effort, 2, 2)
	s.Neighbors[0][0] = []uint32{7, 1}
	s.Neighbors[1][0] = []uint32{7}
	s.Neighbors[0][1] = []uint32{3}
	s.Neighbors[1][1] = []uint32{4, 5}
	s.Times[0] = []float64{0.5, 0.5}
	s.Times[1] = []float64{0.25, 0.25}
	return s
}

func params() Params {
	return Params{K: 2, NumQueries: 2, NumShards: 2, RequestedShards: 2, Method: "OBKM", Workers: 2}
}

func TestCombine_Dedup(t *testing.T) {
	routes := []routing.Config{
		{Strategy: "KMeansCentroids", NumProbes: 1, Probes: [][]int{{1}, {1}}, RoutingTime: 0.1, RoutingCost: 2},
		{Strategy: "KMeansCentroids", NumProbes: 2, Probes: [][]int{{1, 0}, {1, 0}}, RoutingTime: 0.1, RoutingCost: 2},
	}

	rep, err := Combine(t.Context(), routes, []*shardsearch.Result{overlappingSearch(50)}, params())
	require.NoError(t, err)
	require.Len(t, rep.Rows, 2)

	// One probe: q0 finds {7}, q1 finds {4,5}.
	assert.InDelta(t, (0.5+1.0)/2, rep.Rows[0].Recall, 1e-12)
	assert.InDelta(t, 0.25, rep.Rows[0].ShardLatency, 1e-12)

	// Two probes: q0 finds {7,1} once each, not three hits.
	assert.InDelta(t, 1.0, rep.Rows[1].Recall, 1e-12)
	assert.InDelta(t, 0.75, rep.Rows[1].ShardLatency, 1e-12)
	assert.InDelta(t, 0.85, rep.Rows[1].TotalLatency(), 1e-12)
}

func TestCombine_DedupDoesNotInflate(t *testing.T) {
	s := shardsearch.NewResult(50, 2, 1)
	s.Neighbors[0][0] = []uint32{7}
	s.Neighbors[1][0] = []uint32{7}
	routes := []routing.Config{{Strategy: "A", NumProbes: 2, Probes: [][]int{{0, 1}}}}

	rep, err := Combine(t.Context(), routes, []*shardsearch.Result{s}, Params{K: 2, NumQueries: 1, NumShards: 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rep.Rows[0].Recall, 1e-12)
}

func TestCombine_RecallMonotoneInEffort(t *testing.T) {
	low := shardsearch.NewResult(50, 2, 2)
	low.Neighbors[0][0] = []uint32{1}
	high := overlappingSearch(100)
	routes := []routing.Config{
		{Strategy: "A", NumProbes: 2, Probes: [][]int{{0, 1}, {0, 1}}},
	}

	rep, err := Combine(t.Context(), routes, []*shardsearch.Result{low, high}, params())
	require.NoError(t, err)
	require.Len(t, rep.Rows, 2)
	assert.Equal(t, 50, rep.Rows[0].Effort)
	assert.Equal(t, 100, rep.Rows[1].Effort)
	assert.LessOrEqual(t, rep.Rows[0].Recall, rep.Rows[1].Recall)
}

func TestCombine_Mismatch(t *testing.T) {
	search := []*shardsearch.Result{overlappingSearch(50)}

	_, err := Combine(t.Context(), nil, search, Params{K: 2, NumQueries: 3, NumShards: 2})
	assert.ErrorIs(t, err, ErrMismatch)

	_, err = Combine(t.Context(), []routing.Config{{Probes: [][]int{{0}}}}, search, params())
	assert.ErrorIs(t, err, ErrMismatch)

	_, err = Combine(t.Context(), []routing.Config{{Probes: [][]int{{0}, {2}}}}, search, params())
	assert.ErrorIs(t, err, ErrMismatch)

	_, err = Combine(t.Context(), nil, search, Params{NumQueries: 2, NumShards: 2})
	assert.Error(t, err)
}

func TestReport_WriteCSV(t *testing.T) {
	routes := []routing.Config{
		{Strategy: "HNSW", Parameters: "routing_points=4,neighbors=4,ef=200", NumProbes: 1, Probes: [][]int{{0}, {1}}, RoutingTime: 0.125},
	}
	rep, err := Combine(t.Context(), routes, []*shardsearch.Result{overlappingSearch(80)}, params())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, rep.WriteCSV(&buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{
		"OBKM", "2", "2", "2",
		"HNSW", "routing_points=4,neighbors=4,ef=200", "1", "80",
		"1", "0.375", "0.125", "0", "0.5",
	}, records[1])
}

func TestReport_Best(t *testing.T) {
	rep := &Report{Rows: []Row{
		{Strategy: "A", NumProbes: 1, Effort: 50, Recall: 0.8, ShardLatency: 1},
		{Strategy: "A", NumProbes: 1, Effort: 100, Recall: 0.92, ShardLatency: 2},
		{Strategy: "A", NumProbes: 1, Effort: 200, Recall: 0.95, ShardLatency: 3},
		{Strategy: "A", NumProbes: 2, Effort: 50, Recall: 0.91, ShardLatency: 1.5},
		{Strategy: "B", NumProbes: 1, Effort: 50, Recall: 0.5, ShardLatency: 0.1},
	}}

	best := rep.Best(0.9)
	require.Len(t, best, 2)
	assert.Equal(t, 100, best[0].Effort)
	assert.Equal(t, 2, best[1].NumProbes)
}
