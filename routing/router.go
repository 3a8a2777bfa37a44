package routing

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/hupe1980/shardann/distance"
	"github.com/hupe1980/shardann/hnsw"
	"github.com/hupe1980/shardann/partition"
	"github.com/hupe1980/shardann/pointset"
)

// Router ranks shards for a query.
type Router interface {
	// Name identifies the strategy in reports.
	Name() string

	// Parameters describes the strategy's settings as comma separated
	// key=value pairs.
	Parameters() string

	// Route returns every shard in probe order and the routing cost in
	// distance computations.
	Route(q []float32) (probes []int, cost float64)
}

// IndexedRouter is implemented by routers that need the query's position in
// the workload. The Engine prefers RouteIndexed when it is available.
type IndexedRouter interface {
	Router
	RouteIndexed(i int, q []float32) (probes []int, cost float64)
}

// unreachable ranks a shard behind every finite distance.
const unreachable = float32(math.MaxFloat32)

type scored struct {
	dist  float32
	shard int
}

func rank(s []scored) []int {
	slices.SortFunc(s, func(a, b scored) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.shard, b.shard)
	})
	out := make([]int, len(s))
	for i, x := range s {
		out[i] = x.shard
	}
	return out
}

// CentroidRouter probes shards in order of centroid distance. Empty shards
// have no meaningful centroid and are probed last, in id order.
type CentroidRouter struct {
	centroids *pointset.PointSet
	empty     []bool
}

// NewCentroidRouter routes by the given per-shard centroids. emptyShards
// lists the shards without members.
func NewCentroidRouter(centroids *pointset.PointSet, emptyShards ...int) *CentroidRouter {
	r := &CentroidRouter{centroids: centroids, empty: make([]bool, centroids.Len())}
	for _, b := range emptyShards {
		if b >= 0 && b < len(r.empty) {
			r.empty[b] = true
		}
	}
	return r
}

func (r *CentroidRouter) Name() string       { return "KMeansCentroids" }
func (r *CentroidRouter) Parameters() string { return "" }

func (r *CentroidRouter) Route(q []float32) ([]int, float64) {
	n := r.centroids.Len()
	s := make([]scored, n)
	dists := make([]float32, n)
	distance.SquaredL2Batch(q, r.centroids.Data(), r.centroids.Dim(), dists)
	for b, d := range dists {
		if r.empty[b] {
			d = unreachable
		}
		s[b] = scored{dist: d, shard: b}
	}
	return rank(s), float64(n)
}

// SampleRouter scores a shard by its closest routing point and scans all
// routing points.
type SampleRouter struct {
	points    *pointset.PointSet
	labels    []int32
	numShards int
}

// NewSampleRouter routes by routing points labelled with their shard.
func NewSampleRouter(ri *partition.RoutingIndex, numShards int) (*SampleRouter, error) {
	if err := checkIndex(ri, numShards); err != nil {
		return nil, err
	}
	return &SampleRouter{points: ri.Points, labels: ri.Labels, numShards: numShards}, nil
}

func (r *SampleRouter) Name() string { return "KMeansSample" }

func (r *SampleRouter) Parameters() string {
	return fmt.Sprintf("routing_points=%d", r.points.Len())
}

func (r *SampleRouter) Route(q []float32) ([]int, float64) {
	s := make([]scored, r.numShards)
	for b := range s {
		s[b] = scored{dist: unreachable, shard: b}
	}
	for i := range r.points.Len() {
		d := distance.SquaredL2(q, r.points.At(i))
		if b := r.labels[i]; d < s[b].dist {
			s[b].dist = d
		}
	}
	return rank(s), float64(r.points.Len())
}

// HNSWRouter searches an HNSW graph over routing points and probes shards in
// order of first appearance among the nearest routing points. Shards that do
// not appear follow in the fallback order.
type HNSWRouter struct {
	name      string
	index     *hnsw.HNSW
	labels    []int32
	numShards int
	neighbors int
	fallback  *CentroidRouter
}

// HNSWRouterOptions configures an HNSWRouter.
type HNSWRouterOptions struct {
	// Name overrides the reported strategy name.
	Name string

	// Neighbors is how many routing points are retrieved per query.
	Neighbors int

	// EF is the search width.
	EF int

	// M and EFConstruction configure the graph.
	M              int
	EFConstruction int

	Seed int64

	// Centroids orders shards absent from the retrieved routing points.
	// If nil, they follow in id order.
	Centroids *pointset.PointSet

	// EmptyShards are ordered last by the centroid fallback.
	EmptyShards []int
}

// NewHNSWRouter indexes the routing points of ri.
func NewHNSWRouter(ri *partition.RoutingIndex, numShards int, opts HNSWRouterOptions) (*HNSWRouter, error) {
	if err := checkIndex(ri, numShards); err != nil {
		return nil, err
	}
	if opts.Name == "" {
		opts.Name = "HNSW"
	}
	if opts.Neighbors <= 0 {
		opts.Neighbors = 100
	}
	if opts.EF <= 0 {
		opts.EF = 200
	}

	m := ri.Points.Len()
	idx := hnsw.New(ri.Points.Dim(), m, func(o *hnsw.Options) {
		if opts.M > 0 {
			o.M = opts.M
		}
		if opts.EFConstruction > 0 {
			o.EFConstruction = opts.EFConstruction
		}
		if opts.Seed != 0 {
			o.Seed = opts.Seed
		}
		o.EF = opts.EF
	})
	for i := range m {
		if err := idx.Insert(uint32(i), ri.Points.At(i)); err != nil {
			return nil, err
		}
	}

	r := &HNSWRouter{
		name:      opts.Name,
		index:     idx,
		labels:    ri.Labels,
		numShards: numShards,
		neighbors: min(opts.Neighbors, m),
	}
	if opts.Centroids != nil {
		r.fallback = NewCentroidRouter(opts.Centroids, opts.EmptyShards...)
	}
	return r, nil
}

func (r *HNSWRouter) Name() string { return r.name }

func (r *HNSWRouter) Parameters() string {
	return fmt.Sprintf("routing_points=%d,neighbors=%d,ef=%d", r.index.Len(), r.neighbors, r.index.EF())
}

func (r *HNSWRouter) Route(q []float32) ([]int, float64) {
	res, err := r.index.KNNSearch(q, r.neighbors)
	if err != nil {
		return r.complete(nil, q), 0
	}

	probes := make([]int, 0, r.numShards)
	seen := make([]bool, r.numShards)
	for _, nb := range res.Neighbors {
		b := r.labels[nb.ID]
		if !seen[b] {
			seen[b] = true
			probes = append(probes, int(b))
		}
	}
	return r.complete(probes, q), float64(res.DistanceComputations)
}

// complete appends the shards missing from probes.
func (r *HNSWRouter) complete(probes []int, q []float32) []int {
	if len(probes) == r.numShards {
		return probes
	}
	seen := make([]bool, r.numShards)
	for _, b := range probes {
		seen[b] = true
	}

	var order []int
	if r.fallback != nil {
		order, _ = r.fallback.Route(q)
	} else {
		order = make([]int, r.numShards)
		for b := range order {
			order[b] = b
		}
	}
	for _, b := range order {
		if b < r.numShards && !seen[b] {
			seen[b] = true
			probes = append(probes, b)
		}
	}
	return probes
}

// OracleRouter probes shards in order of how many true neighbours of the
// query they hold. It bounds what any router could achieve.
type OracleRouter struct {
	clusterOf [][]int32 // point -> shards
	truth     [][]uint32
	numShards int
	fallback  *CentroidRouter
}

// NewOracleRouter ranks by the ground-truth ids of each query. Ties follow
// the centroid order.
func NewOracleRouter(clusters partition.Clusters, n int, truth [][]uint32, centroids *pointset.PointSet) *OracleRouter {
	clusterOf := make([][]int32, n)
	for b, members := range clusters {
		for _, id := range members {
			clusterOf[id] = append(clusterOf[id], int32(b))
		}
	}
	return &OracleRouter{
		clusterOf: clusterOf,
		truth:     truth,
		numShards: len(clusters),
		fallback:  NewCentroidRouter(centroids, clusters.EmptyShards()...),
	}
}

func (r *OracleRouter) Name() string { return "Oracle" }

func (r *OracleRouter) Parameters() string {
	k := 0
	if len(r.truth) > 0 {
		k = len(r.truth[0])
	}
	return fmt.Sprintf("k=%d", k)
}

// Route without a query index falls back to the centroid order.
func (r *OracleRouter) Route(q []float32) ([]int, float64) {
	probes, _ := r.fallback.Route(q)
	return probes, 0
}

func (r *OracleRouter) RouteIndexed(i int, q []float32) ([]int, float64) {
	order, _ := r.fallback.Route(q)
	if i < 0 || i >= len(r.truth) {
		return order, 0
	}

	counts := make([]int, r.numShards)
	for _, id := range r.truth[i] {
		if int(id) >= len(r.clusterOf) {
			continue
		}
		for _, b := range r.clusterOf[id] {
			counts[b]++
		}
	}
	pos := make([]int, r.numShards)
	for p, b := range order {
		pos[b] = p
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(pos[a], pos[b])
	})
	return order, 0
}

func checkIndex(ri *partition.RoutingIndex, numShards int) error {
	if ri == nil || ri.Points == nil || ri.Points.Len() == 0 {
		return fmt.Errorf("routing: empty routing index")
	}
	if len(ri.Labels) != ri.Points.Len() {
		return fmt.Errorf("routing: %d labels for %d routing points", len(ri.Labels), ri.Points.Len())
	}
	for i, b := range ri.Labels {
		if b < 0 || int(b) >= numShards {
			return fmt.Errorf("routing: routing point %d has shard %d outside [0,%d)", i, b, numShards)
		}
	}
	return nil
}
