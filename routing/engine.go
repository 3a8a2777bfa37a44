package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/shardann/groundtruth"
	"github.com/hupe1980/shardann/internal/kmeans"
	"github.com/hupe1980/shardann/internal/resource"
	"github.com/hupe1980/shardann/partition"
	"github.com/hupe1980/shardann/pointset"
)

// Config is one routing decision for the whole workload: every query probes
// its first NumProbes shards of the strategy's ranking.
type Config struct {
	Strategy   string
	Parameters string
	NumProbes  int

	// Probes[q] are the shards probed by query q, in probe order.
	Probes [][]int

	// RoutingTime is the attributed per-query routing time in seconds.
	RoutingTime float64

	// RoutingCost is the mean number of distance computations per query.
	RoutingCost float64
}

// Options configures an Engine.
type Options struct {
	// Budget is the number of sampled routing points. Zero disables the
	// sample based routers.
	Budget int

	// MaxProbes caps the emitted probe counts. Zero means all shards.
	MaxProbes int

	// Seed drives routing point sampling.
	Seed int64

	// KMeansIterations bounds the routing point k-means.
	KMeansIterations int

	// HNSW configures the graph router over sampled routing points.
	HNSW HNSWRouterOptions

	// RoutingIndex, when set, adds a router over a persisted routing index
	// reported under RoutingIndexName.
	RoutingIndex     *partition.RoutingIndex
	RoutingIndexName string

	// Oracle adds the ground-truth router.
	Oracle bool

	// Controller bounds the per-query fan-out. Nil runs sequentially.
	Controller *resource.Controller

	Logger *slog.Logger
}

// DefaultOptions contains the default engine options.
var DefaultOptions = Options{
	Seed:             555,
	KMeansIterations: 20,
	HNSW: HNSWRouterOptions{
		Neighbors:      100,
		EF:             200,
		M:              32,
		EFConstruction: 200,
	},
	Oracle: true,
}

// Engine evaluates routers over a query workload.
type Engine struct {
	opts Options
}

// New creates a routing engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.RoutingIndexName == "" {
		opts.RoutingIndexName = "RoutingIndex"
	}

	return &Engine{opts: opts}
}

// Routers builds the configured routers for a clustering.
func (e *Engine) Routers(ctx context.Context, points *pointset.PointSet, clusters partition.Clusters, truth [][]uint32) ([]Router, error) {
	numShards := len(clusters)
	centroids := clusters.Centroids(points)
	empty := clusters.EmptyShards()

	routers := []Router{NewCentroidRouter(centroids, empty...)}

	if e.opts.Budget > 0 {
		start := time.Now()
		ri, err := SampleRoutingPoints(ctx, points, clusters, e.opts.Budget, e.opts.Seed, kmeans.Options{
			MaxIter: e.opts.KMeansIterations,
			Workers: e.opts.Controller.Workers(),
			Logger:  e.opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		e.opts.Logger.Info("Sampled routing points", "routing_points", ri.Points.Len(), "budget", e.opts.Budget, "took", time.Since(start))

		sample, err := NewSampleRouter(ri, numShards)
		if err != nil {
			return nil, err
		}
		hopts := e.opts.HNSW
		hopts.Centroids = centroids
		hopts.EmptyShards = empty
		if hopts.Seed == 0 {
			hopts.Seed = e.opts.Seed
		}
		graph, err := NewHNSWRouter(ri, numShards, hopts)
		if err != nil {
			return nil, err
		}
		routers = append(routers, sample, graph)
	}

	if e.opts.RoutingIndex != nil {
		hopts := e.opts.HNSW
		hopts.Name = e.opts.RoutingIndexName
		hopts.Centroids = centroids
		hopts.EmptyShards = empty
		if hopts.Seed == 0 {
			hopts.Seed = e.opts.Seed
		}
		r, err := NewHNSWRouter(e.opts.RoutingIndex, numShards, hopts)
		if err != nil {
			return nil, fmt.Errorf("routing: %s: %w", e.opts.RoutingIndexName, err)
		}
		routers = append(routers, r)
	}

	if e.opts.Oracle && truth != nil {
		routers = append(routers, NewOracleRouter(clusters, points.Len(), truth, centroids))
	}

	return routers, nil
}

// Evaluate routes every query once and expands the rankings into one Config
// per probe count 1..min(MaxProbes, numShards).
func (e *Engine) Evaluate(ctx context.Context, r Router, queries *pointset.PointSet, numShards int) ([]Config, error) {
	nq := queries.Len()
	rankings := make([][]int, nq)
	costs := make([]float64, nq)

	indexed, _ := r.(IndexedRouter)

	start := time.Now()
	err := e.opts.Controller.ParallelFor(ctx, nq, 16, func(q int) error {
		if indexed != nil {
			rankings[q], costs[q] = indexed.RouteIndexed(q, queries.At(q))
		} else {
			rankings[q], costs[q] = r.Route(queries.At(q))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start).Seconds()

	routingTime, meanCost := 0.0, 0.0
	if nq > 0 {
		routingTime = elapsed / float64(nq)
		for _, c := range costs {
			meanCost += c
		}
		meanCost /= float64(nq)
	}

	maxProbes := numShards
	if e.opts.MaxProbes > 0 {
		maxProbes = min(maxProbes, e.opts.MaxProbes)
	}

	configs := make([]Config, 0, maxProbes)
	for p := 1; p <= maxProbes; p++ {
		probes := make([][]int, nq)
		for q, ranking := range rankings {
			probes[q] = ranking[:min(p, len(ranking))]
		}
		configs = append(configs, Config{
			Strategy:    r.Name(),
			Parameters:  r.Parameters(),
			NumProbes:   p,
			Probes:      probes,
			RoutingTime: routingTime,
			RoutingCost: meanCost,
		})
	}

	e.opts.Logger.Info("Routed queries", "strategy", r.Name(), "queries", nq, "routing_time", routingTime, "routing_cost", meanCost)
	return configs, nil
}

// Iterate builds all routers for clusters and evaluates each of them over
// queries. gt may be nil, which drops the oracle.
func (e *Engine) Iterate(ctx context.Context, points, queries *pointset.PointSet, clusters partition.Clusters, gt groundtruth.GroundTruth, k int) ([]Config, error) {
	if queries.Dim() != points.Dim() {
		return nil, &pointset.DimensionMismatchError{Expected: points.Dim(), Actual: queries.Dim()}
	}

	var truth [][]uint32
	if gt != nil {
		truth = gt.IDs(k)
	}

	routers, err := e.Routers(ctx, points, clusters, truth)
	if err != nil {
		return nil, err
	}

	var configs []Config
	for _, r := range routers {
		c, err := e.Evaluate(ctx, r, queries, len(clusters))
		if err != nil {
			return nil, err
		}
		configs = append(configs, c...)
	}
	return configs, nil
}
