package partition

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/shardann/internal/graphpart"
	"github.com/hupe1980/shardann/pointset"
)

// overlapStrategy builds a base clustering with headroom (k' shards) and then
// replicates points:
//
//	ORKM  RKM with k' = ceil(k(1+o)), SPANN overlap
//	OBKM  BalancedKMeans with k' = ceil(k(1+o)), SPANN overlap
//	OKM   KMeans with k, SPANN overlap
//	OGPS  GP with k' = ceil((n + floor(o n)) / cap), SPANN overlap
//	OGP   GP with the same k', graph-neighbour overlap
//
// The cap always refers to the requested k.
type overlapStrategy struct {
	base
	method Method
}

func (s *overlapStrategy) Method() Method { return s.method }

func (s *overlapStrategy) Partition(ctx context.Context, points *pointset.PointSet, k int) (*Result, error) {
	if err := s.check(points, k); err != nil {
		return nil, err
	}
	n := points.Len()
	o := s.opts.Overlap
	maxSize := s.maxShardSize(n, k)
	headroom := int(math.Ceil(float64(k) * (1 + o)))
	graphShards := int(math.Ceil(float64(n+int(math.Floor(o*float64(n)))) / float64(maxSize)))

	var (
		baseRes *Result
		err     error
	)
	switch s.method {
	case ORKM:
		baseRes, err = s.rkm(ctx, points, headroom, maxSize)
	case OBKM:
		baseRes, err = s.balanced(ctx, points, headroom, maxSize)
	case OKM:
		baseRes, err = (&recursiveKMeans{base: s.base}).Partition(ctx, points, k)
	case OGPS:
		baseRes, err = s.graphBase(ctx, points, graphShards)
	case OGP:
		return s.graphOverlap(ctx, points, k, graphShards)
	default:
		return nil, fmt.Errorf("partition: %s is not an overlapping method", s.method)
	}
	if err != nil {
		return nil, err
	}

	numShards := baseRes.Partition.NumShards()
	if baseRes.Clusters != nil {
		numShards = len(baseRes.Clusters)
	}
	baseClusters := FromPartition(baseRes.Partition, numShards)

	clusters, stats, err := SPANNOverlap(ctx, points, baseClusters, k, s.opts.Epsilon, o, OverlapOptions{
		MaxReplicas: s.opts.MaxReplicas,
		Closure:     s.opts.Closure,
		Workers:     s.opts.Workers,
	})
	if err != nil {
		return nil, err
	}
	s.logOverlap(stats, n)

	res := &Result{
		Partition: baseRes.Partition,
		Clusters:  clusters,
		Overlap:   &stats,
	}
	if s.method == OBKM {
		res.Centroids = baseRes.Centroids
	}
	return s.finish(res, n, numShards), nil
}

func (s *overlapStrategy) graphBase(ctx context.Context, points *pointset.PointSet, shards int) (*Result, error) {
	g, err := s.knnGraph(ctx, points)
	if err != nil {
		return nil, err
	}
	part, err := s.partitionGraph(ctx, &graphpart.Graph{Adj: g.Adj}, shards)
	if err != nil {
		return nil, err
	}
	return &Result{Partition: part, Clusters: FromPartition(part, shards)}, nil
}

func (s *overlapStrategy) graphOverlap(ctx context.Context, points *pointset.PointSet, k, shards int) (*Result, error) {
	g, err := s.knnGraph(ctx, points)
	if err != nil {
		return nil, err
	}
	part, err := s.partitionGraph(ctx, &graphpart.Graph{Adj: g.Adj}, shards)
	if err != nil {
		return nil, err
	}

	clusters, stats := GraphOverlap(g.Adj, part, shards, k, s.opts.Epsilon, s.opts.Overlap, s.opts.MaxReplicas)
	s.logOverlap(stats, points.Len())

	res := &Result{Partition: part, Clusters: clusters, Overlap: &stats}
	return s.finish(res, points.Len(), shards), nil
}

func (s *overlapStrategy) logOverlap(stats OverlapStats, n int) {
	if stats.Realized < stats.Requested {
		s.opts.Logger.Warn("Realized overlap below requested",
			"requested", stats.Requested, "realized", stats.Realized, "fraction", stats.Fraction(n))
		return
	}
	s.opts.Logger.Info("Overlap applied", "extra_assignments", stats.Realized, "fraction", stats.Fraction(n))
}
