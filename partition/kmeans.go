package partition

import (
	"context"
	"math"

	"github.com/hupe1980/shardann/internal/kmeans"
	"github.com/hupe1980/shardann/pointset"
)

func (b *base) kmeansOptions() kmeans.Options {
	return kmeans.Options{
		MaxIter: b.opts.KMeansIterations,
		Workers: b.opts.Workers,
		Logger:  b.opts.Logger,
	}
}

// balancedKMeans is capacity-constrained Lloyd k-means from a seeded sample.
type balancedKMeans struct{ base }

func (s *balancedKMeans) Method() Method { return BalancedKMeans }

func (s *balancedKMeans) Partition(ctx context.Context, points *pointset.PointSet, k int) (*Result, error) {
	if err := s.check(points, k); err != nil {
		return nil, err
	}
	res, err := s.balanced(ctx, points, k, s.maxShardSize(points.Len(), k))
	if err != nil {
		return nil, err
	}
	return s.finish(res, points.Len(), k), nil
}

func (b *base) balanced(ctx context.Context, points *pointset.PointSet, k, maxSize int) (*Result, error) {
	init := kmeans.RandomSample(points, k, b.opts.Seed)
	km, err := kmeans.TrainBalanced(ctx, points, init, maxSize, b.kmeansOptions())
	if err != nil {
		return nil, err
	}
	b.opts.Logger.Debug("Balanced k-means converged", "iterations", km.Iterations, "max_size", maxSize)
	return &Result{Partition: Partition(km.Assignment), Centroids: km.Centroids}, nil
}

// flatKMeans is unconstrained Lloyd k-means from a seeded sample.
type flatKMeans struct{ base }

func (s *flatKMeans) Method() Method { return FlatKMeans }

func (s *flatKMeans) Partition(ctx context.Context, points *pointset.PointSet, k int) (*Result, error) {
	if err := s.check(points, k); err != nil {
		return nil, err
	}
	init := kmeans.RandomSample(points, k, s.opts.Seed)
	km, err := kmeans.Train(ctx, points, init, s.kmeansOptions())
	if err != nil {
		return nil, err
	}
	return s.finish(&Result{Partition: Partition(km.Assignment), Centroids: km.Centroids}, points.Len(), k), nil
}

// recursiveKMeans runs flat k-means and splits every cluster above the cap
// with k-means until all fit. It may emit more than k shards.
type recursiveKMeans struct{ base }

func (s *recursiveKMeans) Method() Method { return KMeans }

func (s *recursiveKMeans) Partition(ctx context.Context, points *pointset.PointSet, k int) (*Result, error) {
	if err := s.check(points, k); err != nil {
		return nil, err
	}
	maxSize := s.maxShardSize(points.Len(), k)

	all := make([]uint32, points.Len())
	for i := range all {
		all[i] = uint32(i)
	}

	var clusters Clusters
	if err := s.split(ctx, points, all, k, maxSize, 0, &clusters); err != nil {
		return nil, err
	}

	part := make(Partition, points.Len())
	for b, members := range clusters {
		for _, id := range members {
			part[id] = int32(b)
		}
	}
	if len(clusters) > k {
		s.opts.Logger.Info("K-means used more shards than requested", "requested", k, "actual", len(clusters))
	}

	res := &Result{Partition: part, Clusters: clusters, Centroids: clusters.Centroids(points)}
	return s.finish(res, points.Len(), len(clusters)), nil
}

func (s *recursiveKMeans) split(ctx context.Context, points *pointset.PointSet, ids []uint32, k, maxSize, depth int, out *Clusters) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sub := points.Subset(ids)
	seed := s.opts.Seed + int64(depth)*7919 + int64(ids[0])
	km, err := kmeans.Train(ctx, sub, kmeans.RandomSample(sub, k, seed), s.kmeansOptions())
	if err != nil {
		return err
	}

	groups := kmeans.Groups(km.Assignment, len(km.Sizes))
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		members := make([]uint32, len(g))
		for i, local := range g {
			members[i] = ids[local]
		}

		switch {
		case len(members) <= maxSize:
			*out = append(*out, members)
		case len(members) == len(ids):
			// k-means could not separate the points; cut by id order.
			for lo := 0; lo < len(members); lo += maxSize {
				*out = append(*out, members[lo:min(lo+maxSize, len(members))])
			}
		default:
			children := int(math.Ceil(float64(len(members)) / float64(maxSize)))
			if err := s.split(ctx, points, members, children, maxSize, depth+1, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// rebalancingKMeans is hierarchical balanced k-means. Each level splits the
// points into b = min(k, ceil(sqrt(k))) groups, each owning a share of the k
// shards and the matching capacity, and recurses until a group owns a single
// shard. It always returns exactly k shards, all within the cap.
type rebalancingKMeans struct{ base }

func (s *rebalancingKMeans) Method() Method { return RKM }

func (s *rebalancingKMeans) Partition(ctx context.Context, points *pointset.PointSet, k int) (*Result, error) {
	if err := s.check(points, k); err != nil {
		return nil, err
	}
	res, err := s.rkm(ctx, points, k, s.maxShardSize(points.Len(), k))
	if err != nil {
		return nil, err
	}
	return s.finish(res, points.Len(), k), nil
}

func (b *base) rkm(ctx context.Context, points *pointset.PointSet, k, maxSize int) (*Result, error) {
	all := make([]uint32, points.Len())
	for i := range all {
		all[i] = uint32(i)
	}

	part := make(Partition, points.Len())
	if err := b.rkmSplit(ctx, points, all, k, 0, maxSize, part); err != nil {
		return nil, err
	}

	clusters := FromPartition(part, k)
	return &Result{Partition: part, Clusters: clusters, Centroids: clusters.Centroids(points)}, nil
}

func (b *base) rkmSplit(ctx context.Context, points *pointset.PointSet, ids []uint32, k int, first int32, maxSize int, part Partition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if k == 1 || len(ids) == 0 {
		for _, id := range ids {
			part[id] = first
		}
		return nil
	}

	groups := min(k, int(math.Ceil(math.Sqrt(float64(k)))))
	groups = min(groups, len(ids))
	if groups == 1 {
		for _, id := range ids {
			part[id] = first
		}
		return nil
	}

	shares := make([]int, groups)
	caps := make([]int, groups)
	for g := range shares {
		shares[g] = k / groups
		if g < k%groups {
			shares[g]++
		}
		caps[g] = shares[g] * maxSize
	}

	sub := points.Subset(ids)
	init := kmeans.RandomSample(sub, groups, b.opts.Seed+int64(first))
	km, err := kmeans.TrainCapacitated(ctx, sub, init, caps, b.kmeansOptions())
	if err != nil {
		return err
	}

	members := kmeans.Groups(km.Assignment, groups)
	next := first
	for g, local := range members {
		global := make([]uint32, len(local))
		for i, l := range local {
			global[i] = ids[l]
		}
		if err := b.rkmSplit(ctx, points, global, shares[g], next, maxSize, part); err != nil {
			return err
		}
		next += int32(shares[g])
	}
	return nil
}
