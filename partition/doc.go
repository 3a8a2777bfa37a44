// Package partition assigns points to shards.
//
// A Strategy turns a point set into a Result: a disjoint Partition (one shard
// id per point) for the plain methods, or overlapping Clusters for the
// replicating ones. All strategies honour the shard size cap
//
//	MaxShardSize(n, k, eps) = max(floor(n*(1+eps)/k), ceil(n/k))
//
// except FlatKMeans, which is unconstrained, and KMeans, which meets the cap
// by emitting more than k shards.
//
// Strategies are selected through the closed Method enumeration:
//
//	s, err := partition.New(partition.BalancedKMeans, func(o *partition.Options) {
//		o.Epsilon = 0.05
//	})
//	res, err := s.Partition(ctx, points, 16)
//
// Every random choice is derived from Options.Seed, so results are
// reproducible.
package partition
