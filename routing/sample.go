package routing

import (
	"context"
	"fmt"

	"github.com/hupe1980/shardann/internal/kmeans"
	"github.com/hupe1980/shardann/partition"
	"github.com/hupe1980/shardann/pointset"
)

// Allocate splits budget routing points across shards proportionally to
// their size. Every non-empty shard gets at least one and at most its size.
func Allocate(sizes []int, budget int) []int {
	total := 0
	for _, s := range sizes {
		total += s
	}
	out := make([]int, len(sizes))
	if total == 0 {
		return out
	}
	for b, s := range sizes {
		if s == 0 {
			continue
		}
		share := budget * s / total
		out[b] = min(max(share, 1), s)
	}
	return out
}

// SampleRoutingPoints picks routing points for every shard: the k-means
// centres of the shard's members, with the per-shard count from Allocate.
// Shard b's k-means is seeded with seed+b.
func SampleRoutingPoints(ctx context.Context, points *pointset.PointSet, clusters partition.Clusters, budget int, seed int64, opts kmeans.Options) (*partition.RoutingIndex, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("routing: budget must be positive, got %d", budget)
	}
	counts := Allocate(clusters.Sizes(), budget)

	total := 0
	for _, c := range counts {
		total += c
	}
	ri := &partition.RoutingIndex{
		Points: pointset.New(total, points.Dim()),
		Labels: make([]int32, 0, total),
	}

	next := 0
	for b, members := range clusters {
		m := counts[b]
		if m == 0 {
			continue
		}
		sub := points.Subset(members)

		var centres *pointset.PointSet
		if m == len(members) {
			centres = sub
		} else {
			init := kmeans.RandomSample(sub, m, seed+int64(b))
			res, err := kmeans.Train(ctx, sub, init, opts)
			if err != nil {
				return nil, fmt.Errorf("routing: shard %d: %w", b, err)
			}
			centres = res.Centroids
		}

		for i := range centres.Len() {
			ri.Points.Set(next, centres.At(i))
			ri.Labels = append(ri.Labels, int32(b))
			next++
		}
	}

	return ri, nil
}
