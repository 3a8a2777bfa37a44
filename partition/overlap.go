package partition

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/hupe1980/shardann/distance"
	"github.com/hupe1980/shardann/internal/resource"
	"github.com/hupe1980/shardann/pointset"
)

// OverlapStats reports how much replication was requested and realized.
type OverlapStats struct {
	Requested int // floor(o*n)
	Realized  int
	Capacity  int // per-shard cap
}

// Fraction returns the realized extra memberships per point.
func (s OverlapStats) Fraction(n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(s.Realized) / float64(n)
}

// OverlapOptions tunes SPANN-style replica selection.
type OverlapOptions struct {
	// MaxReplicas bounds the shards one point may join, primary included.
	MaxReplicas int

	// Closure keeps candidates within (1+Closure) times the primary distance.
	Closure float64

	// Workers bounds the candidate search fan-out.
	Workers int
}

type replica struct {
	score float64 // lower is better
	point uint32
	shard int32
}

func compareReplica(a, b replica) int {
	if c := cmp.Compare(a.score, b.score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.point, b.point); c != 0 {
		return c
	}
	return cmp.Compare(a.shard, b.shard)
}

// SPANNOverlap replicates points of a disjoint base clustering into extra
// shards. Candidates for a point are the shards other than its primary,
// ordered by centroid distance (ties by shard id), limited to MaxReplicas-1,
// to distance <= (1+Closure) times the primary distance, and pruned by the
// relative neighbourhood rule: a candidate is skipped when an already kept
// candidate's centroid is closer to it than the point is. All candidates are
// then accepted in ascending order of distance ratio (ties by point id, then
// shard id) while the target shard is below the cap for k shards and fewer
// than floor(o*n) extras have been placed.
func SPANNOverlap(ctx context.Context, points *pointset.PointSet, base Clusters, k int, eps, o float64, opts OverlapOptions) (Clusters, OverlapStats, error) {
	n := points.Len()
	stats := OverlapStats{
		Requested: int(math.Floor(o * float64(n))),
		Capacity:  MaxShardSize(n, k, eps),
	}
	if opts.MaxReplicas <= 0 {
		opts.MaxReplicas = DefaultOptions.MaxReplicas
	}

	primary := make([]int32, n)
	for b, members := range base {
		for _, id := range members {
			primary[id] = int32(b)
		}
	}

	numShards := len(base)
	centroids := base.Centroids(points)
	nonEmpty := make([]bool, numShards)
	for b, m := range base {
		nonEmpty[b] = len(m) > 0
	}

	between := make([]float32, numShards*numShards)
	for a := range numShards {
		for b := a + 1; b < numShards; b++ {
			d := distance.SquaredL2(centroids.At(a), centroids.At(b))
			between[a*numShards+b] = d
			between[b*numShards+a] = d
		}
	}

	perPoint := make([][]replica, n)
	if stats.Requested > 0 && opts.MaxReplicas > 1 {
		err := resource.ParallelFor(ctx, n, opts.Workers, 256, func(i int) error {
			perPoint[i] = spannCandidates(points.At(i), uint32(i), primary[i], centroids, nonEmpty, between, opts)
			return nil
		})
		if err != nil {
			return nil, stats, err
		}
	}

	var all []replica
	for _, c := range perPoint {
		all = append(all, c...)
	}
	slices.SortFunc(all, compareReplica)

	out, realized := applyReplicas(base, all, stats.Capacity, stats.Requested)
	stats.Realized = realized
	return out, stats, nil
}

func spannCandidates(v []float32, id uint32, primary int32, centroids *pointset.PointSet, nonEmpty []bool, between []float32, opts OverlapOptions) []replica {
	numShards := centroids.Len()
	type cand struct {
		shard int32
		dist  float32
	}

	dists := make([]float32, numShards)
	distance.SquaredL2Batch(v, centroids.Data(), centroids.Dim(), dists)

	cands := make([]cand, 0, numShards)
	for b, d := range dists {
		if nonEmpty[b] {
			cands = append(cands, cand{shard: int32(b), dist: d})
		}
	}
	slices.SortFunc(cands, func(a, b cand) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.shard, b.shard)
	})

	primaryDist := dists[primary]
	limit := float64(primaryDist) * (1 + opts.Closure)

	kept := []int32{primary}
	var out []replica
	for _, c := range cands {
		if len(kept) >= opts.MaxReplicas {
			break
		}
		if c.shard == primary {
			continue
		}
		if float64(c.dist) > limit {
			break
		}
		occluded := false
		for _, kb := range kept {
			if between[int(kb)*numShards+int(c.shard)] < c.dist {
				occluded = true
				break
			}
		}
		if occluded {
			continue
		}
		kept = append(kept, c.shard)

		score := 1.0
		if primaryDist > 0 {
			score = float64(c.dist) / float64(primaryDist)
		}
		out = append(out, replica{score: score, point: id, shard: c.shard})
	}
	return out
}

// applyReplicas adds accepted replicas to a copy of base and returns it with
// the number of placed extras. Member lists stay sorted.
func applyReplicas(base Clusters, ordered []replica, capacity, budget int) (Clusters, int) {
	sizes := base.Sizes()
	extra := make([][]uint32, len(base))
	placed := 0

	for _, r := range ordered {
		if placed >= budget {
			break
		}
		if sizes[r.shard] >= capacity {
			continue
		}
		extra[r.shard] = append(extra[r.shard], r.point)
		sizes[r.shard]++
		placed++
	}

	out := make(Clusters, len(base))
	for b := range base {
		merged := make([]uint32, 0, len(base[b])+len(extra[b]))
		merged = append(merged, base[b]...)
		merged = append(merged, extra[b]...)
		slices.Sort(merged)
		out[b] = merged
	}
	return out, placed
}

// GraphOverlap replicates points into the shards of their graph neighbours.
// A candidate (point, shard) is scored by how many of the point's neighbours
// live in that shard; candidates are accepted by descending count (ties by
// point id, then shard id) under the same cap and budget as SPANNOverlap.
func GraphOverlap(adj [][]uint32, base Partition, numShards, k int, eps, o float64, maxReplicas int) (Clusters, OverlapStats) {
	n := len(base)
	stats := OverlapStats{
		Requested: int(math.Floor(o * float64(n))),
		Capacity:  MaxShardSize(n, k, eps),
	}
	if maxReplicas <= 0 {
		maxReplicas = DefaultOptions.MaxReplicas
	}

	var all []replica
	counts := make(map[int32]int)
	for v := range n {
		clear(counts)
		for _, u := range adj[v] {
			if b := base[u]; b != base[v] {
				counts[b]++
			}
		}
		cands := make([]replica, 0, len(counts))
		for b, c := range counts {
			cands = append(cands, replica{score: -float64(c), point: uint32(v), shard: b})
		}
		slices.SortFunc(cands, compareReplica)
		if len(cands) > maxReplicas-1 {
			cands = cands[:maxReplicas-1]
		}
		all = append(all, cands...)
	}
	slices.SortFunc(all, compareReplica)

	out, realized := applyReplicas(FromPartition(base, numShards), all, stats.Capacity, stats.Requested)
	stats.Realized = realized
	return out, stats
}
