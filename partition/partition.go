package partition

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/floats"

	"github.com/hupe1980/shardann/pointset"
)

var (
	// ErrInvalidShardCount is returned when k is not positive.
	ErrInvalidShardCount = errors.New("partition: shard count must be positive")

	// ErrInvalidOverlap is returned for an overlap fraction outside [0, 1].
	ErrInvalidOverlap = errors.New("partition: overlap must be in [0, 1]")

	// ErrCoverage is returned when clusters miss or duplicate points.
	ErrCoverage = errors.New("partition: coverage violated")
)

// Partition maps each point to its shard id.
type Partition []int32

// NumShards returns 1 + the largest shard id, or 0 when empty.
func (p Partition) NumShards() int {
	if len(p) == 0 {
		return 0
	}
	return int(slices.Max(p)) + 1
}

// Sizes returns the number of points per shard.
func (p Partition) Sizes(k int) []int {
	out := make([]int, k)
	for _, b := range p {
		if int(b) < k {
			out[b]++
		}
	}
	return out
}

// EmptyShards returns the ids in [0, k) with no points.
func (p Partition) EmptyShards(k int) []int {
	var out []int
	for b, s := range p.Sizes(k) {
		if s == 0 {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks that every id lies in [0, k).
func (p Partition) Validate(k int) error {
	for i, b := range p {
		if b < 0 || int(b) >= k {
			return fmt.Errorf("partition: point %d has shard %d outside [0, %d)", i, b, k)
		}
	}
	return nil
}

// Clusters lists the member point ids of each shard, ascending.
type Clusters [][]uint32

// FromPartition groups a partition into k clusters.
func FromPartition(p Partition, k int) Clusters {
	out := make(Clusters, k)
	sizes := p.Sizes(k)
	for b := range out {
		out[b] = make([]uint32, 0, sizes[b])
	}
	for i, b := range p {
		out[b] = append(out[b], uint32(i))
	}
	return out
}

// Sizes returns the member count per shard.
func (c Clusters) Sizes() []int {
	out := make([]int, len(c))
	for b, m := range c {
		out[b] = len(m)
	}
	return out
}

// EmptyShards returns the ids of shards without members.
func (c Clusters) EmptyShards() []int {
	var out []int
	for b, m := range c {
		if len(m) == 0 {
			out = append(out, b)
		}
	}
	return out
}

// TotalAssignments returns the sum of cluster sizes.
func (c Clusters) TotalAssignments() int {
	total := 0
	for _, m := range c {
		total += len(m)
	}
	return total
}

// CheckCoverage verifies that the clusters partition {0..n-1} exactly.
func (c Clusters) CheckCoverage(n int) error {
	seen := roaring.New()
	for b, m := range c {
		for _, id := range m {
			if int(id) >= n {
				return fmt.Errorf("%w: shard %d holds id %d >= %d", ErrCoverage, b, id, n)
			}
			if !seen.CheckedAdd(id) {
				return fmt.Errorf("%w: point %d appears twice", ErrCoverage, id)
			}
		}
	}
	if int(seen.GetCardinality()) != n {
		return fmt.Errorf("%w: %d of %d points assigned", ErrCoverage, seen.GetCardinality(), n)
	}
	return nil
}

// CheckOverlap verifies that every point of {0..n-1} is in at least one
// shard, no shard lists a point twice, and returns the number of extra
// (beyond the first) memberships.
func (c Clusters) CheckOverlap(n int) (int, error) {
	seen := roaring.New()
	for b, m := range c {
		local := roaring.New()
		for _, id := range m {
			if int(id) >= n {
				return 0, fmt.Errorf("%w: shard %d holds id %d >= %d", ErrCoverage, b, id, n)
			}
			if !local.CheckedAdd(id) {
				return 0, fmt.Errorf("%w: shard %d lists point %d twice", ErrCoverage, b, id)
			}
		}
		seen.Or(local)
	}
	if int(seen.GetCardinality()) != n {
		return 0, fmt.Errorf("%w: %d of %d points assigned", ErrCoverage, seen.GetCardinality(), n)
	}
	return c.TotalAssignments() - n, nil
}

// Centroids returns the mean of each cluster. Empty clusters get a zero row.
func (c Clusters) Centroids(points *pointset.PointSet) *pointset.PointSet {
	out := pointset.New(len(c), points.Dim())
	for b, m := range c {
		points.Mean(m, out.At(b))
	}
	return out
}

// MaxShardSize is the shard size cap for n points in k shards with slack eps.
func MaxShardSize(n, k int, eps float64) int {
	floor := int(math.Floor(float64(n) * (1 + eps) / float64(k)))
	ceil := (n + k - 1) / k
	return max(floor, ceil)
}

// Imbalance returns max shard size divided by the perfectly balanced size n/k.
func Imbalance(sizes []int, n int) float64 {
	if len(sizes) == 0 || n == 0 {
		return 0
	}
	fs := make([]float64, len(sizes))
	for i, size := range sizes {
		fs[i] = float64(size)
	}
	return floats.Max(fs) / (float64(n) / float64(len(sizes)))
}
