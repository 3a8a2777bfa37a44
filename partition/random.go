package partition

import (
	"context"
	"math/rand"

	"github.com/hupe1980/shardann/pointset"
)

// RandomPartition returns floor(n/k) copies of every shard id, then the
// remainder ids 0..(n mod k)-1, shuffled with the seed.
func RandomPartition(n, k int, seed int64) Partition {
	part := make(Partition, 0, n)
	for b := range k {
		for range n / k {
			part = append(part, int32(b))
		}
	}
	for b := range n % k {
		part = append(part, int32(b))
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(part), func(i, j int) { part[i], part[j] = part[j], part[i] })
	return part
}

// randomStrategy is the negative-control baseline.
type randomStrategy struct{ base }

func (s *randomStrategy) Method() Method { return Random }

func (s *randomStrategy) Partition(_ context.Context, points *pointset.PointSet, k int) (*Result, error) {
	if err := s.check(points, k); err != nil {
		return nil, err
	}
	return s.finish(&Result{Partition: RandomPartition(points.Len(), k, s.opts.Seed)}, points.Len(), k), nil
}
