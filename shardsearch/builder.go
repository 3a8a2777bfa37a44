package shardsearch

import (
	"context"
	"errors"
	"math/rand"
	"slices"

	"github.com/hupe1980/shardann/distance"
	"github.com/hupe1980/shardann/hnsw"
	"github.com/hupe1980/shardann/internal/resource"
	"github.com/hupe1980/shardann/pointset"
)

// ErrEmptyShard is returned when a shard has no members.
var ErrEmptyShard = errors.New("shardsearch: empty shard")

// IndexParams configures the per-shard HNSW build.
type IndexParams struct {
	M              int
	EFConstruction int

	// SequentialPrefix is how many shuffled members are inserted one by one
	// before the parallel phase.
	SequentialPrefix int

	// ChunkSize is the number of inserts handed to one worker at a time.
	ChunkSize int

	// Seed is offset by the shard id for both the shuffle and the levels.
	Seed int64

	// Metric ranks the hits. The zero value is squared L2.
	Metric distance.Metric
}

// DefaultIndexParams are the build parameters used by the evaluator.
var DefaultIndexParams = IndexParams{
	M:                32,
	EFConstruction:   200,
	SequentialPrefix: 2048,
	ChunkSize:        512,
	Seed:             555,
}

// ShardIndex is a built shard. Local ids are positions in the shuffled
// member list.
type ShardIndex struct {
	Shard int
	Index *hnsw.HNSW

	members []uint32
}

// Len returns the number of indexed points.
func (s *ShardIndex) Len() int { return len(s.members) }

// Global maps a local id back to the point id.
func (s *ShardIndex) Global(local uint32) uint32 { return s.members[local] }

// Search returns the k nearest points at the given effort as global ids
// together with their distances.
func (s *ShardIndex) Search(q []float32, k, ef int) ([]hnsw.Neighbor, error) {
	res, err := s.Index.KNNSearchWithEF(q, k, ef)
	if err != nil {
		return nil, err
	}
	out := res.Neighbors
	for i := range out {
		out[i].ID = s.members[out[i].ID]
	}
	return out, nil
}

// BuildShardIndex indexes the given members of points. The members are
// shuffled with seed params.Seed+shard; the first SequentialPrefix of them
// are inserted sequentially and the remainder by up to workers goroutines.
func BuildShardIndex(ctx context.Context, points *pointset.PointSet, members []uint32, shard int, params IndexParams, workers int) (*ShardIndex, error) {
	if len(members) == 0 {
		return nil, ErrEmptyShard
	}
	if params.ChunkSize <= 0 {
		params.ChunkSize = DefaultIndexParams.ChunkSize
	}
	if params.SequentialPrefix < 0 {
		params.SequentialPrefix = 0
	}
	dist, err := distance.Provider(params.Metric)
	if err != nil {
		return nil, err
	}

	seed := params.Seed + int64(shard)
	order := slices.Clone(members)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	idx := hnsw.New(points.Dim(), len(order), func(o *hnsw.Options) {
		if params.M > 0 {
			o.M = params.M
		}
		if params.EFConstruction > 0 {
			o.EFConstruction = params.EFConstruction
		}
		o.Seed = seed
		o.DistanceFunc = dist
	})

	prefix := min(params.SequentialPrefix, len(order))
	for i := 0; i < prefix; i++ {
		if err := idx.Insert(uint32(i), points.At(int(order[i]))); err != nil {
			return nil, err
		}
	}

	rest := len(order) - prefix
	err = resource.ParallelFor(ctx, rest, workers, params.ChunkSize, func(i int) error {
		local := prefix + i
		return idx.Insert(uint32(local), points.At(int(order[local])))
	})
	if err != nil {
		return nil, err
	}

	return &ShardIndex{Shard: shard, Index: idx, members: order}, nil
}
