package partition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hupe1980/shardann/pointset"
)

// Options configures every strategy. Fields a strategy does not use are ignored.
type Options struct {
	// Epsilon is the balance slack. Defaults to 0.05.
	Epsilon float64

	// Overlap is the fraction of extra memberships for overlapping methods.
	Overlap float64

	// Seed drives every random choice. Defaults to 555.
	Seed int64

	// Strong selects the slower, higher quality graph partitioning mode.
	Strong bool

	// Workers bounds the fan-out. Defaults to 1.
	Workers int

	// KMeansIterations bounds Lloyd iterations. Defaults to 20.
	KMeansIterations int

	// GraphNeighbors is the k-NN graph degree. Defaults to 10.
	GraphNeighbors int

	// MaxReplicas bounds the shards one point may join. Defaults to 8.
	MaxReplicas int

	// Closure limits replica candidates to distance <= (1+Closure) times the
	// primary distance. Defaults to 1.0.
	Closure float64

	// PyramidSampleFactor and PyramidCentresFactor size the Pyramid sample
	// (min(n, factor*k)) and its meta centres (min(sample, factor*k)).
	// Default to 100 and 20.
	PyramidSampleFactor  int
	PyramidCentresFactor int

	// OurPyramidFraction is the share of points used as routing points.
	// Defaults to 0.02.
	OurPyramidFraction float64

	// Logger receives progress and degenerate-outcome warnings.
	Logger *slog.Logger
}

// DefaultOptions holds the reference settings.
var DefaultOptions = Options{
	Epsilon:              0.05,
	Seed:                 555,
	Workers:              1,
	KMeansIterations:     20,
	GraphNeighbors:       10,
	MaxReplicas:          8,
	Closure:              1.0,
	PyramidSampleFactor:  100,
	PyramidCentresFactor: 20,
	OurPyramidFraction:   0.02,
}

// Result is the outcome of a strategy.
type Result struct {
	// Partition is the primary assignment. For overlapping methods it is the
	// base partition before replication.
	Partition Partition

	// Clusters holds the final shard membership lists.
	Clusters Clusters

	// Centroids has one row per shard for centroid-based methods, else nil.
	Centroids *pointset.PointSet

	// RoutingIndex is set by Pyramid and OurPyramid.
	RoutingIndex *RoutingIndex

	// Overlap is set by overlapping methods.
	Overlap *OverlapStats
}

// NumShards returns the number of shards in the result.
func (r *Result) NumShards() int { return len(r.Clusters) }

// Strategy is a partitioning method.
type Strategy interface {
	Method() Method
	Partition(ctx context.Context, points *pointset.PointSet, k int) (*Result, error)
}

// New returns the strategy for m.
func New(m Method, optFns ...func(o *Options)) (Strategy, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Overlap < 0 || opts.Overlap > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOverlap, opts.Overlap)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	opts.Logger = opts.Logger.With("method", m.String())

	// GP with overlap is graph partitioning with graph-neighbour replication.
	if m == GP && opts.Overlap > 0 {
		m = OGP
	}

	b := base{opts: opts}
	switch m {
	case GP:
		return &graphStrategy{base: b}, nil
	case Pyramid:
		return &pyramidStrategy{base: b}, nil
	case KMeans:
		return &recursiveKMeans{base: b}, nil
	case BalancedKMeans:
		return &balancedKMeans{base: b}, nil
	case FlatKMeans:
		return &flatKMeans{base: b}, nil
	case RKM:
		return &rebalancingKMeans{base: b}, nil
	case ORKM, OGP, OGPS, OKM, OBKM:
		return &overlapStrategy{base: b, method: m}, nil
	case OurPyramid:
		return &ourPyramidStrategy{base: b}, nil
	case Random:
		return &randomStrategy{base: b}, nil
	default:
		return nil, &UnknownMethodError{Name: m.String()}
	}
}

type base struct {
	opts Options
}

func (b *base) check(points *pointset.PointSet, k int) error {
	if k <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidShardCount, k)
	}
	if points.Len() == 0 {
		return fmt.Errorf("partition: empty point set")
	}
	return nil
}

func (b *base) maxShardSize(n, k int) int {
	return MaxShardSize(n, k, b.opts.Epsilon)
}

// finish fills Clusters from Partition and reports empty shards.
func (b *base) finish(res *Result, n, k int) *Result {
	if res.Clusters == nil {
		res.Clusters = FromPartition(res.Partition, k)
	}
	sizes := res.Clusters.Sizes()
	for s, size := range sizes {
		if size == 0 {
			b.opts.Logger.Warn("Empty shard", "shard", s)
		}
	}
	b.opts.Logger.Info("Partitioned", "points", n, "shards", len(sizes), "imbalance", Imbalance(sizes, res.Clusters.TotalAssignments()))
	return res
}
