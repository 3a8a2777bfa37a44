package shardsearch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/shardann/internal/resource"
	"github.com/hupe1980/shardann/partition"
	"github.com/hupe1980/shardann/pointset"
)

// DefaultEfforts is the search width menu swept for every shard.
var DefaultEfforts = []int{50, 80, 100, 150, 200, 250, 300, 400, 500}

// Options configures an Evaluator.
type Options struct {
	// Efforts is the search width menu. Sorted ascending before use.
	Efforts []int

	// Index configures the per-shard build.
	Index IndexParams

	// Controller bounds the shard (outer) and query (inner) fan-out.
	// If nil, shards are built and swept one at a time.
	Controller *resource.Controller

	// Logger receives build and sweep progress.
	Logger *slog.Logger
}

// DefaultOptions contains the default evaluator options.
var DefaultOptions = Options{
	Efforts: DefaultEfforts,
	Index:   DefaultIndexParams,
}

// Evaluator runs the per-shard effort sweep.
type Evaluator struct {
	opts     Options
	progress rate.Sometimes
}

// New creates an evaluator.
func New(optFns ...func(o *Options)) *Evaluator {
	opts := DefaultOptions
	opts.Efforts = slices.Clone(DefaultEfforts)

	for _, fn := range optFns {
		fn(&opts)
	}

	if len(opts.Efforts) == 0 {
		opts.Efforts = slices.Clone(DefaultEfforts)
	}
	slices.Sort(opts.Efforts)
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Controller == nil {
		opts.Controller = resource.NewController(resource.Config{Workers: 1})
	}

	return &Evaluator{
		opts:     opts,
		progress: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Efforts returns the sorted effort menu.
func (e *Evaluator) Efforts() []int { return slices.Clone(e.opts.Efforts) }

// Run builds every shard of clusters and sweeps the queries at every effort.
// It returns one Result per effort in ascending effort order. A shard that
// fails to build keeps empty hits and zero times.
func (e *Evaluator) Run(ctx context.Context, points, queries *pointset.PointSet, clusters partition.Clusters, distToKth []float32, k int) ([]*Result, error) {
	numQueries := queries.Len()
	if len(distToKth) != numQueries {
		return nil, fmt.Errorf("shardsearch: %d k-th distances for %d queries", len(distToKth), numQueries)
	}
	if queries.Dim() != points.Dim() {
		return nil, &pointset.DimensionMismatchError{Expected: points.Dim(), Actual: queries.Dim()}
	}

	numShards := len(clusters)
	results := make([]*Result, len(e.opts.Efforts))
	for i, effort := range e.opts.Efforts {
		results[i] = NewResult(effort, numShards, numQueries)
	}

	// Each shard holds one of the controller's shard slots while it is
	// built and swept.
	ctrl := e.opts.Controller
	g, gctx := errgroup.WithContext(ctx)
	for b := range numShards {
		if err := ctrl.AcquireShard(gctx); err != nil {
			break
		}
		g.Go(func() error {
			defer ctrl.ReleaseShard()
			return e.runShard(gctx, points, queries, clusters[b], b, distToKth, k, results)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func (e *Evaluator) runShard(ctx context.Context, points, queries *pointset.PointSet, members []uint32, b int, distToKth []float32, k int, results []*Result) error {
	ctrl := e.opts.Controller
	logger := e.opts.Logger.With("shard", b)

	start := time.Now()
	idx, err := BuildShardIndex(ctx, points, members, b, e.opts.Index, ctrl.QueryParallelism())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Shard index build failed", "size", len(members), "error", err)
		return nil
	}
	st := idx.Index.Stats()
	logger.Info("Shard index built",
		"size", idx.Len(),
		"levels", st.MaxLevel+1,
		"avg_degree", st.AvgDegree(0),
		"took", time.Since(start),
	)

	numQueries := queries.Len()
	for i, effort := range e.opts.Efforts {
		res := results[i]
		hits := res.Neighbors[b]
		var totalHits atomic.Int64

		start := time.Now()
		err := ctrl.ParallelFor(ctx, numQueries, 10, func(q int) error {
			found, err := idx.Search(queries.At(q), k, effort)
			if err != nil {
				return err
			}
			var kept []uint32
			for _, nb := range found {
				if nb.Distance <= distToKth[q] {
					kept = append(kept, nb.ID)
				}
			}
			hits[q] = kept
			totalHits.Add(int64(len(kept)))
			return nil
		})
		if err != nil {
			return err
		}
		elapsed := time.Since(start).Seconds()

		// Queries run concurrently, so each one is charged the mean.
		perQuery := 0.0
		if numQueries > 0 {
			perQuery = elapsed / float64(numQueries)
		}
		for q := range res.Times[b] {
			res.Times[b][q] = perQuery
		}

		logger.Debug("Shard search", "effort", effort, "total_hits", totalHits.Load(), "took", elapsed)
		e.progress.Do(func() {
			logger.Info("Shard search progress", "effort", effort, "total_hits", totalHits.Load())
		})
	}

	logger.Info("Finished shard searches", "efforts", len(e.opts.Efforts))
	return nil
}
