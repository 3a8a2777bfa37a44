package kmeans

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"sync/atomic"

	"gonum.org/v1/gonum/stat"

	"github.com/hupe1980/shardann/distance"
	"github.com/hupe1980/shardann/internal/resource"
	"github.com/hupe1980/shardann/internal/topk"
	"github.com/hupe1980/shardann/pointset"
)

// ErrInfeasible is returned when the cluster caps cannot hold all points.
var ErrInfeasible = errors.New("kmeans: capacity too small for point count")

// Options configures a k-means run.
type Options struct {
	// MaxIter bounds the number of Lloyd iterations. Defaults to 20.
	MaxIter int

	// Tolerance scales the convergence threshold: iteration stops once no
	// centroid moves more than Tolerance times the mean per-dimension variance
	// (squared L2). Defaults to 1e-4.
	Tolerance float64

	// Workers bounds the assignment fan-out. Defaults to 1.
	Workers int

	// Logger receives degenerate-clustering warnings. Nil discards them.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxIter <= 0 {
		o.MaxIter = 20
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-4
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Result is a clustering.
type Result struct {
	Assignment []int32
	Centroids  *pointset.PointSet
	Sizes      []int
	Iterations int
}

// SampleIDs draws m distinct ids from [0, n) with the given seed, in draw order.
func SampleIDs(n, m int, seed int64) []uint32 {
	m = min(m, n)
	rng := rand.New(rand.NewSource(seed))

	// Partial Fisher-Yates over a sparse swap table.
	swapped := make(map[int]int, m)
	at := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}
		return i
	}

	out := make([]uint32, m)
	for i := range m {
		j := i + rng.Intn(n-i)
		vi, vj := at(i), at(j)
		swapped[i], swapped[j] = vj, vi
		out[i] = uint32(vj)
	}
	return out
}

// RandomSample copies k distinct points chosen with the given seed.
func RandomSample(points *pointset.PointSet, k int, seed int64) *pointset.PointSet {
	return points.Subset(SampleIDs(points.Len(), k, seed))
}

// Train runs unconstrained Lloyd k-means from the given initial centroids.
func Train(ctx context.Context, points, init *pointset.PointSet, opts Options) (*Result, error) {
	return run(ctx, points, init, nil, opts)
}

// TrainBalanced runs Lloyd k-means whose assignment step never puts more than
// maxSize points into one cluster.
func TrainBalanced(ctx context.Context, points, init *pointset.PointSet, maxSize int, opts Options) (*Result, error) {
	caps := make([]int, init.Len())
	for i := range caps {
		caps[i] = maxSize
	}
	return TrainCapacitated(ctx, points, init, caps, opts)
}

// TrainCapacitated is TrainBalanced with one size cap per cluster.
func TrainCapacitated(ctx context.Context, points, init *pointset.PointSet, caps []int, opts Options) (*Result, error) {
	if len(caps) != init.Len() {
		return nil, fmt.Errorf("kmeans: %d caps for %d centroids", len(caps), init.Len())
	}
	total := 0
	for _, c := range caps {
		total += max(c, 0)
	}
	if total < points.Len() {
		return nil, fmt.Errorf("%w: capacity %d for %d points", ErrInfeasible, total, points.Len())
	}
	return run(ctx, points, init, caps, opts)
}

func run(ctx context.Context, points, init *pointset.PointSet, caps []int, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	n, k, dim := points.Len(), init.Len(), points.Dim()
	if k == 0 {
		return nil, errors.New("kmeans: no initial centroids")
	}
	if init.Dim() != dim {
		return nil, &pointset.DimensionMismatchError{Expected: dim, Actual: init.Dim()}
	}

	centroids := pointset.New(k, dim)
	copy(centroids.Data(), init.Data())

	threshold := opts.Tolerance * MeanVariance(points)

	assignment := make([]int32, n)
	for i := range assignment {
		assignment[i] = -1
	}
	dists := make([]float32, n)
	sizes := make([]int, k)
	next := pointset.New(k, dim)

	res := &Result{Assignment: assignment, Centroids: centroids, Sizes: sizes}

	for iter := 0; iter < opts.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Iterations = iter + 1

		var changed atomic.Int64
		err := resource.ParallelFor(ctx, n, opts.Workers, 1024, func(i int) error {
			c, d := AssignPartition(points.At(i), centroids)
			dists[i] = d
			if assignment[i] != int32(c) {
				assignment[i] = int32(c)
				changed.Add(1)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		for i := range sizes {
			sizes[i] = 0
		}
		for _, c := range assignment {
			sizes[c]++
		}

		if caps != nil {
			changed.Add(int64(rebalance(points, centroids, assignment, dists, sizes, caps)))
		}

		if changed.Load() == 0 {
			break
		}

		shift := updateCentroids(points, assignment, dists, sizes, centroids, next, opts.Logger)
		copy(centroids.Data(), next.Data())

		if shift <= threshold {
			break
		}
	}

	// Final centroids are the means of the returned assignment.
	updateCentroids(points, assignment, dists, sizes, centroids, next, opts.Logger)
	for c := range k {
		if sizes[c] > 0 {
			copy(centroids.At(c), next.At(c))
		}
	}

	return res, nil
}

// rebalance moves points out of clusters above their cap. Every overfull
// cluster sheds the members whose move to the nearest cluster with room costs
// least. Ties break on point id, then target cluster id. Returns the number of
// moved points.
func rebalance(points, centroids *pointset.PointSet, assignment []int32, dists []float32, sizes []int, caps []int) int {
	type move struct {
		cost   float32
		id     uint32
		target int
		dist   float32
	}

	moved := 0
	k := centroids.Len()

	for c := range k {
		for sizes[c] > caps[c] {
			excess := sizes[c] - caps[c]

			var moves []move
			for i, a := range assignment {
				if int(a) != c {
					continue
				}
				v := points.At(i)
				best, bestDist := -1, float32(math.MaxFloat32)
				for t := range k {
					if t == c || sizes[t] >= caps[t] {
						continue
					}
					if d := distance.SquaredL2(v, centroids.At(t)); d < bestDist {
						best, bestDist = t, d
					}
				}
				if best >= 0 {
					moves = append(moves, move{cost: bestDist - dists[i], id: uint32(i), target: best, dist: bestDist})
				}
			}

			slices.SortFunc(moves, func(a, b move) int {
				if r := cmp.Compare(a.cost, b.cost); r != 0 {
					return r
				}
				if r := cmp.Compare(a.id, b.id); r != 0 {
					return r
				}
				return cmp.Compare(a.target, b.target)
			})

			progressed := false
			for _, m := range moves {
				if excess == 0 {
					break
				}
				if sizes[m.target] >= caps[m.target] {
					// Target filled up meanwhile; re-rank the rest.
					break
				}
				assignment[m.id] = int32(m.target)
				dists[m.id] = m.dist
				sizes[m.target]++
				sizes[c]--
				excess--
				moved++
				progressed = true
			}
			if !progressed {
				// Cannot happen while the caps sum to at least n.
				return moved
			}
		}
	}

	return moved
}

// updateCentroids writes the cluster means into next and returns the largest
// squared shift from cur. Empty clusters are re-seeded with the point farthest
// from its own centroid.
func updateCentroids(points *pointset.PointSet, assignment []int32, dists []float32, sizes []int, cur, next *pointset.PointSet, logger *slog.Logger) float64 {
	k, dim := next.Len(), next.Dim()

	sums := make([]float64, k*dim)
	for i, c := range assignment {
		row := sums[int(c)*dim : (int(c)+1)*dim]
		for j, x := range points.At(i) {
			row[j] += float64(x)
		}
	}

	var taken map[int]bool
	for c := range k {
		dst := next.At(c)
		if sizes[c] == 0 {
			if taken == nil {
				taken = make(map[int]bool)
			}
			far := farthest(assignment, dists, sizes, taken)
			if far < 0 {
				continue
			}
			taken[far] = true
			copy(dst, points.At(far))
			logger.Warn("Re-seeded empty cluster", "cluster", c, "point", far)
			continue
		}
		inv := 1 / float64(sizes[c])
		row := sums[c*dim : (c+1)*dim]
		for j := range dst {
			dst[j] = float32(row[j] * inv)
		}
	}

	var shift float64
	for c := range k {
		d := float64(distance.SquaredL2(cur.At(c), next.At(c)))
		shift = max(shift, d)
	}
	return shift
}

func farthest(assignment []int32, dists []float32, sizes []int, taken map[int]bool) int {
	best, bestDist := -1, float32(-1)
	for i, c := range assignment {
		if sizes[c] < 2 || taken[i] {
			continue
		}
		if dists[i] > bestDist {
			best, bestDist = i, dists[i]
		}
	}
	return best
}

// MeanVariance returns the mean of the per-dimension variances of points.
func MeanVariance(points *pointset.PointSet) float64 {
	n, dim := points.Len(), points.Dim()
	if n < 2 || dim == 0 {
		return 0
	}

	col := make([]float64, n)
	var total float64
	for j := range dim {
		for i := range n {
			col[i] = float64(points.At(i)[j])
		}
		total += stat.Variance(col, nil)
	}
	return total / float64(dim)
}

// AssignPartition returns the closest centroid and its squared L2 distance.
// Ties go to the lower centroid id.
func AssignPartition(vec []float32, centroids *pointset.PointSet) (int, float32) {
	dists := make([]float32, centroids.Len())
	distance.SquaredL2Batch(vec, centroids.Data(), centroids.Dim(), dists)

	best, bestDist := -1, float32(math.MaxFloat32)
	for j, d := range dists {
		if d < bestDist {
			best, bestDist = j, d
		}
	}
	return best, bestDist
}

// FindClosestCentroids returns the n closest centroids ordered by distance,
// ties by centroid id.
func FindClosestCentroids(query []float32, centroids *pointset.PointSet, n int) []topk.Item {
	dists := make([]float32, centroids.Len())
	distance.SquaredL2Batch(query, centroids.Data(), centroids.Dim(), dists)

	acc := topk.New(min(n, centroids.Len()))
	for j, d := range dists {
		acc.Add(d, uint32(j))
	}
	return acc.Take()
}

// Groups returns the member ids of each of k clusters in ascending order.
func Groups(assignment []int32, k int) [][]uint32 {
	out := make([][]uint32, k)
	for i, c := range assignment {
		out[c] = append(out[c], uint32(i))
	}
	return out
}
