package partition

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/hupe1980/shardann/internal/graphpart"
	"github.com/hupe1980/shardann/internal/kmeans"
	"github.com/hupe1980/shardann/internal/resource"
	"github.com/hupe1980/shardann/pointset"
)

// RoutingIndex is the routing artifact of Pyramid and OurPyramid: a small set
// of routing points, each labelled with the shard it routes to.
type RoutingIndex struct {
	Points *pointset.PointSet
	Labels []int32
}

// WriteRoutingIndexFile stores ri as uint32 m, uint32 d, m*d float32, m int32.
func WriteRoutingIndexFile(path string, ri *RoutingIndex) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := WriteRoutingIndex(w, ri); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteRoutingIndex encodes ri.
func WriteRoutingIndex(w io.Writer, ri *RoutingIndex) error {
	if len(ri.Labels) != ri.Points.Len() {
		return fmt.Errorf("partition: routing index has %d labels for %d points", len(ri.Labels), ri.Points.Len())
	}
	if err := pointset.Write(w, ri.Points); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, ri.Labels)
}

// ReadRoutingIndexFile loads a routing index.
func ReadRoutingIndexFile(path string) (*RoutingIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ri, err := ReadRoutingIndex(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ri, nil
}

// ReadRoutingIndex decodes a routing index.
func ReadRoutingIndex(r io.Reader) (*RoutingIndex, error) {
	ps, err := pointset.Read(r, pointset.FormatFloat32)
	if err != nil {
		return nil, err
	}
	labels := make([]int32, ps.Len())
	if err := binary.Read(r, binary.LittleEndian, labels); err != nil {
		return nil, fmt.Errorf("%w: routing labels: %v", pointset.ErrMalformed, err)
	}
	return &RoutingIndex{Points: ps, Labels: labels}, nil
}

// pyramidStrategy clusters a sample into meta centres, partitions the k-NN
// graph of the centres weighted by the number of points each centre
// attracts, and sends every point to the shard of its nearest centre.
type pyramidStrategy struct{ base }

func (s *pyramidStrategy) Method() Method { return Pyramid }

func (s *pyramidStrategy) Partition(ctx context.Context, points *pointset.PointSet, k int) (*Result, error) {
	if err := s.check(points, k); err != nil {
		return nil, err
	}
	n := points.Len()

	sample := kmeans.RandomSample(points, min(n, s.opts.PyramidSampleFactor*k), s.opts.Seed)
	m := min(sample.Len(), s.opts.PyramidCentresFactor*k)
	km, err := kmeans.Train(ctx, sample, kmeans.RandomSample(sample, m, s.opts.Seed+1), s.kmeansOptions())
	if err != nil {
		return nil, err
	}
	centres := km.Centroids

	nearest := make([]int32, n)
	if err := resource.ParallelFor(ctx, n, s.opts.Workers, 1024, func(i int) error {
		c, _ := kmeans.AssignPartition(points.At(i), centres)
		nearest[i] = int32(c)
		return nil
	}); err != nil {
		return nil, err
	}

	weights := make([]int64, centres.Len())
	for _, c := range nearest {
		weights[c]++
	}

	g, err := s.knnGraph(ctx, centres)
	if err != nil {
		return nil, err
	}
	labels, err := s.partitionGraph(ctx, &graphpart.Graph{Adj: g.Adj, VertexWeights: weights}, k)
	if err != nil {
		return nil, err
	}

	part := make(Partition, n)
	for i, c := range nearest {
		part[i] = labels[c]
	}

	// Points follow their centre, so a dominant centre can overfill its shard.
	maxSize := s.maxShardSize(n, k)
	for b, size := range part.Sizes(k) {
		if size > maxSize {
			s.opts.Logger.Warn("Shard exceeds size cap", "shard", b, "size", size, "cap", maxSize)
		}
	}

	res := &Result{
		Partition:    part,
		RoutingIndex: &RoutingIndex{Points: centres, Labels: labels},
	}
	return s.finish(res, n, k), nil
}

// ourPyramidStrategy uses a seeded sample of the points themselves as routing
// points, partitions their k-NN graph, and assigns each point to the shard of
// the nearest routing point whose shard still has room.
type ourPyramidStrategy struct{ base }

func (s *ourPyramidStrategy) Method() Method { return OurPyramid }

// candidateRoutingPoints is how many nearest routing points are ranked per
// point before falling back to a full scan.
const candidateRoutingPoints = 16

func (s *ourPyramidStrategy) Partition(ctx context.Context, points *pointset.PointSet, k int) (*Result, error) {
	if err := s.check(points, k); err != nil {
		return nil, err
	}
	n := points.Len()

	m := min(n, max(k, int(math.Ceil(s.opts.OurPyramidFraction*float64(n)-1e-9))))
	routing := points.Subset(kmeans.SampleIDs(n, m, s.opts.Seed))

	g, err := s.knnGraph(ctx, routing)
	if err != nil {
		return nil, err
	}
	labels, err := s.partitionGraph(ctx, &graphpart.Graph{Adj: g.Adj}, k)
	if err != nil {
		return nil, err
	}

	ranked := make([][]uint32, n)
	if err := resource.ParallelFor(ctx, n, s.opts.Workers, 256, func(i int) error {
		items := kmeans.FindClosestCentroids(points.At(i), routing, candidateRoutingPoints)
		ids := make([]uint32, len(items))
		for j, it := range items {
			ids[j] = it.ID
		}
		ranked[i] = ids
		return nil
	}); err != nil {
		return nil, err
	}

	maxSize := s.maxShardSize(n, k)
	sizes := make([]int, k)
	part := make(Partition, n)
	fallbacks := 0

	for i := range n {
		shard := int32(-1)
		for _, r := range ranked[i] {
			if b := labels[r]; sizes[b] < maxSize {
				shard = b
				break
			}
		}
		if shard < 0 {
			fallbacks++
			for _, it := range kmeans.FindClosestCentroids(points.At(i), routing, routing.Len()) {
				if b := labels[it.ID]; sizes[b] < maxSize {
					shard = b
					break
				}
			}
		}
		if shard < 0 {
			// Shards with no routing point; k*maxSize >= n guarantees one has room.
			for b := range sizes {
				if sizes[b] < maxSize {
					shard = int32(b)
					break
				}
			}
		}
		part[i] = shard
		sizes[shard]++
	}
	if fallbacks > 0 {
		s.opts.Logger.Debug("Capacity-aware routing fell back to full scan", "points", fallbacks)
	}

	res := &Result{
		Partition:    part,
		RoutingIndex: &RoutingIndex{Points: routing, Labels: labels},
	}
	return s.finish(res, n, k), nil
}
