package partition

import (
	"context"

	"github.com/hupe1980/shardann/internal/graphpart"
	"github.com/hupe1980/shardann/internal/knngraph"
	"github.com/hupe1980/shardann/pointset"
)

// graphStrategy partitions the symmetric k-NN graph of the points.
type graphStrategy struct{ base }

func (s *graphStrategy) Method() Method { return GP }

func (s *graphStrategy) Partition(ctx context.Context, points *pointset.PointSet, k int) (*Result, error) {
	if err := s.check(points, k); err != nil {
		return nil, err
	}
	g, err := s.knnGraph(ctx, points)
	if err != nil {
		return nil, err
	}
	part, err := s.partitionGraph(ctx, &graphpart.Graph{Adj: g.Adj}, k)
	if err != nil {
		return nil, err
	}
	return s.finish(&Result{Partition: part}, points.Len(), k), nil
}

func (b *base) knnGraph(ctx context.Context, points *pointset.PointSet) (*knngraph.Graph, error) {
	g, err := knngraph.Build(ctx, points, knngraph.Options{
		Neighbors: b.opts.GraphNeighbors,
		Workers:   b.opts.Workers,
		Seed:      b.opts.Seed,
	})
	if err != nil {
		return nil, err
	}
	b.opts.Logger.Debug("Built k-NN graph", "vertices", g.NumVertices(), "edges", g.NumEdges())
	return g, nil
}

func (b *base) partitionGraph(ctx context.Context, g *graphpart.Graph, k int) (Partition, error) {
	part, err := graphpart.Partition(ctx, g, k, graphpart.Options{
		Epsilon: b.opts.Epsilon,
		Seed:    b.opts.Seed,
		Strong:  b.opts.Strong,
		Logger:  b.opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	b.opts.Logger.Debug("Graph partitioned", "k", k, "edge_cut", graphpart.EdgeCut(g, part))
	return Partition(part), nil
}
