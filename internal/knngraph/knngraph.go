// Package knngraph builds symmetric k-nearest-neighbour graphs over point sets.
package knngraph

import (
	"context"
	"slices"

	"github.com/hupe1980/shardann/distance"
	"github.com/hupe1980/shardann/hnsw"
	"github.com/hupe1980/shardann/internal/resource"
	"github.com/hupe1980/shardann/internal/topk"
	"github.com/hupe1980/shardann/pointset"
)

// BruteForceLimit is the point count up to which neighbours are found exactly.
const BruteForceLimit = 5000

// Graph is an undirected adjacency list. Adj[v] is sorted ascending.
type Graph struct {
	Adj [][]uint32
}

// NumVertices returns the vertex count.
func (g *Graph) NumVertices() int { return len(g.Adj) }

// NumEdges returns the number of undirected edges.
func (g *Graph) NumEdges() int {
	total := 0
	for _, a := range g.Adj {
		total += len(a)
	}
	return total / 2
}

// Options configures graph construction.
type Options struct {
	// Neighbors is the out-degree before symmetrization. Defaults to 10.
	Neighbors int

	// Workers bounds the fan-out. Defaults to 1.
	Workers int

	// Seed drives the approximate index.
	Seed int64

	// HNSW parameters for inputs above BruteForceLimit.
	M              int
	EFConstruction int
}

// Neighbors returns the directed k-NN lists (self excluded), sorted by distance.
func Neighbors(ctx context.Context, points *pointset.PointSet, opts Options) ([][]topk.Item, error) {
	if opts.Neighbors <= 0 {
		opts.Neighbors = 10
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	n := points.Len()
	k := min(opts.Neighbors, n-1)
	out := make([][]topk.Item, n)
	if k <= 0 {
		return out, nil
	}

	if n <= BruteForceLimit {
		err := resource.ParallelFor(ctx, n, opts.Workers, 16, func(i int) error {
			acc := topk.New(k)
			v := points.At(i)
			for j := range n {
				if j != i {
					acc.Add(distance.SquaredL2(v, points.At(j)), uint32(j))
				}
			}
			out[i] = acc.Take()
			return nil
		})
		return out, err
	}

	index := hnsw.New(points.Dim(), n, func(o *hnsw.Options) {
		o.Seed = opts.Seed
		if opts.M > 0 {
			o.M = opts.M
		}
		if opts.EFConstruction > 0 {
			o.EFConstruction = opts.EFConstruction
		}
	})

	if err := resource.ParallelFor(ctx, n, opts.Workers, 256, func(i int) error {
		return index.Insert(uint32(i), points.At(i))
	}); err != nil {
		return nil, err
	}

	ef := max(2*k, 64)
	err := resource.ParallelFor(ctx, n, opts.Workers, 64, func(i int) error {
		res, err := index.KNNSearchWithEF(points.At(i), k+1, ef)
		if err != nil {
			return err
		}
		row := make([]topk.Item, 0, k)
		for _, nb := range res.Neighbors {
			if int(nb.ID) != i && len(row) < k {
				row = append(row, nb)
			}
		}
		out[i] = row
		return nil
	})
	return out, err
}

// Build returns the symmetrized k-NN graph of points.
func Build(ctx context.Context, points *pointset.PointSet, opts Options) (*Graph, error) {
	nn, err := Neighbors(ctx, points, opts)
	if err != nil {
		return nil, err
	}
	return Symmetrize(nn), nil
}

// Symmetrize turns directed neighbour lists into an undirected graph without
// duplicate edges or self loops.
func Symmetrize(nn [][]topk.Item) *Graph {
	adj := make([][]uint32, len(nn))
	for u, row := range nn {
		for _, nb := range row {
			v := nb.ID
			if int(v) == u {
				continue
			}
			adj[u] = append(adj[u], v)
			adj[v] = append(adj[v], uint32(u))
		}
	}
	for u := range adj {
		slices.Sort(adj[u])
		adj[u] = slices.Compact(adj[u])
	}
	return &Graph{Adj: adj}
}
