// Package combine joins routing decisions with shard search sweeps into a
// recall/latency tradeoff report.
package combine

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/shardann/internal/resource"
	"github.com/hupe1980/shardann/routing"
	"github.com/hupe1980/shardann/shardsearch"
)

// ErrMismatch is returned when routes and searches disagree on the workload.
var ErrMismatch = errors.New("combine: routes and searches do not match")

// Params describes the evaluated run.
type Params struct {
	// K is the neighbour count recall is measured against.
	K int

	NumQueries      int
	NumShards       int
	RequestedShards int

	// Method labels the partitioning method in the report.
	Method string

	// Workers bounds the number of (route, effort) pairs evaluated at once.
	Workers int
}

// Row is the aggregate of one (route config, search effort) pair.
type Row struct {
	Strategy   string
	Parameters string
	NumProbes  int
	Effort     int

	// Recall is the mean over queries of min(|hits|, k)/k with hits
	// deduplicated across probed shards.
	Recall float64

	// ShardLatency is the mean over queries of the summed per-shard times
	// of the probed shards.
	ShardLatency float64

	RoutingLatency float64
	RoutingCost    float64
}

// TotalLatency is routing plus shard latency.
func (r Row) TotalLatency() float64 { return r.RoutingLatency + r.ShardLatency }

// Report is the full tradeoff matrix.
type Report struct {
	Method          string
	RequestedShards int
	NumShards       int
	K               int

	// Rows are ordered by route config, then by effort.
	Rows []Row
}

// Combine evaluates every pair of routes and searches.
func Combine(ctx context.Context, routes []routing.Config, searches []*shardsearch.Result, p Params) (*Report, error) {
	if p.K <= 0 {
		return nil, fmt.Errorf("combine: k must be positive, got %d", p.K)
	}
	for _, s := range searches {
		if s.NumShards() != p.NumShards || s.NumQueries() != p.NumQueries {
			return nil, fmt.Errorf("%w: effort %d covers %d shards and %d queries, want %d and %d",
				ErrMismatch, s.Effort, s.NumShards(), s.NumQueries(), p.NumShards, p.NumQueries)
		}
	}
	for _, r := range routes {
		if len(r.Probes) != p.NumQueries {
			return nil, fmt.Errorf("%w: %s/%d routes %d queries, want %d", ErrMismatch, r.Strategy, r.NumProbes, len(r.Probes), p.NumQueries)
		}
		for _, probes := range r.Probes {
			for _, b := range probes {
				if b < 0 || b >= p.NumShards {
					return nil, fmt.Errorf("%w: %s probes shard %d of %d", ErrMismatch, r.Strategy, b, p.NumShards)
				}
			}
		}
	}

	rows := make([]Row, len(routes)*len(searches))
	err := resource.ParallelFor(ctx, len(rows), p.Workers, 1, func(i int) error {
		r := routes[i/len(searches)]
		s := searches[i%len(searches)]
		rows[i] = evaluate(r, s, p.K)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Report{
		Method:          p.Method,
		RequestedShards: p.RequestedShards,
		NumShards:       p.NumShards,
		K:               p.K,
		Rows:            rows,
	}, nil
}

func evaluate(r routing.Config, s *shardsearch.Result, k int) Row {
	row := Row{
		Strategy:       r.Strategy,
		Parameters:     r.Parameters,
		NumProbes:      r.NumProbes,
		Effort:         s.Effort,
		RoutingLatency: r.RoutingTime,
		RoutingCost:    r.RoutingCost,
	}

	nq := len(r.Probes)
	if nq == 0 {
		return row
	}

	union := roaring.New()
	var recall, latency float64
	for q, probes := range r.Probes {
		union.Clear()
		for _, b := range probes {
			union.AddMany(s.Neighbors[b][q])
			latency += s.Times[b][q]
		}
		recall += float64(min(int(union.GetCardinality()), k)) / float64(k)
	}

	row.Recall = recall / float64(nq)
	row.ShardLatency = latency / float64(nq)
	return row
}

var csvHeader = []string{
	"method", "requested_shards", "num_shards", "k",
	"strategy", "parameters", "num_probes", "effort",
	"recall", "shard_latency", "routing_latency", "routing_cost", "total_latency",
}

// WriteCSV writes a header and one record per row.
func (rep *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, row := range rep.Rows {
		rec := []string{
			rep.Method,
			strconv.Itoa(rep.RequestedShards),
			strconv.Itoa(rep.NumShards),
			strconv.Itoa(rep.K),
			row.Strategy,
			row.Parameters,
			strconv.Itoa(row.NumProbes),
			strconv.Itoa(row.Effort),
			f(row.Recall),
			f(row.ShardLatency),
			f(row.RoutingLatency),
			f(row.RoutingCost),
			f(row.TotalLatency()),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// Best returns, for every strategy and probe count, the row with the lowest
// total latency reaching at least the target recall.
func (rep *Report) Best(target float64) []Row {
	type key struct {
		strategy string
		probes   int
	}
	index := make(map[key]int)
	var out []Row
	for _, row := range rep.Rows {
		if row.Recall < target {
			continue
		}
		kk := key{row.Strategy, row.NumProbes}
		if i, ok := index[kk]; ok {
			if row.TotalLatency() < out[i].TotalLatency() {
				out[i] = row
			}
			continue
		}
		index[kk] = len(out)
		out = append(out, row)
	}
	return out
}
