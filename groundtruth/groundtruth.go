package groundtruth

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/shardann/distance"
	"github.com/hupe1980/shardann/internal/resource"
	"github.com/hupe1980/shardann/internal/topk"
	"github.com/hupe1980/shardann/pointset"
)

var (
	// ErrMalformed is returned for a truncated or inconsistent file.
	ErrMalformed = errors.New("malformed ground truth")

	// ErrTooFewNeighbors is returned when a row holds fewer than k neighbours.
	ErrTooFewNeighbors = errors.New("ground truth has fewer neighbours than requested")
)

// Neighbor is one (distance, point id) pair.
type Neighbor = topk.Item

// GroundTruth holds, per query, the true neighbours sorted by distance.
type GroundTruth [][]Neighbor

// ReadFile loads a ground-truth file.
func ReadFile(path string) (GroundTruth, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	gt, err := decode(bufio.NewReaderSize(f, 1<<20), info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return gt, nil
}

// maxStreamEntries bounds nq*k for a stream of unknown size.
const maxStreamEntries = 1 << 30

// Read decodes a ground-truth stream.
func Read(r io.Reader) (GroundTruth, error) {
	return decode(r, -1)
}

// decode reads a ground-truth stream. A non-negative size is the exact byte
// length the header must account for.
func decode(r io.Reader, size int64) (GroundTruth, error) {
	var hdr [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	nq, k := int(hdr[0]), int(hdr[1])

	entries := uint64(hdr[0]) * uint64(hdr[1])
	if size >= 0 {
		if want := 8 + 8*entries; uint64(size) != want {
			return nil, fmt.Errorf("%w: %d queries x %d neighbours need %d bytes, file has %d", ErrMalformed, nq, k, want, size)
		}
	} else if entries > maxStreamEntries {
		return nil, fmt.Errorf("%w: %d queries x %d neighbours exceeds %d entries", ErrMalformed, nq, k, maxStreamEntries)
	}

	ids := make([]uint32, nq*k)
	if err := binary.Read(r, binary.LittleEndian, ids); err != nil {
		return nil, fmt.Errorf("%w: ids: %v", ErrMalformed, err)
	}
	dists := make([]float32, nq*k)
	if err := binary.Read(r, binary.LittleEndian, dists); err != nil {
		return nil, fmt.Errorf("%w: distances: %v", ErrMalformed, err)
	}

	gt := make(GroundTruth, nq)
	for q := range gt {
		row := make([]Neighbor, k)
		for j := range row {
			row[j] = Neighbor{Distance: dists[q*k+j], ID: ids[q*k+j]}
		}
		gt[q] = row
	}
	return gt, nil
}

// WriteFile stores gt. All rows must have the same length.
func WriteFile(path string, gt GroundTruth) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriterSize(f, 1<<20)
	if err := Write(w, gt); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Write encodes gt.
func Write(w io.Writer, gt GroundTruth) error {
	k := 0
	if len(gt) > 0 {
		k = len(gt[0])
	}

	ids := make([]uint32, 0, len(gt)*k)
	dists := make([]float32, 0, len(gt)*k)
	for q, row := range gt {
		if len(row) != k {
			return fmt.Errorf("%w: row %d has %d neighbours, want %d", ErrMalformed, q, len(row), k)
		}
		for _, nb := range row {
			ids = append(ids, nb.ID)
			dists = append(dists, nb.Distance)
		}
	}

	if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(len(gt)), uint32(k)}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, ids); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, dists)
}

// Options configures Compute and DistanceToKth.
type Options struct {
	// Metric ranks the neighbours. Defaults to squared L2.
	Metric distance.Metric
}

// computeBlock is the number of points scored per batch kernel call.
const computeBlock = 1024

// Compute finds the exact k nearest points of every query by brute force,
// spreading queries over workers goroutines.
func Compute(ctx context.Context, points, queries *pointset.PointSet, k, workers int, optFns ...func(o *Options)) (GroundTruth, error) {
	if points.Dim() != queries.Dim() {
		return nil, &pointset.DimensionMismatchError{Expected: points.Dim(), Actual: queries.Dim()}
	}
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	batch, err := distance.BatchProvider(opts.Metric)
	if err != nil {
		return nil, err
	}

	n, dim := points.Len(), points.Dim()
	data := points.Data()

	gt := make(GroundTruth, queries.Len())
	err = resource.ParallelFor(ctx, queries.Len(), workers, 1, func(q int) error {
		query := queries.At(q)
		acc := topk.New(k)
		dists := make([]float32, min(computeBlock, n))
		for lo := 0; lo < n; lo += computeBlock {
			hi := min(lo+computeBlock, n)
			batch(query, data[lo*dim:hi*dim], dim, dists[:hi-lo])
			for i, d := range dists[:hi-lo] {
				acc.Add(d, uint32(lo+i))
			}
		}
		gt[q] = acc.Take()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return gt, nil
}

// Validate checks that every neighbour id lies in [0, n).
func (gt GroundTruth) Validate(n int) error {
	for q, row := range gt {
		for j, nb := range row {
			if int(nb.ID) >= n {
				return fmt.Errorf("%w: query %d neighbour %d has id %d not in [0, %d)", ErrMalformed, q, j, nb.ID, n)
			}
		}
	}
	return nil
}

// DistanceToKth returns, per query, the distance to its k-th true neighbour.
// The distance is recomputed from the vectors so that it matches the metric
// the shard indexes report, regardless of how the file was produced.
func DistanceToKth(gt GroundTruth, k int, points, queries *pointset.PointSet, optFns ...func(o *Options)) ([]float32, error) {
	if k <= 0 {
		return nil, fmt.Errorf("groundtruth: invalid k %d", k)
	}
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	dist, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}
	if len(gt) < queries.Len() {
		return nil, fmt.Errorf("%w: %d rows for %d queries", ErrMalformed, len(gt), queries.Len())
	}

	out := make([]float32, queries.Len())
	for q := range out {
		if len(gt[q]) < k {
			return nil, fmt.Errorf("%w: query %d has %d, want %d", ErrTooFewNeighbors, q, len(gt[q]), k)
		}
		id := gt[q][k-1].ID
		if int(id) >= points.Len() {
			return nil, fmt.Errorf("%w: neighbour id %d", pointset.ErrOutOfRange, id)
		}
		out[q] = dist(queries.At(q), points.At(int(id)))
	}
	return out, nil
}

// IDs returns the first k neighbour ids of every query.
func (gt GroundTruth) IDs(k int) [][]uint32 {
	out := make([][]uint32, len(gt))
	for q, row := range gt {
		n := min(k, len(row))
		ids := make([]uint32, n)
		for j := range n {
			ids[j] = row[j].ID
		}
		out[q] = ids
	}
	return out
}
