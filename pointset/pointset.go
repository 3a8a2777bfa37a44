package pointset

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when a point file does not match its header.
	ErrMalformed = errors.New("malformed point file")

	// ErrOutOfRange is returned when a point index is outside [0, n).
	ErrOutOfRange = errors.New("point index out of range")
)

// DimensionMismatchError indicates a vector/point-set dimensionality mismatch.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// PointSet is an immutable n x d matrix of float32 coordinates.
type PointSet struct {
	data []float32
	n    int
	d    int
}

// New allocates a zeroed point set with n points of dimension d.
func New(n, d int) *PointSet {
	return &PointSet{data: make([]float32, n*d), n: n, d: d}
}

// FromData wraps data as a point set of dimension d. The slice is not copied.
func FromData(data []float32, d int) (*PointSet, error) {
	if d <= 0 {
		return nil, fmt.Errorf("pointset: invalid dimension %d", d)
	}
	if len(data)%d != 0 {
		return nil, &DimensionMismatchError{Expected: d, Actual: len(data) % d}
	}
	return &PointSet{data: data, n: len(data) / d, d: d}, nil
}

// FromRows copies rows into a new point set. All rows must share one length.
func FromRows(rows [][]float32) (*PointSet, error) {
	if len(rows) == 0 {
		return &PointSet{}, nil
	}
	d := len(rows[0])
	ps := New(len(rows), d)
	for i, r := range rows {
		if len(r) != d {
			return nil, &DimensionMismatchError{Expected: d, Actual: len(r)}
		}
		copy(ps.data[i*d:], r)
	}
	return ps, nil
}

// Len returns the number of points.
func (p *PointSet) Len() int { return p.n }

// Dim returns the dimensionality.
func (p *PointSet) Dim() int { return p.d }

// Data returns the flat row-major buffer. Callers must not modify it.
func (p *PointSet) Data() []float32 { return p.data }

// At returns the coordinates of point i. It panics if i is out of range.
func (p *PointSet) At(i int) []float32 {
	if i < 0 || i >= p.n {
		panic(fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, p.n))
	}
	lo := i * p.d
	hi := lo + p.d
	return p.data[lo:hi:hi]
}

// Set overwrites point i. Only meant for building a set before it is shared.
func (p *PointSet) Set(i int, v []float32) {
	copy(p.At(i), v)
}

// Subset copies the given points, in order, into a new point set.
func (p *PointSet) Subset(ids []uint32) *PointSet {
	out := New(len(ids), p.d)
	for i, id := range ids {
		copy(out.data[i*p.d:], p.At(int(id)))
	}
	return out
}

// Mean writes the coordinate-wise mean of the given points into dst.
// dst is left zeroed if ids is empty.
func (p *PointSet) Mean(ids []uint32, dst []float32) {
	for j := range dst {
		dst[j] = 0
	}
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		row := p.At(int(id))
		for j, x := range row {
			dst[j] += x
		}
	}
	inv := 1 / float32(len(ids))
	for j := range dst {
		dst[j] *= inv
	}
}
