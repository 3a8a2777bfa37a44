package distance

import (
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/shardann/internal/simd"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	return simd.Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	return simd.SquaredL2(a, b)
}

// NegativeDot returns -Dot(a, b) so that inner-product search can reuse
// min-distance machinery.
func NegativeDot(a, b []float32) float32 {
	return -simd.Dot(a, b)
}

// SquaredL2Batch scores query against each dim-wide row of targets.
func SquaredL2Batch(query, targets []float32, dim int, out []float32) {
	simd.SquaredL2Batch(query, targets, dim, out)
}

// NegativeDotBatch is the batch form of NegativeDot.
func NegativeDotBatch(query, targets []float32, dim int, out []float32) {
	simd.DotBatch(query, targets, dim, out)
	n := 0
	if dim > 0 {
		n = min(len(out), len(targets)/dim)
	}
	for i := range n {
		out[i] = -out[i]
	}
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := simd.Dot(v, v)
	if norm2 == 0 {
		return false
	}
	simd.ScaleInPlace(v, float32(1/math.Sqrt(float64(norm2))))
	return true
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	// MetricL2 is squared Euclidean distance.
	MetricL2 Metric = iota
	// MetricDot is the negated inner product (maximum inner product search).
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricDot:
		return "Dot"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// ParseMetric accepts "l2" and "dot" (alias "mips"), case-insensitively.
// The empty string is L2.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "l2":
		return MetricL2, nil
	case "dot", "mips":
		return MetricDot, nil
	default:
		return MetricL2, fmt.Errorf("unsupported metric: %q", s)
	}
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// BatchFunc scores query against each dim-wide row of targets into out.
type BatchFunc func(query, targets []float32, dim int, out []float32)

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricDot:
		return NegativeDot, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

// BatchProvider returns the batch distance function for the given metric.
func BatchProvider(m Metric) (BatchFunc, error) {
	switch m {
	case MetricL2:
		return SquaredL2Batch, nil
	case MetricDot:
		return NegativeDotBatch, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
