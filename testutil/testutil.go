package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/shardann/distance"
	"github.com/hupe1980/shardann/pointset"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// UniformPoints generates n points with coordinates in [0, 1).
func (r *RNG) UniformPoints(n, d int) *pointset.PointSet {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, n*d)
	for i := range data {
		data[i] = r.rand.Float32()
	}
	return mustWrap(data, d)
}

// GaussianPoints generates n points from a standard normal distribution.
func (r *RNG) GaussianPoints(n, d int) *pointset.PointSet {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, n*d)
	for i := range data {
		data[i] = float32(r.rand.NormFloat64())
	}
	return mustWrap(data, d)
}

// UnitVector generates a single L2-normalized random vector.
func (r *RNG) UnitVector(d int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec := make([]float32, d)
	for j := range vec {
		vec[j] = float32(r.rand.NormFloat64())
	}
	distance.NormalizeL2InPlace(vec)
	return vec
}

// ClusteredPoints generates n points around `clusters` random unit centres.
// Point i belongs to blob i%clusters; spread is the Gaussian noise scale.
func (r *RNG) ClusteredPoints(n, d, clusters int, spread float32) *pointset.PointSet {
	centres := make([][]float32, clusters)
	for c := range centres {
		centres[c] = r.UnitVector(d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, n*d)
	for i := range n {
		centre := centres[i%clusters]
		vec := data[i*d : (i+1)*d]
		for j := range d {
			vec[j] = centre[j] + float32(r.rand.NormFloat64())*spread
		}
	}
	return mustWrap(data, d)
}

// LinePoints returns n one-dimensional points at 0, 1, ..., n-1.
func LinePoints(n int) *pointset.PointSet {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i)
	}
	return mustWrap(data, 1)
}

// ComputeRecall returns |exact ∩ approx| / |exact|.
func ComputeRecall(exact, approx []uint32) float64 {
	if len(exact) == 0 {
		if len(approx) == 0 {
			return 1.0
		}
		return 0.0
	}

	truth := make(map[uint32]struct{}, len(exact))
	for _, id := range exact {
		truth[id] = struct{}{}
	}

	hits := 0
	for _, id := range approx {
		if _, ok := truth[id]; ok {
			hits++
			delete(truth, id)
		}
	}

	return float64(hits) / float64(len(exact))
}

func mustWrap(data []float32, d int) *pointset.PointSet {
	ps, err := pointset.FromData(data, d)
	if err != nil {
		panic(err)
	}
	return ps
}
