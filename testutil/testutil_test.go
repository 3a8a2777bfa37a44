package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniformPoints(t *testing.T) {
	rng := NewRNG(4711)

	ps := rng.UniformPoints(8, 32)

	assert.Equal(t, 8, ps.Len())
	assert.Equal(t, 32, ps.Dim())
	for _, x := range ps.Data() {
		assert.GreaterOrEqual(t, x, float32(0))
		assert.Less(t, x, float32(1))
	}
}

func TestUnitVector(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UnitVector(32)

	var sum float32
	for _, x := range v {
		sum += x * x
	}
	assert.InDelta(t, float32(1.0), sum, 1e-5)
}

func TestClusteredPoints(t *testing.T) {
	rng := NewRNG(4711)

	ps := rng.ClusteredPoints(100, 32, 5, 0.1)

	assert.Equal(t, 100, ps.Len())
	assert.Equal(t, 32, ps.Dim())
}

func TestLinePoints(t *testing.T) {
	ps := LinePoints(4)
	assert.Equal(t, []float32{0, 1, 2, 3}, ps.Data())
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.GaussianPoints(1, 10)

	rng.Reset()
	v2 := rng.GaussianPoints(1, 10)

	assert.Equal(t, v1.Data(), v2.Data())
}

func TestComputeRecall(t *testing.T) {
	assert.Equal(t, 1.0, ComputeRecall(nil, nil))
	assert.Equal(t, 0.5, ComputeRecall([]uint32{1, 2}, []uint32{2, 7, 2}))
	assert.Equal(t, 0.0, ComputeRecall([]uint32{1}, nil))
}
