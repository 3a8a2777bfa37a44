package groundtruth

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardann/distance"
	"github.com/hupe1980/shardann/pointset"
	"github.com/hupe1980/shardann/testutil"
)

func TestCompute_Line(t *testing.T) {
	points := testutil.LinePoints(10)
	queries, err := pointset.FromData([]float32{2.2, 8.9}, 1)
	require.NoError(t, err)

	gt, err := Compute(t.Context(), points, queries, 3, 2)
	require.NoError(t, err)
	require.Len(t, gt, 2)

	assert.Equal(t, []uint32{2, 3, 1}, gt.IDs(3)[0])
	assert.Equal(t, []uint32{9, 8, 7}, gt.IDs(3)[1])
	assert.InDelta(t, 0.04, gt[0][0].Distance, 1e-5)
}

func TestCompute_DimensionMismatch(t *testing.T) {
	points := testutil.LinePoints(4)
	queries := pointset.New(1, 2)

	_, err := Compute(t.Context(), points, queries, 1, 1)
	var dm *pointset.DimensionMismatchError
	assert.ErrorAs(t, err, &dm)
}

func TestReadWrite_RoundTrip(t *testing.T) {
	rng := testutil.NewRNG(7)
	points := rng.UniformPoints(200, 8)
	queries := rng.UniformPoints(5, 8)

	gt, err := Compute(t.Context(), points, queries, 10, 4)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "gt.bin")
	require.NoError(t, WriteFile(path, gt))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, gt, got)
}

func TestRead_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, GroundTruth{{{Distance: 1, ID: 1}}}))

	_, err := Read(bytes.NewReader(buf.Bytes()[:buf.Len()-2]))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDistanceToKth(t *testing.T) {
	points := testutil.LinePoints(10)
	queries, err := pointset.FromData([]float32{0, 5}, 1)
	require.NoError(t, err)

	// The stored distances are deliberately wrong; they must be recomputed.
	gt := GroundTruth{
		{{Distance: 99, ID: 0}, {Distance: 99, ID: 1}, {Distance: 99, ID: 2}},
		{{Distance: 99, ID: 5}, {Distance: 99, ID: 4}, {Distance: 99, ID: 7}},
	}

	d, err := DistanceToKth(gt, 3, points, queries)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 4}, d)

	_, err = DistanceToKth(gt, 4, points, queries)
	assert.ErrorIs(t, err, ErrTooFewNeighbors)
}

func TestReadFile_SizeMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, GroundTruth{{{Distance: 1, ID: 1}}, {{Distance: 2, ID: 0}}}))

	// the header claims far more rows than the file holds
	data := buf.Bytes()
	data[0] = 0xff
	data[1] = 0xff
	path := filepath.Join(t.TempDir(), "gt.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := ReadFile(path)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorContains(t, err, "file has 24 bytes")
}

func TestRead_OversizedHeader(t *testing.T) {
	hdr := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	_, err := Read(bytes.NewReader(hdr))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestValidate(t *testing.T) {
	gt := GroundTruth{
		{{ID: 0}, {ID: 3}},
		{{ID: 2}, {ID: 9}},
	}
	require.NoError(t, gt.Validate(10))

	err := gt.Validate(5)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorContains(t, err, "query 1 neighbour 1 has id 9")
}

func TestCompute_DotMetric(t *testing.T) {
	points, err := pointset.FromData([]float32{1, 0, 0, 1, 3, 3, -1, -1}, 2)
	require.NoError(t, err)
	queries, err := pointset.FromData([]float32{1, 1}, 2)
	require.NoError(t, err)

	withDot := func(o *Options) { o.Metric = distance.MetricDot }

	gt, err := Compute(t.Context(), points, queries, 2, 1, withDot)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 0}, gt.IDs(2)[0])
	assert.InDelta(t, -6, gt[0][0].Distance, 1e-6)

	d, err := DistanceToKth(gt, 2, points, queries, withDot)
	require.NoError(t, err)
	assert.InDelta(t, -1, d[0], 1e-6)
}

func TestCompute_SpansBlocks(t *testing.T) {
	points := testutil.LinePoints(2*computeBlock + 10)
	queries, err := pointset.FromData([]float32{float32(2*computeBlock + 8)}, 1)
	require.NoError(t, err)

	gt, err := Compute(t.Context(), points, queries, 3, 1)
	require.NoError(t, err)
	want := []uint32{2*computeBlock + 8, 2*computeBlock + 7, 2*computeBlock + 9}
	assert.ElementsMatch(t, want, gt.IDs(3)[0])
	assert.Equal(t, want[0], gt[0][0].ID)
}
