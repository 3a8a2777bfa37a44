package pointset

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointSet_At(t *testing.T) {
	ps, err := FromData([]float32{1, 2, 3, 4, 5, 6}, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, ps.Len())
	assert.Equal(t, 2, ps.Dim())
	assert.Equal(t, []float32{3, 4}, ps.At(1))

	row := ps.At(0)
	assert.Equal(t, 2, cap(row), "row view must be capacity clipped")

	assert.Panics(t, func() { ps.At(3) })
	assert.Panics(t, func() { ps.At(-1) })
}

func TestFromData_Invalid(t *testing.T) {
	_, err := FromData([]float32{1, 2, 3}, 2)
	var dm *DimensionMismatchError
	require.ErrorAs(t, err, &dm)

	_, err = FromData(nil, 0)
	assert.Error(t, err)
}

func TestFromRows(t *testing.T) {
	ps, err := FromRows([][]float32{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, ps.Data())

	_, err = FromRows([][]float32{{1, 2}, {3}})
	assert.Error(t, err)
}

func TestSubsetAndMean(t *testing.T) {
	ps, err := FromRows([][]float32{{0, 0}, {2, 2}, {4, 8}})
	require.NoError(t, err)

	sub := ps.Subset([]uint32{2, 0})
	assert.Equal(t, []float32{4, 8, 0, 0}, sub.Data())

	mean := make([]float32, 2)
	ps.Mean([]uint32{1, 2}, mean)
	assert.Equal(t, []float32{3, 5}, mean)

	ps.Mean(nil, mean)
	assert.Equal(t, []float32{0, 0}, mean)
}

func TestWriteRead_RoundTrip(t *testing.T) {
	ps, err := FromRows([][]float32{{1.5, -2}, {3, 4.25}, {0, 1}})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "points.fbin")
	require.NoError(t, WriteFile(path, ps))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ps.Data(), got.Data())
	assert.Equal(t, 3, got.Len())

	n, d, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, d)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8+3*2*4), info.Size())
}

func TestRead_ByteFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, [2]uint32{2, 2}))
	buf.Write([]byte{1, 255, 0, 128})
	raw := buf.Bytes()

	u8, err := Read(bytes.NewReader(raw), FormatUint8)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 255, 0, 128}, u8.Data())

	i8, err := Read(bytes.NewReader(raw), FormatInt8)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -1, 0, -128}, i8.Data())
}

func TestRead_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, [2]uint32{4, 2}))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []float32{1, 2}))

	_, err := Read(&buf, FormatFloat32)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatUint8, FormatFromPath("base.u8bin"))
	assert.Equal(t, FormatInt8, FormatFromPath("/x/base.I8BIN"))
	assert.Equal(t, FormatFloat32, FormatFromPath("base.fbin"))
	assert.Equal(t, FormatFloat32, FormatFromPath("centroids.dat"))
}
