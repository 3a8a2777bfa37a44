package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardann"
	"github.com/hupe1980/shardann/partition"
	"github.com/hupe1980/shardann/pointset"
	"github.com/hupe1980/shardann/testutil"
)

func TestParseArgs(t *testing.T) {
	req, err := parseArgs([]string{"in.fbin", "out/p", "8", "OBKM", "strong", "0.2"})
	require.NoError(t, err)
	assert.Equal(t, 8, req.Shards)
	assert.Equal(t, partition.OBKM, req.Method)
	assert.True(t, req.Strong)
	assert.Equal(t, 0.2, req.Overlap)
	assert.Equal(t, "out/p.dat.o=0.2", req.PartitionFile())

	req, err = parseArgs([]string{"in.fbin", "out/p", "4", "GP", "default"})
	require.NoError(t, err)
	assert.False(t, req.Strong)
	assert.Equal(t, "out/p.dat", req.PartitionFile())
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"shard count", []string{"in", "out", "x", "GP", "default"}},
		{"zero shards", []string{"in", "out", "0", "GP", "default"}},
		{"method", []string{"in", "out", "4", "Spectral", "default"}},
		{"balance", []string{"in", "out", "4", "GP", "fast"}},
		{"overlap", []string{"in", "out", "4", "OBKM", "default", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args)
			require.Error(t, err)
		})
	}

	_, err := parseArgs([]string{"in", "out", "4", "GP", "fast"})
	require.ErrorIs(t, err, shardann.ErrUnknownBalance)
}

func TestRootCmdArity(t *testing.T) {
	cmd := newRootCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetOut(&stderr)
	cmd.SetArgs([]string{"only", "three", "args"})

	require.Error(t, cmd.Execute())
	assert.Contains(t, stderr.String(), "Usage:")
}

func TestRootCmdRuns(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "base.fbin")
	require.NoError(t, pointset.WriteFile(input, testutil.NewRNG(3).UniformPoints(200, 4)))

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{input, filepath.Join(dir, "p"), "4", "Random", "default", "--workers", "2", "--log-level", "warn"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "4 shards")

	clusters, err := partition.ReadAssignment(filepath.Join(dir, "p.dat"))
	require.NoError(t, err)
	assert.Equal(t, []int{50, 50, 50, 50}, clusters.Sizes())
}
