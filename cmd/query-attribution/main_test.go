package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardann"
)

func TestParseArgs(t *testing.T) {
	req, err := parseArgs([]string{"base.fbin", "query.fbin", "gt.bin", "10", "p.dat", "out.csv", "OurPyramid", "16"})
	require.NoError(t, err)
	assert.Equal(t, 10, req.K)
	assert.Equal(t, 16, req.RequestedShards)
	assert.Equal(t, "OurPyramid", req.Method)
	assert.Equal(t, "p.dat", req.PartitionFile)
	assert.Equal(t, "out.csv", req.Output)
}

func TestParseArgsErrors(t *testing.T) {
	_, err := parseArgs([]string{"b", "q", "g", "ten", "p", "o", "GP", "4"})
	require.Error(t, err)

	_, err = parseArgs([]string{"b", "q", "g", "0", "p", "o", "GP", "4"})
	require.ErrorIs(t, err, shardann.ErrInvalidK)

	_, err = parseArgs([]string{"b", "q", "g", "10", "p", "o", "GP", "-1"})
	require.ErrorIs(t, err, shardann.ErrInvalidShardCount)
}

func TestRootCmdArity(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetErr(&out)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"b", "q"})

	require.Error(t, cmd.Execute())
	assert.Contains(t, out.String(), "Usage:")
}
