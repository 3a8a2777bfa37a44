// Command partition splits a point set into shards.
//
//	partition <input-points> <output-prefix> <num-shards> <method> <default|strong> [overlap]
package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hupe1980/shardann"
	"github.com/hupe1980/shardann/internal/cli"
	"github.com/hupe1980/shardann/partition"
)

func main() {
	cli.Main(newRootCmd())
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partition <input-points> <output-prefix> <num-shards> <method> <default|strong> [overlap]",
		Short: "Partition a point set into balanced shards",
		Long: `partition assigns every point of the input to a shard under a balance cap
and writes the partition, its METIS form, centroids and routing artifacts.

Methods: ` + methodList(),
		Args:          cobra.RangeArgs(5, 6),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseArgs(args)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			cfg, logger, err := cli.Setup(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			res, err := shardann.RunPartition(cmd.Context(), req, cfg, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d shards, sizes %v\n", res.PartitionFile, res.NumShards, res.Sizes)
			return nil
		},
	}
	cli.AddFlags(cmd)
	return cmd
}

func parseArgs(args []string) (shardann.PartitionRequest, error) {
	req := shardann.PartitionRequest{
		Points: args[0],
		Output: args[1],
	}

	k, err := strconv.Atoi(args[2])
	if err != nil {
		return req, fmt.Errorf("num-shards %q: %w", args[2], err)
	}
	if k <= 0 {
		return req, fmt.Errorf("%w: %d", shardann.ErrInvalidShardCount, k)
	}
	req.Shards = k

	if req.Method, err = partition.ParseMethod(args[3]); err != nil {
		return req, err
	}

	switch args[4] {
	case "default":
	case "strong":
		req.Strong = true
	default:
		return req, fmt.Errorf("%w: %q", shardann.ErrUnknownBalance, args[4])
	}

	if len(args) == 6 {
		o, err := strconv.ParseFloat(args[5], 64)
		if err != nil {
			return req, fmt.Errorf("overlap %q: %w", args[5], err)
		}
		if o < 0 || o > 1 {
			return req, fmt.Errorf("%w: %v", partition.ErrInvalidOverlap, o)
		}
		req.Overlap = o
		req.OverlapLabel = args[5]
	}
	return req, nil
}

func methodList() string {
	var s string
	for i, m := range partition.Methods() {
		if i > 0 {
			s += ", "
		}
		s += m.String()
	}
	return s
}
