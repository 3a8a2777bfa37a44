// Command query-attribution evaluates routing and per-shard search effort
// over a partitioned point set and writes the recall/latency tradeoff.
//
//	query-attribution <input-points> <queries> <ground-truth> <num-neighbors> <partition-file> <output> <method-label> <requested-num-shards>
package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hupe1980/shardann"
	"github.com/hupe1980/shardann/internal/cli"
)

func main() {
	cli.Main(newRootCmd())
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query-attribution <input-points> <queries> <ground-truth> <num-neighbors> <partition-file> <output> <method-label> <requested-num-shards>",
		Short: "Evaluate routing and shard search over a partition",
		Long: `query-attribution routes every query with each routing strategy, sweeps
the search effort of one HNSW index per shard and combines both into a
recall/latency report at <output>. Routes and searches are kept in
<output>.routes and <output>.searches.

A missing ground-truth file is computed by brute force.`,
		Args:          cobra.ExactArgs(8),
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

			res, err := shardann.RunQueryAttribution(cmd.Context(), req, cfg, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows\n", req.Output, len(res.Report.Rows))
			return nil
		},
	}
	cli.AddFlags(cmd)
	return cmd
}

func parseArgs(args []string) (shardann.AttributionRequest, error) {
	req := shardann.AttributionRequest{
		Points:        args[0],
		Queries:       args[1],
		GroundTruth:   args[2],
		PartitionFile: args[4],
		Output:        args[5],
		Method:        args[6],
	}

	k, err := strconv.Atoi(args[3])
	if err != nil {
		return req, fmt.Errorf("num-neighbors %q: %w", args[3], err)
	}
	if k <= 0 {
		return req, fmt.Errorf("%w: %d", shardann.ErrInvalidK, k)
	}
	req.K = k

	shards, err := strconv.Atoi(args[7])
	if err != nil {
		return req, fmt.Errorf("requested-num-shards %q: %w", args[7], err)
	}
	if shards <= 0 {
		return req, fmt.Errorf("%w: %d", shardann.ErrInvalidShardCount, shards)
	}
	req.RequestedShards = shards
	return req, nil
}
