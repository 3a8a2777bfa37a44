package shardann

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/hupe1980/shardann/combine"
	"github.com/hupe1980/shardann/config"
	"github.com/hupe1980/shardann/groundtruth"
	"github.com/hupe1980/shardann/internal/resource"
	"github.com/hupe1980/shardann/partition"
	"github.com/hupe1980/shardann/pointset"
	"github.com/hupe1980/shardann/routing"
	"github.com/hupe1980/shardann/shardsearch"
)

// ReportRecallTarget is the recall the summary log reports the cheapest
// configurations for.
const ReportRecallTarget = 0.9

// PartitionRequest describes one partition run.
type PartitionRequest struct {
	// Points is the input point file (.fbin, .u8bin or .i8bin).
	Points string

	// Output is the output prefix.
	Output string

	Shards int
	Method partition.Method
	Strong bool

	// Overlap is the replication fraction of overlapping methods.
	Overlap float64

	// OverlapLabel is the overlap as given on the command line. It is used
	// verbatim in the partition file name. Empty means no overlap suffix.
	OverlapLabel string
}

// PartitionFile returns the path of the binary partition.
func (r PartitionRequest) PartitionFile() string {
	path := r.Output + ".dat"
	if r.OverlapLabel != "" {
		path += ".o=" + r.OverlapLabel
	}
	return path
}

// CentroidsFile returns the path of the centroid point file.
func (r PartitionRequest) CentroidsFile() string {
	return r.Output + "_centroids.dat"
}

// PartitionResult summarizes a partition run.
type PartitionResult struct {
	PartitionFile string
	NumShards     int
	Sizes         []int
	Overlap       *partition.OverlapStats

	// Files lists every artifact written.
	Files []string
}

// NewController builds the worker policy of cfg.
func NewController(cfg *config.Config) *resource.Controller {
	return resource.NewController(resource.Config{
		Workers:             cfg.Resources.Workers,
		ShardParallelism:    cfg.Resources.ShardParallelism,
		MaxQueryParallelism: cfg.Resources.MaxQueryParallelism,
		IOLimitBytesPerSec:  cfg.Resources.IOLimitBytesPerSec,
	})
}

// RunPartition partitions the points of req and writes the artifacts.
func RunPartition(ctx context.Context, req PartitionRequest, cfg *config.Config, logger *Logger) (*PartitionResult, error) {
	if logger == nil {
		logger = NoopLogger()
	}
	if req.Shards <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShardCount, req.Shards)
	}
	logger = logger.WithMethod(req.Method.String()).WithShards(req.Shards)
	ctrl := NewController(cfg)

	if req.Method == partition.Random {
		return runRandomPartition(ctx, req, cfg, ctrl, logger)
	}

	start := time.Now()
	points, err := pointset.ReadFile(req.Points)
	if err != nil {
		return nil, stageError("read points", req.Points, err)
	}
	logger.LogLoaded(ctx, "points", req.Points, points.Len(), points.Dim())

	strategy, err := partition.New(req.Method, func(o *partition.Options) {
		o.Epsilon = cfg.Partition.Epsilon
		o.Overlap = req.Overlap
		o.Seed = cfg.Seed
		o.Strong = req.Strong
		o.Workers = ctrl.Workers()
		o.KMeansIterations = cfg.Partition.KMeansIterations
		o.GraphNeighbors = cfg.Partition.GraphNeighbors
		o.MaxReplicas = cfg.Partition.MaxReplicas
		o.Closure = cfg.Partition.Closure
		o.PyramidSampleFactor = cfg.Partition.PyramidSampleFactor
		o.PyramidCentresFactor = cfg.Partition.PyramidCentresFactor
		o.OurPyramidFraction = cfg.Partition.OurPyramidFraction
		o.Logger = logger.Logger
	})
	if err != nil {
		return nil, err
	}

	res, err := strategy.Partition(ctx, points, req.Shards)
	logger.LogStage(ctx, "partition", start, err)
	if err != nil {
		return nil, stageError("partition", "", err)
	}

	out := &PartitionResult{
		PartitionFile: req.PartitionFile(),
		NumShards:     res.NumShards(),
		Sizes:         res.Clusters.Sizes(),
		Overlap:       res.Overlap,
	}
	if res.Overlap != nil {
		logger.Info("Overlap assigned",
			"requested", res.Overlap.Requested,
			"realized", res.Overlap.Realized,
		)
	}

	if err := out.write(ctx, req, res, logger); err != nil {
		return nil, err
	}

	if err := mirror(ctx, cfg, ctrl, logger, out.Files); err != nil {
		return nil, err
	}
	return out, nil
}

func runRandomPartition(ctx context.Context, req PartitionRequest, cfg *config.Config, ctrl *resource.Controller, logger *Logger) (*PartitionResult, error) {
	n, _, err := pointset.ReadHeader(req.Points)
	if err != nil {
		return nil, stageError("read points", req.Points, err)
	}
	part := partition.RandomPartition(n, req.Shards, cfg.Seed)
	res := &partition.Result{Partition: part, Clusters: partition.FromPartition(part, req.Shards)}

	out := &PartitionResult{
		PartitionFile: req.PartitionFile(),
		NumShards:     req.Shards,
		Sizes:         res.Clusters.Sizes(),
	}
	logger.Info("Partitioned", "points", n, "imbalance", partition.Imbalance(out.Sizes, n))

	if err := out.write(ctx, req, res, logger); err != nil {
		return nil, err
	}
	if err := mirror(ctx, cfg, ctrl, logger, out.Files); err != nil {
		return nil, err
	}
	return out, nil
}

func (out *PartitionResult) write(ctx context.Context, req PartitionRequest, res *partition.Result, logger *Logger) error {
	emit := func(path string, fn func(w io.Writer) error) error {
		err := partition.WriteFile(path, func(w io.Writer) error {
			bw := bufio.NewWriterSize(w, 1<<20)
			if err := fn(bw); err != nil {
				return err
			}
			return bw.Flush()
		})
		if err != nil {
			return stageError("write", path, err)
		}
		logger.LogWritten(ctx, path)
		out.Files = append(out.Files, path)
		return nil
	}

	partFile := req.PartitionFile()
	if err := emit(partFile, func(w io.Writer) error { return partition.WriteBinary(w, res.Partition) }); err != nil {
		return err
	}
	if err := emit(partFile+partition.MetisSuffix, func(w io.Writer) error { return partition.WriteMetis(w, res.Partition) }); err != nil {
		return err
	}
	if req.Method.Overlapping() {
		if err := emit(partFile+partition.ClustersSuffix, func(w io.Writer) error { return partition.WriteClusters(w, res.Clusters) }); err != nil {
			return err
		}
	}
	if res.Centroids != nil {
		path := req.CentroidsFile()
		if err := pointset.WriteFile(path, res.Centroids); err != nil {
			return stageError("write", path, err)
		}
		logger.LogWritten(ctx, path)
		out.Files = append(out.Files, path)
	}
	if res.RoutingIndex != nil {
		path := partFile + req.Method.RoutingIndexSuffix()
		if err := partition.WriteRoutingIndexFile(path, res.RoutingIndex); err != nil {
			return stageError("write", path, err)
		}
		logger.LogWritten(ctx, path)
		out.Files = append(out.Files, path)
	}
	return nil
}

// AttributionRequest describes one query-attribution run.
type AttributionRequest struct {
	Points      string
	Queries     string
	GroundTruth string

	// K is the neighbour count recall is measured at.
	K int

	// PartitionFile is the binary or METIS partition. A sibling
	// <PartitionFile>.clusters takes precedence when present.
	PartitionFile string

	// Output is the report path. Routes and searches are written next to it.
	Output string

	// Method labels the partitioning method. Pyramid and OurPyramid also
	// select their routing index side file.
	Method string

	RequestedShards int
}

// AttributionResult summarizes a query-attribution run.
type AttributionResult struct {
	Report *combine.Report
	Files  []string
}

// RunQueryAttribution routes the queries, sweeps the shard search efforts
// and writes the combined tradeoff report.
func RunQueryAttribution(ctx context.Context, req AttributionRequest, cfg *config.Config, logger *Logger) (*AttributionResult, error) {
	if logger == nil {
		logger = NoopLogger()
	}
	if req.K <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidK, req.K)
	}
	if req.RequestedShards <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShardCount, req.RequestedShards)
	}
	logger = logger.WithMethod(req.Method)
	ctrl := NewController(cfg)

	points, err := pointset.ReadFile(req.Points)
	if err != nil {
		return nil, stageError("read points", req.Points, err)
	}
	logger.LogLoaded(ctx, "points", req.Points, points.Len(), points.Dim())

	queries, err := pointset.ReadFile(req.Queries)
	if err != nil {
		return nil, stageError("read queries", req.Queries, err)
	}
	logger.LogLoaded(ctx, "queries", req.Queries, queries.Len(), queries.Dim())
	if points.Dim() != queries.Dim() {
		return nil, &pointset.DimensionMismatchError{Expected: points.Dim(), Actual: queries.Dim()}
	}

	gt, err := loadGroundTruth(ctx, req, cfg, points, queries, ctrl, logger)
	if err != nil {
		return nil, err
	}
	distToKth, err := groundtruth.DistanceToKth(gt, req.K, points, queries, withMetric(cfg))
	if err != nil {
		return nil, stageError("ground truth", req.GroundTruth, err)
	}

	clusters, err := loadClusters(req.PartitionFile, points.Len())
	if err != nil {
		return nil, err
	}
	numShards := len(clusters)
	logger = logger.WithShards(numShards)

	var files []string

	// Routing.
	start := time.Now()
	engine := routing.New(func(o *routing.Options) {
		o.Budget = routingBudget(points.Len(), req.RequestedShards, cfg.Routing.BudgetDivisor)
		o.MaxProbes = cfg.Routing.MaxProbes
		o.Seed = cfg.Seed
		o.KMeansIterations = cfg.Routing.KMeansIterations
		o.HNSW.Neighbors = cfg.Routing.HNSWNeighbors
		o.HNSW.EF = cfg.Routing.HNSWEF
		o.HNSW.M = cfg.Index.M
		o.HNSW.EFConstruction = cfg.Index.EFConstruction
		o.Oracle = cfg.Routing.Oracle
		o.Controller = ctrl
		o.Logger = logger.Logger
		o.RoutingIndex, o.RoutingIndexName = loadRoutingIndex(req, logger)
	})
	routes, err := engine.Iterate(ctx, points, queries, clusters, gt, req.K)
	logger.LogStage(ctx, "routing", start, err)
	if err != nil {
		return nil, stageError("routing", "", err)
	}
	routesFile := req.Output + ".routes" + cfg.CompressionSuffix()
	if err := routing.WriteRoutesFile(routesFile, routes); err != nil {
		return nil, stageError("write", routesFile, err)
	}
	logger.LogWritten(ctx, routesFile)
	files = append(files, routesFile)

	// Shard searches.
	start = time.Now()
	evaluator := shardsearch.New(func(o *shardsearch.Options) {
		o.Efforts = cfg.Search.Efforts
		o.Index = shardsearch.IndexParams{
			M:                cfg.Index.M,
			EFConstruction:   cfg.Index.EFConstruction,
			SequentialPrefix: cfg.Index.SequentialPrefix,
			ChunkSize:        cfg.Index.ChunkSize,
			Seed:             cfg.Seed,
			Metric:           cfg.IndexMetric(),
		}
		o.Controller = ctrl
		o.Logger = logger.Logger
	})
	searches, err := evaluator.Run(ctx, points, queries, clusters, distToKth, req.K)
	logger.LogStage(ctx, "shard searches", start, err)
	if err != nil {
		return nil, stageError("shard searches", "", err)
	}
	searchesFile := req.Output + ".searches" + cfg.CompressionSuffix()
	if err := shardsearch.WriteResultsFile(searchesFile, searches); err != nil {
		return nil, stageError("write", searchesFile, err)
	}
	logger.LogWritten(ctx, searchesFile)
	files = append(files, searchesFile)

	// Combination.
	start = time.Now()
	report, err := combine.Combine(ctx, routes, searches, combine.Params{
		K:               req.K,
		NumQueries:      queries.Len(),
		NumShards:       numShards,
		RequestedShards: req.RequestedShards,
		Method:          req.Method,
		Workers:         ctrl.Workers(),
	})
	logger.LogStage(ctx, "combine", start, err)
	if err != nil {
		return nil, stageError("combine", "", err)
	}
	if err := writeReport(req.Output, report); err != nil {
		return nil, stageError("write", req.Output, err)
	}
	logger.LogWritten(ctx, req.Output)
	files = append(files, req.Output)

	for _, row := range report.Best(ReportRecallTarget) {
		logger.Info("Cheapest configuration",
			"target_recall", ReportRecallTarget,
			"strategy", row.Strategy,
			"probes", row.NumProbes,
			"effort", row.Effort,
			"recall", row.Recall,
			"latency", row.TotalLatency(),
		)
	}

	if err := mirror(ctx, cfg, ctrl, logger, files); err != nil {
		return nil, err
	}
	return &AttributionResult{Report: report, Files: files}, nil
}

// routingBudget is n/divisor routing points, where divisor defaults to the
// requested shard count.
func routingBudget(n, requestedShards, divisor int) int {
	if divisor <= 0 {
		divisor = requestedShards
	}
	return n / divisor
}

func withMetric(cfg *config.Config) func(o *groundtruth.Options) {
	return func(o *groundtruth.Options) { o.Metric = cfg.IndexMetric() }
}

func loadGroundTruth(ctx context.Context, req AttributionRequest, cfg *config.Config, points, queries *pointset.PointSet, ctrl *resource.Controller, logger *Logger) (groundtruth.GroundTruth, error) {
	gt, err := groundtruth.ReadFile(req.GroundTruth)
	if err == nil {
		if len(gt) != queries.Len() {
			return nil, stageError("ground truth", req.GroundTruth,
				fmt.Errorf("%w: %d rows for %d queries", groundtruth.ErrMalformed, len(gt), queries.Len()))
		}
		if err := gt.Validate(points.Len()); err != nil {
			return nil, stageError("ground truth", req.GroundTruth, err)
		}
		return gt, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, stageError("read ground truth", req.GroundTruth, err)
	}

	logger.Info("Ground truth file not found, computing by brute force", "path", req.GroundTruth)
	start := time.Now()
	gt, err = groundtruth.Compute(ctx, points, queries, req.K, ctrl.Workers(), withMetric(cfg))
	logger.LogStage(ctx, "ground truth", start, err)
	if err != nil {
		return nil, stageError("ground truth", "", err)
	}
	return gt, nil
}

// loadClusters reads the shard memberships of n points. An overlapping
// partition is read from its clusters side file and may list a point in
// several shards; a plain partition must cover every point exactly once.
func loadClusters(partFile string, n int) (partition.Clusters, error) {
	path := partFile
	overlapping := false
	if _, err := os.Stat(partFile + partition.ClustersSuffix); err == nil {
		path = partFile + partition.ClustersSuffix
		overlapping = true
	}
	clusters, err := partition.ReadAssignment(path)
	if err != nil {
		return nil, stageError("read partition", path, err)
	}
	if overlapping {
		_, err = clusters.CheckOverlap(n)
	} else {
		err = clusters.CheckCoverage(n)
	}
	if err != nil {
		return nil, stageError("read partition", path, err)
	}
	return clusters, nil
}

// loadRoutingIndex returns the persisted routing index of Pyramid and
// OurPyramid partitions. A missing side file disables that router.
func loadRoutingIndex(req AttributionRequest, logger *Logger) (*partition.RoutingIndex, string) {
	m, err := partition.ParseMethod(req.Method)
	if err != nil || m.RoutingIndexSuffix() == "" {
		return nil, ""
	}
	path := req.PartitionFile + m.RoutingIndexSuffix()
	ri, err := partition.ReadRoutingIndexFile(path)
	if err != nil {
		logger.Warn("Routing index unavailable", "path", path, "error", err)
		return nil, ""
	}
	return ri, m.String()
}

func writeReport(path string, report *combine.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := report.WriteCSV(w); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// FormatOverlap renders an overlap fraction the way it appears in
// partition file names when no command line label is available.
func FormatOverlap(o float64) string {
	return strconv.FormatFloat(o, 'g', -1, 64)
}
