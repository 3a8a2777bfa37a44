// Package config holds the run configuration shared by the partition and
// query-attribution commands.
//
// A Config starts from Default, is overlaid with a YAML file, then with
// SHARDANN_* environment variables, and is finally validated. Command line
// flags are applied by the caller on top of the loaded value.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/shardann/distance"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete run configuration.
type Config struct {
	// Seed is the base seed of every random choice.
	Seed int64 `yaml:"seed" json:"seed"`

	Partition PartitionConfig `yaml:"partition" json:"partition"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Routing   RoutingConfig   `yaml:"routing" json:"routing"`
	Resources ResourceConfig  `yaml:"resources" json:"resources"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Mirror    MirrorConfig    `yaml:"mirror" json:"mirror"`
}

// PartitionConfig configures the partition strategies.
type PartitionConfig struct {
	Epsilon              float64 `yaml:"epsilon" json:"epsilon"`
	KMeansIterations     int     `yaml:"kmeans_iterations" json:"kmeans_iterations"`
	GraphNeighbors       int     `yaml:"graph_neighbors" json:"graph_neighbors"`
	MaxReplicas          int     `yaml:"max_replicas" json:"max_replicas"`
	Closure              float64 `yaml:"closure" json:"closure"`
	PyramidSampleFactor  int     `yaml:"pyramid_sample_factor" json:"pyramid_sample_factor"`
	PyramidCentresFactor int     `yaml:"pyramid_centres_factor" json:"pyramid_centres_factor"`
	OurPyramidFraction   float64 `yaml:"our_pyramid_fraction" json:"our_pyramid_fraction"`
}

// IndexConfig configures the per-shard HNSW build.
type IndexConfig struct {
	M                int `yaml:"m" json:"m"`
	EFConstruction   int `yaml:"ef_construction" json:"ef_construction"`
	SequentialPrefix int `yaml:"sequential_prefix" json:"sequential_prefix"`
	ChunkSize        int `yaml:"chunk_size" json:"chunk_size"`

	// Metric ranks shard search hits and the ground truth: "l2" or "dot".
	// Partitioning and routing are always L2.
	Metric string `yaml:"metric" json:"metric"`
}

// SearchConfig configures the effort sweep.
type SearchConfig struct {
	Efforts []int `yaml:"efforts" json:"efforts"`

	// Compression selects the codec of the .searches and .routes files:
	// "none", "zst" or "lz4".
	Compression string `yaml:"compression" json:"compression"`
}

// RoutingConfig configures the routing engine.
type RoutingConfig struct {
	// BudgetDivisor sets the routing point budget to n / BudgetDivisor.
	// Zero uses the requested shard count.
	BudgetDivisor int `yaml:"budget_divisor" json:"budget_divisor"`

	// MaxProbes caps the probe counts. Zero means all shards.
	MaxProbes int `yaml:"max_probes" json:"max_probes"`

	KMeansIterations int  `yaml:"kmeans_iterations" json:"kmeans_iterations"`
	HNSWNeighbors    int  `yaml:"hnsw_neighbors" json:"hnsw_neighbors"`
	HNSWEF           int  `yaml:"hnsw_ef" json:"hnsw_ef"`
	Oracle           bool `yaml:"oracle" json:"oracle"`
}

// ResourceConfig configures the worker and IO policy.
type ResourceConfig struct {
	// Workers is the total worker budget. Zero uses the CPU affinity count.
	Workers             int   `yaml:"workers" json:"workers"`
	ShardParallelism    int   `yaml:"shard_parallelism" json:"shard_parallelism"`
	MaxQueryParallelism int   `yaml:"max_query_parallelism" json:"max_query_parallelism"`
	IOLimitBytesPerSec  int64 `yaml:"io_limit_bytes_per_sec" json:"io_limit_bytes_per_sec"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text, json
}

// MirrorConfig selects where run artifacts are copied after a run.
type MirrorConfig struct {
	// Backend is "", "local", "s3" or "minio". Empty disables mirroring.
	Backend string `yaml:"backend" json:"backend"`

	Dir       string `yaml:"dir" json:"dir"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	Region    string `yaml:"region" json:"region"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"-"`
	Secure    bool   `yaml:"secure" json:"secure"`
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		Seed: 555,
		Partition: PartitionConfig{
			Epsilon:              0.05,
			KMeansIterations:     20,
			GraphNeighbors:       10,
			MaxReplicas:          8,
			Closure:              1.0,
			PyramidSampleFactor:  100,
			PyramidCentresFactor: 20,
			OurPyramidFraction:   0.02,
		},
		Index: IndexConfig{
			M:                32,
			EFConstruction:   200,
			SequentialPrefix: 2048,
			ChunkSize:        512,
			Metric:           "l2",
		},
		Search: SearchConfig{
			Efforts:     []int{50, 80, 100, 150, 200, 250, 300, 400, 500},
			Compression: "none",
		},
		Routing: RoutingConfig{
			KMeansIterations: 20,
			HNSWNeighbors:    100,
			HNSWEF:           200,
			Oracle:           true,
		},
		Resources: ResourceConfig{
			ShardParallelism:    1,
			MaxQueryParallelism: 32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load returns Default overlaid with the YAML file at path (skipped when
// path is empty) and the environment, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.Decode(f)
}

// Decode overlays YAML read from r onto c. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Write encodes c as YAML.
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

func (c *Config) loadEnv() error {
	if v := os.Getenv("SHARDANN_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SHARDANN_SEED: %w", err)
		}
		c.Seed = seed
	}
	if v := os.Getenv("SHARDANN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHARDANN_WORKERS: %w", err)
		}
		c.Resources.Workers = n
	}
	if v := os.Getenv("SHARDANN_INDEX_METRIC"); v != "" {
		c.Index.Metric = v
	}
	if v := os.Getenv("SHARDANN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SHARDANN_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SHARDANN_MIRROR_BACKEND"); v != "" {
		c.Mirror.Backend = v
	}
	if v := os.Getenv("SHARDANN_MIRROR_BUCKET"); v != "" {
		c.Mirror.Bucket = v
	}
	if v := os.Getenv("SHARDANN_MIRROR_ENDPOINT"); v != "" {
		c.Mirror.Endpoint = v
	}
	if v := os.Getenv("SHARDANN_MIRROR_ACCESS_KEY"); v != "" {
		c.Mirror.AccessKey = v
	}
	if v := os.Getenv("SHARDANN_MIRROR_SECRET_KEY"); v != "" {
		c.Mirror.SecretKey = v
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.Partition.Epsilon >= 0, "partition.epsilon must be non-negative, got %v", c.Partition.Epsilon)
	check(c.Partition.KMeansIterations > 0, "partition.kmeans_iterations must be positive")
	check(c.Partition.GraphNeighbors > 0, "partition.graph_neighbors must be positive")
	check(c.Partition.MaxReplicas > 0, "partition.max_replicas must be positive")
	check(c.Partition.Closure >= 0, "partition.closure must be non-negative")
	check(c.Partition.PyramidSampleFactor > 0 && c.Partition.PyramidCentresFactor > 0, "partition.pyramid factors must be positive")
	check(c.Partition.OurPyramidFraction > 0 && c.Partition.OurPyramidFraction <= 1, "partition.our_pyramid_fraction must be in (0, 1]")

	check(c.Index.M >= 2, "index.m must be at least 2")
	check(c.Index.EFConstruction > 0, "index.ef_construction must be positive")
	check(c.Index.SequentialPrefix >= 0, "index.sequential_prefix must be non-negative")
	check(c.Index.ChunkSize > 0, "index.chunk_size must be positive")
	if _, err := distance.ParseMetric(c.Index.Metric); err != nil {
		check(false, "index.metric %q", c.Index.Metric)
	}

	check(len(c.Search.Efforts) > 0, "search.efforts must not be empty")
	check(!slices.ContainsFunc(c.Search.Efforts, func(e int) bool { return e <= 0 }), "search.efforts must be positive")
	switch strings.ToLower(c.Search.Compression) {
	case "", "none", "zst", "zstd", "lz4":
	default:
		check(false, "search.compression %q", c.Search.Compression)
	}

	check(c.Routing.BudgetDivisor >= 0, "routing.budget_divisor must be non-negative")
	check(c.Routing.MaxProbes >= 0, "routing.max_probes must be non-negative")
	check(c.Routing.KMeansIterations > 0, "routing.kmeans_iterations must be positive")
	check(c.Routing.HNSWNeighbors > 0 && c.Routing.HNSWEF > 0, "routing.hnsw_neighbors and routing.hnsw_ef must be positive")

	check(c.Resources.Workers >= 0, "resources.workers must be non-negative")
	check(c.Resources.ShardParallelism >= 0, "resources.shard_parallelism must be non-negative")
	check(c.Resources.MaxQueryParallelism >= 0, "resources.max_query_parallelism must be non-negative")
	check(c.Resources.IOLimitBytesPerSec >= 0, "resources.io_limit_bytes_per_sec must be non-negative")

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		check(false, "logging.level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		check(false, "logging.format %q", c.Logging.Format)
	}

	switch c.Mirror.Backend {
	case "":
	case "local":
		check(c.Mirror.Dir != "", "mirror.dir is required for the local backend")
	case "s3", "minio":
		check(c.Mirror.Bucket != "", "mirror.bucket is required for the %s backend", c.Mirror.Backend)
		if c.Mirror.Backend == "minio" {
			check(c.Mirror.Endpoint != "", "mirror.endpoint is required for the minio backend")
		}
	default:
		check(false, "mirror.backend %q", c.Mirror.Backend)
	}

	return errors.Join(errs...)
}

// IndexMetric returns the parsed index metric. Call after Validate.
func (c *Config) IndexMetric() distance.Metric {
	m, _ := distance.ParseMetric(c.Index.Metric)
	return m
}

// CompressionSuffix returns the file suffix for the configured codec.
func (c *Config) CompressionSuffix() string {
	switch strings.ToLower(c.Search.Compression) {
	case "zst", "zstd":
		return ".zst"
	case "lz4":
		return ".lz4"
	default:
		return ""
	}
}
