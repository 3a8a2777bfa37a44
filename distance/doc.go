// Package distance provides the float32 vector metrics used by the partitioners,
// the shard indexes and the routers. The arithmetic runs on the CPU-dispatched
// kernels of internal/simd.
//
// # Supported Metrics
//
//   - MetricL2: Squared Euclidean distance (default)
//   - MetricDot: Negated inner product, so that smaller is closer
//
// Partitioning and routing always use MetricL2. The shard indexes and the
// ground truth follow the configured index metric.
//
// # Usage
//
//	d := distance.SquaredL2(a, b)
//	fn, _ := distance.Provider(distance.MetricDot)
//	batch, _ := distance.BatchProvider(distance.MetricL2)
package distance
