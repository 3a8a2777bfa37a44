// Package kmeans implements seeded Lloyd k-means and its capacity-constrained
// (balanced) variant.
//
// Used by the partitioning strategies to cluster points and by the routers to
// pick routing points per shard.
package kmeans
