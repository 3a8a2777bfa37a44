// Package testutil provides seeded data generators for tests.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Point Sets
//
//	rng := testutil.NewRNG(seed)
//	ps := rng.UniformPoints(1000, 16)          // uniform [0, 1)
//	ps = rng.ClusteredPoints(1000, 16, 8, 0.05) // Gaussian blobs
//
// # Recall
//
//	recall := testutil.ComputeRecall(exact, approx)
package testutil
