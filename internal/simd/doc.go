// Package simd holds the float32 distance kernels behind runtime CPU dispatch.
//
// Kernels are plain function pointers chosen once at init from the detected
// instruction set. The active set can be pinned with the SHARDANN_SIMD
// environment variable (generic, neon, sve2, avx2, avx512); an override the
// CPU cannot run is ignored.
//
//	┌─────────────┐   init   ┌──────────────┐
//	│ x/sys/cpu   │ ───────► │ selectKernels│
//	└─────────────┘          └──────┬───────┘
//	                                │
//	          ┌─────────────────────┼─────────────────────┐
//	          ▼                     ▼                     ▼
//	     SquaredL2 / Dot    SquaredL2Batch / DotBatch   ScaleInPlace
//
// Every kernel assumes equal lengths; callers check dimensions.
package simd
