// Package resource implements the worker and IO policy of a pipeline run.
//
// The Controller makes the nested fan-out explicit:
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                         Controller                           │
//	├────────────────────┬────────────────────┬────────────────────┤
//	│  Shard slots       │  Query slots       │  IO rate limiter   │
//	│  (outer, sem)      │  (inner, per shard)│  (token bucket)    │
//	├────────────────────┼────────────────────┼────────────────────┤
//	│  AcquireShard      │  QueryParallelism  │  AcquireIO         │
//	│  ReleaseShard      │  ParallelFor       │  RateLimitedReader │
//	└────────────────────┴────────────────────┴────────────────────┘
//
// ShardParallelism() x QueryParallelism() never exceeds Workers().
//
// # Worker count
//
// When Config.Workers is zero the controller uses the number of CPUs in the
// process affinity mask (sched_getaffinity on Linux), so a run pinned with
// taskset or a cgroup cpuset does not oversubscribe.
//
// # Nil Safety
//
// All methods handle a nil Controller: it behaves like a single-worker policy
// with unlimited IO.
package resource
