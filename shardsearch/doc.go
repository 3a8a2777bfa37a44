// Package shardsearch builds one HNSW index per shard and sweeps every query
// over every shard at each search effort of a menu, keeping only the hits
// that fall within the true k-th neighbour distance.
//
// The sweep output is consumed by package combine together with the
// routing decisions of package routing:
//
//	clusters ──► BuildShardIndex ──► barrier ──► effort 50 … 500
//	                                           │
//	                                           ▼
//	                             Result{Effort, Neighbors[shard][query], Times[shard][query]}
package shardsearch
