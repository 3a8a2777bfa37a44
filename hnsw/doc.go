// Package hnsw implements a Hierarchical Navigable Small World graph used as
// the per-shard ANN index.
//
// Node ids are dense local ids in [0, capacity). Inserts may run concurrently:
// the candidate search of an insert holds a read lock and only the linking
// step takes the write lock. Level assignment is a pure function of the seed
// and the id, so the level structure does not depend on insertion order.
package hnsw
