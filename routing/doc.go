// Package routing decides which shards a query probes.
//
// A Router ranks all shards for one query and reports the cost of doing so.
// The Engine runs every router over the query workload once and expands each
// ranking into one Config per probe count, so downstream evaluation can
// combine any (router, probes) pair with any shard search effort.
package routing
