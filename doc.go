// Package shardann partitions a point set into shards and evaluates sharded
// approximate nearest neighbour search over it.
//
// A run has two stages, each exposed as one function and one command:
//
//	// partition: points -> shard assignment (+ centroids, routing index)
//	res, _ := shardann.RunPartition(ctx, shardann.PartitionRequest{
//		Points:  "base.fbin",
//		Output:  "out/part",
//		Shards:  16,
//		Method:  partition.OBKM,
//		Overlap: 0.2,
//	}, cfg, logger)
//
//	// query attribution: routing + per-shard effort sweep -> tradeoff CSV
//	rep, _ := shardann.RunQueryAttribution(ctx, shardann.AttributionRequest{
//		Points:          "base.fbin",
//		Queries:         "query.fbin",
//		GroundTruth:     "gt.bin",
//		K:               10,
//		PartitionFile:   res.PartitionFile,
//		Output:          "out/report.csv",
//		Method:          "OBKM",
//		RequestedShards: 16,
//	}, cfg, logger)
//
// # Artifacts
//
// RunPartition writes the binary partition (<prefix>.dat, or
// <prefix>.dat.o=<overlap> for overlapping methods), its METIS text form
// (.metis), the shard membership (.clusters), the centroids of
// centroid-based methods (<prefix>_centroids.dat) and, for Pyramid and
// OurPyramid, the routing index next to the partition file.
//
// RunQueryAttribution writes the routes (<output>.routes), the per-shard
// search results (<output>.searches) and the tradeoff report (<output>).
// Both files may be compressed with zstd or lz4; the codec is chosen by the
// configured suffix.
//
// # Mirroring
//
// When cfg.Mirror selects a backend, every artifact of a run is copied to a
// local directory, S3 or MinIO after the run completes.
package shardann
