// Package groundtruth loads, stores and computes exact nearest-neighbour lists.
//
// The file layout is little-endian: uint32 nq, uint32 k, nq*k uint32 ids,
// nq*k float32 distances. Rows are sorted ascending by distance.
package groundtruth
