// Package graphpart partitions undirected graphs into k balanced blocks while
// keeping the edge cut small.
//
// The partitioner runs recursive bisection. Each bisection grows one side from
// a random seed vertex in gain order, repeats that for a number of restarts,
// and polishes the best candidate with boundary refinement. A final k-way
// pass (label propagation under the block weight cap) reduces the cut further
// and repairs any remaining overload.
//
// The block weight cap is max(floor((1+eps)*W/k), ceil(W/k)) where W is the
// total vertex weight.
package graphpart
