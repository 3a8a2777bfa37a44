package partition

import (
	"fmt"
	"strings"
)

// Method enumerates the partitioning strategies.
type Method int

const (
	// GP partitions the k-NN graph of all points.
	GP Method = iota
	// Pyramid partitions the k-NN graph of k-means meta centres and routes
	// each point to the shard of its nearest centre.
	Pyramid
	// KMeans is flat k-means with every cluster above the cap split again,
	// so it may emit more than k shards.
	KMeans
	// BalancedKMeans is capacity-constrained k-means.
	BalancedKMeans
	// FlatKMeans is unconstrained k-means.
	FlatKMeans
	// RKM is hierarchical balanced k-means with exactly k shards.
	RKM
	// ORKM is RKM over extra shards with SPANN overlap.
	ORKM
	// OurPyramid partitions the k-NN graph of a point sample and assigns
	// points by their nearest sample point with room.
	OurPyramid
	// OGP is GP over extra shards with graph-neighbour overlap.
	OGP
	// OGPS is GP over extra shards with SPANN overlap.
	OGPS
	// OKM is KMeans with SPANN overlap.
	OKM
	// OBKM is BalancedKMeans over extra shards with SPANN overlap.
	OBKM
	// Random deals equal-sized shards over a seeded shuffle.
	Random
)

var methodNames = [...]string{
	GP:             "GP",
	Pyramid:        "Pyramid",
	KMeans:         "KMeans",
	BalancedKMeans: "BalancedKMeans",
	FlatKMeans:     "FlatKMeans",
	RKM:            "RKM",
	ORKM:           "ORKM",
	OurPyramid:     "OurPyramid",
	OGP:            "OGP",
	OGPS:           "OGPS",
	OKM:            "OKM",
	OBKM:           "OBKM",
	Random:         "Random",
}

// Methods lists every method in declaration order.
func Methods() []Method {
	out := make([]Method, len(methodNames))
	for i := range out {
		out[i] = Method(i)
	}
	return out
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// Overlapping reports whether the method replicates points.
func (m Method) Overlapping() bool {
	switch m {
	case ORKM, OGP, OGPS, OKM, OBKM:
		return true
	default:
		return false
	}
}

// HasCentroids reports whether the method produces shard centroids.
func (m Method) HasCentroids() bool {
	switch m {
	case KMeans, BalancedKMeans, FlatKMeans, RKM, OBKM:
		return true
	default:
		return false
	}
}

// RoutingIndexSuffix returns the side-file suffix of routing-aware methods.
func (m Method) RoutingIndexSuffix() string {
	switch m {
	case Pyramid:
		return ".pyramid_routing_index"
	case OurPyramid:
		return ".our_pyramid_routing_index"
	default:
		return ""
	}
}

// UnknownMethodError is returned by ParseMethod.
type UnknownMethodError struct {
	Name string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unsupported partitioning method %q, supported: %s", e.Name, strings.Join(methodNames[:], ", "))
}

// ParseMethod resolves a method name. Names are case sensitive.
func ParseMethod(name string) (Method, error) {
	for i, n := range methodNames {
		if n == name {
			return Method(i), nil
		}
	}
	return 0, &UnknownMethodError{Name: name}
}
