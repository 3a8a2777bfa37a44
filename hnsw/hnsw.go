package hnsw

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/shardann/distance"
	"github.com/hupe1980/shardann/internal/topk"
)

var (
	// ErrIDOutOfRange is returned when an id does not fit the preallocated capacity.
	ErrIDOutOfRange = errors.New("hnsw: id out of range")

	// ErrDuplicateID is returned when an id is inserted twice.
	ErrDuplicateID = errors.New("hnsw: id already inserted")
)

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Neighbor is a search hit carrying the local node id.
type Neighbor = topk.Item

// Node represents a node in the HNSW graph
type Node struct {
	Connections [][]uint32 // Links to other nodes, per layer
	Vector      []float32
	Layer       int // Top layer of the node
	ID          uint32
}

// Options represents the options for configuring HNSW.
type Options struct {
	// M is the number of links established per element and layer during
	// construction. Layer 0 allows 2*M.
	M int

	// EFConstruction is the candidate list size used while inserting.
	EFConstruction int

	// EF is the candidate list size used by KNNSearch.
	EF int

	// Heuristic selects the diversity heuristic for linking (true) or the
	// plain nearest-M rule (false).
	Heuristic bool

	// Seed drives level assignment.
	Seed int64

	// DistanceFunc is the distance between two vectors. Smaller is closer.
	DistanceFunc distance.Func
}

var DefaultOptions = Options{
	M:              32,
	EFConstruction: 200,
	EF:             50,
	Heuristic:      true,
	Seed:           555,
	DistanceFunc:   distance.SquaredL2,
}

// SearchResult is the outcome of one k-NN search.
type SearchResult struct {
	// Neighbors are sorted ascending by distance.
	Neighbors []Neighbor

	// DistanceComputations counts distance evaluations made by the search.
	DistanceComputations int
}

// HNSW represents the Hierarchical Navigable Small World graph
type HNSW struct {
	dimension int
	mmax      int     // Max number of connections per element/per layer
	mmax0     int     // Max for the 0 layer
	ml        float64 // Normalization factor for level generation
	ep        uint32  // Entry point, a node on the top layer
	maxLevel  int

	nodes []*Node
	count int

	opts Options

	mutex sync.RWMutex
}

// New creates an index for up to capacity vectors of the given dimension.
func New(dimension, capacity int, optFns ...func(o *Options)) *HNSW {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.M < 2 {
		// M == 1 would result in division by zero in ml
		opts.M = 2
	}
	if opts.EFConstruction < opts.M {
		opts.EFConstruction = opts.M
	}
	if opts.DistanceFunc == nil {
		opts.DistanceFunc = distance.SquaredL2
	}
	opts.EF = max(opts.EF, 1)

	h := &HNSW{
		dimension: dimension,
		mmax:      opts.M,
		mmax0:     2 * opts.M,
		ml:        1 / math.Log(float64(opts.M)),
		nodes:     make([]*Node, capacity),
		opts:      opts,
	}
	return h
}

// Dimension returns the vector dimension.
func (h *HNSW) Dimension() int { return h.dimension }

// Capacity returns the number of preallocated node slots.
func (h *HNSW) Capacity() int { return len(h.nodes) }

// Len returns the number of inserted nodes.
func (h *HNSW) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// EF returns the search width used by KNNSearch.
func (h *HNSW) EF() int { return h.opts.EF }

// levelFor draws the node level from an exponential distribution keyed by id.
func (h *HNSW) levelFor(id uint32) int {
	x := splitmix64(uint64(h.opts.Seed) ^ (uint64(id)+1)*0x9e3779b97f4a7c15)
	u := (float64(x>>11) + 1) / (1 << 53) // (0, 1]
	return int(math.Floor(-math.Log(u) * h.ml))
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Insert adds v under the local id. Safe for concurrent use.
func (h *HNSW) Insert(id uint32, v []float32) error {
	// Check if dimensions of the input vector match the expected dimension
	if len(v) != h.dimension {
		return &ErrDimensionMismatch{Expected: h.dimension, Actual: len(v)}
	}
	if int(id) >= len(h.nodes) {
		return fmt.Errorf("%w: %d >= %d", ErrIDOutOfRange, id, len(h.nodes))
	}

	// Make a copy of the vector to ensure changes outside this function don't affect the node
	vectorCopy := make([]float32, len(v))
	copy(vectorCopy, v)

	layer := h.levelFor(id)
	node := &Node{
		ID:          id,
		Vector:      vectorCopy,
		Layer:       layer,
		Connections: make([][]uint32, layer+1),
	}

	h.mutex.Lock()
	if h.nodes[id] != nil {
		h.mutex.Unlock()
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	if h.count == 0 {
		h.nodes[id] = node
		h.ep = id
		h.maxLevel = layer
		h.count++
		h.mutex.Unlock()
		return nil
	}
	h.mutex.Unlock()

	// Candidate search under the read lock.
	h.mutex.RLock()
	s := h.newSearch(vectorCopy)
	currObj, currDist := s.greedyDescend(h.nodes[h.ep], layer)
	top := min(layer, h.maxLevel)
	links := make([][]uint32, top+1)
	for level := top; level >= 0; level-- {
		candidates := s.searchLayer(&PriorityQueueItem{Distance: currDist, Node: currObj.ID}, h.opts.EFConstruction, level)
		selected := h.selectNeighbours(candidates, h.mmax)
		ids := make([]uint32, len(selected))
		for i, c := range selected {
			ids[i] = c.ID
		}
		links[level] = ids
		if len(candidates) > 0 {
			currObj, currDist = h.nodes[candidates[0].ID], candidates[0].Distance
		}
	}
	h.mutex.RUnlock()

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.nodes[id] != nil {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	for level, ids := range links {
		node.Connections[level] = ids
	}
	h.nodes[id] = node
	h.count++

	// Link the neighbour nodes to our new node, making it visible
	for level, ids := range links {
		for _, n := range ids {
			h.link(n, id, level)
		}
	}

	if layer > h.maxLevel {
		h.ep = id
		h.maxLevel = layer
	}

	return nil
}

// link adds second to first's adjacency on level and prunes it back to the
// layer's degree bound. Caller holds the write lock.
func (h *HNSW) link(first, second uint32, level int) {
	maxConnections := h.mmax
	// HNSW allows double the connections for the bottom level (0)
	if level == 0 {
		maxConnections = h.mmax0
	}

	node := h.nodes[first]
	if level >= len(node.Connections) {
		return
	}
	node.Connections[level] = append(node.Connections[level], second)

	if len(node.Connections[level]) <= maxConnections {
		return
	}

	candidates := make([]Neighbor, len(node.Connections[level]))
	for i, n := range node.Connections[level] {
		candidates[i] = Neighbor{Distance: h.opts.DistanceFunc(node.Vector, h.nodes[n].Vector), ID: n}
	}
	slices.SortFunc(candidates, topk.Compare)

	selected := h.selectNeighbours(candidates, maxConnections)
	conns := node.Connections[level][:0]
	for _, c := range selected {
		conns = append(conns, c.ID)
	}
	node.Connections[level] = conns
}

// selectNeighbours picks up to m links from candidates sorted ascending.
// The heuristic keeps a candidate only if it is closer to the base than to
// every candidate kept so far, then tops up with the pruned ones.
func (h *HNSW) selectNeighbours(candidates []Neighbor, m int) []Neighbor {
	if len(candidates) <= m {
		return candidates
	}
	if !h.opts.Heuristic {
		return candidates[:m]
	}

	selected := make([]Neighbor, 0, m)
	pruned := make([]Neighbor, 0, len(candidates))

	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		keep := true
		for _, s := range selected {
			if h.opts.DistanceFunc(h.nodes[s.ID].Vector, h.nodes[c.ID].Vector) < c.Distance {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c)
		} else {
			pruned = append(pruned, c)
		}
	}

	for i := 0; len(selected) < m && i < len(pruned); i++ {
		selected = append(selected, pruned[i])
	}

	return selected
}

// KNNSearch returns the k nearest nodes using the current search width.
func (h *HNSW) KNNSearch(q []float32, k int) (SearchResult, error) {
	return h.KNNSearchWithEF(q, k, h.EF())
}

// KNNSearchWithEF returns the k nearest nodes using the given search width.
// The effective width is max(ef, k).
func (h *HNSW) KNNSearchWithEF(q []float32, k, ef int) (SearchResult, error) {
	if len(q) != h.dimension {
		return SearchResult{}, &ErrDimensionMismatch{Expected: h.dimension, Actual: len(q)}
	}
	if k <= 0 {
		return SearchResult{}, nil
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return SearchResult{}, nil
	}

	s := h.newSearch(q)
	currObj, currDist := s.greedyDescend(h.nodes[h.ep], 0)
	candidates := s.searchLayer(&PriorityQueueItem{Distance: currDist, Node: currObj.ID}, max(ef, k), 0)

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	return SearchResult{Neighbors: candidates, DistanceComputations: s.computations}, nil
}

// search carries per-query scratch state. Caller holds at least the read lock.
type search struct {
	h            *HNSW
	q            []float32
	visited      *bitset.BitSet
	computations int
}

func (h *HNSW) newSearch(q []float32) *search {
	return &search{h: h, q: q, visited: bitset.New(uint(len(h.nodes)))}
}

func (s *search) dist(v []float32) float32 {
	s.computations++
	return s.h.opts.DistanceFunc(s.q, v)
}

// greedyDescend walks from entry down to layer floor+1, moving to a closer
// neighbour while one exists.
func (s *search) greedyDescend(entry *Node, floor int) (*Node, float32) {
	currObj := entry
	currDist := s.dist(currObj.Vector)

	for level := s.h.maxLevel; level > floor; level-- {
		changed := true
		for changed {
			changed = false

			if level >= len(currObj.Connections) {
				break
			}
			for _, nodeID := range currObj.Connections[level] {
				newObj := s.h.nodes[nodeID]
				newDist := s.dist(newObj.Vector)

				if newDist < currDist {
					currObj = newObj
					currDist = newDist
					changed = true
				}
			}
		}
	}

	return currObj, currDist
}

// searchLayer runs the best-first beam search on one layer and returns up to
// ef nodes sorted ascending by distance.
func (s *search) searchLayer(ep *PriorityQueueItem, ef int, level int) []Neighbor {
	s.visited.ClearAll()
	s.visited.Set(uint(ep.Node))

	candidates := &PriorityQueue{Order: false}
	heap.Push(candidates, &PriorityQueueItem{Distance: ep.Distance, Node: ep.Node})

	topCandidates := &PriorityQueue{Order: true} // max-heap
	heap.Push(topCandidates, &PriorityQueueItem{Distance: ep.Distance, Node: ep.Node})

	for candidates.Len() > 0 {
		lowerBound := topCandidates.Top().(*PriorityQueueItem).Distance

		candidate, _ := heap.Pop(candidates).(*PriorityQueueItem)
		if candidate.Distance > lowerBound {
			break
		}

		node := s.h.nodes[candidate.Node]
		if len(node.Connections) <= level {
			continue
		}

		for _, n := range node.Connections[level] {
			if s.visited.Test(uint(n)) {
				continue
			}
			s.visited.Set(uint(n))

			d := s.dist(s.h.nodes[n].Vector)
			topDistance := topCandidates.Top().(*PriorityQueueItem).Distance

			// Add the element to topCandidates if size < EF
			if topCandidates.Len() < ef {
				heap.Push(topCandidates, &PriorityQueueItem{Distance: d, Node: n})
				heap.Push(candidates, &PriorityQueueItem{Distance: d, Node: n})
			} else if topDistance > d {
				heap.Pop(topCandidates)
				heap.Push(topCandidates, &PriorityQueueItem{Distance: d, Node: n})
				heap.Push(candidates, &PriorityQueueItem{Distance: d, Node: n})
			}
		}
	}

	out := make([]Neighbor, topCandidates.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item, _ := heap.Pop(topCandidates).(*PriorityQueueItem)
		out[i] = Neighbor{Distance: item.Distance, ID: item.Node}
	}

	return out
}
