package hnsw

// PriorityQueueItem is a graph node with its distance to the current query.
type PriorityQueueItem struct {
	Distance float32
	Node     uint32
	index    int
}

// PriorityQueue implements heap.Interface. With Order set it is a max-heap
// (worst candidate on top), otherwise a min-heap. Ties break on the node id so
// that searches are reproducible.
type PriorityQueue struct {
	Order bool
	Items []*PriorityQueueItem
}

func (pq *PriorityQueue) Len() int { return len(pq.Items) }

func (pq *PriorityQueue) Less(i, j int) bool {
	a, b := pq.Items[i], pq.Items[j]
	if a.Distance == b.Distance {
		if pq.Order {
			return a.Node > b.Node
		}
		return a.Node < b.Node
	}
	if pq.Order {
		return a.Distance > b.Distance
	}
	return a.Distance < b.Distance
}

func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
	pq.Items[i].index = i
	pq.Items[j].index = j
}

// Push is called by heap.Push.
func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(*PriorityQueueItem)
	item.index = len(pq.Items)
	pq.Items = append(pq.Items, item)
}

// Pop is called by heap.Pop.
func (pq *PriorityQueue) Pop() any {
	old := pq.Items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	pq.Items = old[:n-1]
	return item
}

// Top returns the root without removing it.
func (pq *PriorityQueue) Top() any {
	if len(pq.Items) == 0 {
		return nil
	}
	return pq.Items[0]
}
