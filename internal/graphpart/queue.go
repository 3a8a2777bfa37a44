package graphpart

import "container/heap"

type gainEntry struct {
	v    uint32
	gain int32
}

// gainQueue is a lazy max-heap on gain, ties to the lower vertex id. Entries
// go stale when a vertex's gain changes or it changes side; pop skips them.
type gainQueue []gainEntry

func (q gainQueue) Len() int { return len(q) }

func (q gainQueue) Less(i, j int) bool {
	if q[i].gain != q[j].gain {
		return q[i].gain > q[j].gain
	}
	return q[i].v < q[j].v
}

func (q gainQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *gainQueue) Push(x any) { *q = append(*q, x.(gainEntry)) }

func (q *gainQueue) Pop() any {
	old := *q
	e := old[len(old)-1]
	*q = old[:len(old)-1]
	return e
}

func (q *gainQueue) push(v uint32, gain int32) {
	heap.Push(q, gainEntry{v: v, gain: gain})
}

func (q *gainQueue) pop(b *bisector) (uint32, bool) {
	for q.Len() > 0 {
		e := heap.Pop(q).(gainEntry)
		if b.side[e.v] == 1 && b.gain[e.v] == e.gain {
			return e.v, true
		}
	}
	return 0, false
}
