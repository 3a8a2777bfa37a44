// Package topk provides a bounded max-heap that keeps the k closest
// candidates seen so far.
package topk

import (
	"cmp"
	"slices"
)

// Item is a candidate neighbour.
type Item struct {
	Distance float32
	ID       uint32
}

// less orders by distance, then by id so that results are deterministic.
func less(a, b Item) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

// Compare is the ascending order used by Take.
func Compare(a, b Item) int {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// TopK accumulates at most k items. The root of the heap is the worst kept item.
// Not safe for concurrent use.
type TopK struct {
	k     int
	items []Item
}

// New returns an accumulator for k items. k <= 0 keeps nothing.
func New(k int) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, items: make([]Item, 0, k)}
}

// Len returns the number of kept items.
func (t *TopK) Len() int { return len(t.items) }

// Full reports whether k items are held.
func (t *TopK) Full() bool { return len(t.items) >= t.k }

// Worst returns the largest kept item. ok is false until k items are held.
func (t *TopK) Worst() (Item, bool) {
	if !t.Full() || t.k == 0 {
		return Item{}, false
	}
	return t.items[0], true
}

// Add offers a candidate and reports whether it was kept.
func (t *TopK) Add(distance float32, id uint32) bool {
	it := Item{Distance: distance, ID: id}
	if t.k == 0 {
		return false
	}
	if len(t.items) < t.k {
		t.items = append(t.items, it)
		t.up(len(t.items) - 1)
		return true
	}
	if !less(it, t.items[0]) {
		return false
	}
	t.items[0] = it
	t.down(0)
	return true
}

// Take returns the kept items sorted ascending and resets the accumulator.
func (t *TopK) Take() []Item {
	out := t.items
	t.items = make([]Item, 0, t.k)
	slices.SortFunc(out, Compare)
	return out
}

func (t *TopK) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !less(t.items[parent], t.items[i]) {
			return
		}
		t.items[parent], t.items[i] = t.items[i], t.items[parent]
		i = parent
	}
}

func (t *TopK) down(i int) {
	n := len(t.items)
	for {
		largest := i
		l, r := 2*i+1, 2*i+2
		if l < n && less(t.items[largest], t.items[l]) {
			largest = l
		}
		if r < n && less(t.items[largest], t.items[r]) {
			largest = r
		}
		if largest == i {
			return
		}
		t.items[i], t.items[largest] = t.items[largest], t.items[i]
		i = largest
	}
}
