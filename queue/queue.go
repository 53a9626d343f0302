// Package queue provides the bounded priority queues used by graph
// searches: a min-heap for expansion frontiers and a max-heap for
// retaining the best k candidates seen so far.
package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// Item is an entry in a priority queue.
type Item struct {
	Node     uint32  // Node is an opaque node identifier.
	Priority float32 // Priority orders the queue (distance, cost, ...).
	Index    int     // Index is maintained by the heap.Interface methods.
}

// PriorityQueue implements heap.Interface over Items.
type PriorityQueue struct {
	Descending bool // Descending makes the queue a max-heap.
	Items      []*Item
}

// NewMin returns an initialized min-heap (smallest priority on top).
func NewMin() *PriorityQueue {
	pq := &PriorityQueue{}
	heap.Init(pq)
	return pq
}

// NewMax returns an initialized max-heap (largest priority on top).
func NewMax() *PriorityQueue {
	pq := &PriorityQueue{Descending: true}
	heap.Init(pq)
	return pq
}

// Len returns the number of queued items.
func (pq *PriorityQueue) Len() int { return len(pq.Items) }

// Less reports whether item i sorts before item j.
func (pq *PriorityQueue) Less(i, j int) bool {
	if pq.Descending {
		return pq.Items[i].Priority > pq.Items[j].Priority
	}
	return pq.Items[i].Priority < pq.Items[j].Priority
}

// Swap swaps the items at i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
	pq.Items[i].Index, pq.Items[j].Index = i, j
}

// Push adds x to the queue. Use heap.Push, not this method directly.
func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(*Item)
	item.Index = len(pq.Items)
	pq.Items = append(pq.Items, item)
}

// Pop removes the last item. Use heap.Pop, not this method directly.
func (pq *PriorityQueue) Pop() any {
	old := pq.Items
	n := len(old)
	if n == 0 {
		return nil
	}
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	pq.Items = old[:n-1]
	return item
}

// Top returns the root item without removing it, or nil when empty.
func (pq *PriorityQueue) Top() *Item {
	if len(pq.Items) == 0 {
		return nil
	}
	return pq.Items[0]
}

// PushItem pushes a node with the given priority.
func (pq *PriorityQueue) PushItem(node uint32, priority float32) {
	heap.Push(pq, &Item{Node: node, Priority: priority})
}

// PopItem removes and returns the root item.
func (pq *PriorityQueue) PopItem() *Item {
	item, _ := heap.Pop(pq).(*Item)
	return item
}
