package queue

import "container/heap"

// Priority is a max-first priority queue with FIFO order among equal
// priorities. Not safe for concurrent use; callers hold their own lock.
type Priority[T any] struct {
	h itemHeap[T]
	n uint64 // insertion counter for the FIFO tie-break
}

type item[T any] struct {
	value    T
	priority int
	seq      uint64
}

type itemHeap[T any] []item[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap[T]) Push(x any) { *h = append(*h, x.(item[T])) }

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// NewPriority creates an empty queue.
func NewPriority[T any]() *Priority[T] {
	return &Priority[T]{}
}

// Push adds v with the given priority; higher priorities pop first.
func (q *Priority[T]) Push(v T, priority int) {
	heap.Push(&q.h, item[T]{value: v, priority: priority, seq: q.n})
	q.n++
}

// Pop removes and returns the highest-priority value. ok is false when empty.
func (q *Priority[T]) Pop() (v T, ok bool) {
	if len(q.h) == 0 {
		return v, false
	}
	it := heap.Pop(&q.h).(item[T])
	return it.value, true
}

// Len returns the number of queued values.
func (q *Priority[T]) Len() int { return len(q.h) }
