package containers

import (
	"sync"

	"github.com/edwingeng/deque"
)

// Deque is a thread-safe FIFO queue backed by a chunked deque, so that
// long runs of pushes and pops do not keep reallocating a slice.
type Deque[T any] struct {
	mu sync.Mutex
	dq deque.Deque
}

// NewDeque creates an empty Deque.
func NewDeque[T any]() *Deque[T] {
	return &Deque[T]{
		dq: deque.NewDeque(),
	}
}

// Add appends elem to the back of the queue.
func (q *Deque[T]) Add(elem T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.dq.PushBack(elem)
}

// Pop removes and returns the front element.
func (q *Deque[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.dq.Empty() {
		return zero, false
	}
	return q.dq.PopFront().(T), true
}

// Peek returns the front element without removing it.
func (q *Deque[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.dq.Empty() {
		return zero, false
	}
	return q.dq.Front().(T), true
}

// Size returns the number of queued elements.
func (q *Deque[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.dq.Len()
}

// Drain removes every queued element and returns them in FIFO order.
func (q *Deque[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	ret := make([]T, 0, q.dq.Len())
	for !q.dq.Empty() {
		ret = append(ret, q.dq.PopFront().(T))
	}
	return ret
}
