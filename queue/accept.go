package queue

import "sync"

// AcceptQueue buffers ready stream sockets (as opaque values of type T,
// typically a socket handle) behind a watermark. Accept pops immediately if
// non-empty; otherwise it enqueues its callback as a pending waiter,
// delivered on the next Push (or PushError).
type AcceptQueue[T any] struct {
	mu      sync.Mutex
	ready   []T
	pending []func(T, error)
	wm      *Watermark
}

// NewAcceptQueue builds an AcceptQueue with the given high watermark (count
// of buffered ready sockets); low is conventionally 0.
func NewAcceptQueue[T any](low, high int64) *AcceptQueue[T] {
	return &AcceptQueue[T]{wm: NewWatermark(low, high)}
}

// Push enqueues a freshly-accepted socket. If a pending accept is waiting,
// it is delivered synchronously (on the calling goroutine) instead of being
// buffered. It returns the watermark edge crossed by the buffering (NoEdge
// if delivered directly to a pending waiter).
func (q *AcceptQueue[T]) Push(v T) Edge {
	q.mu.Lock()
	if len(q.pending) > 0 {
		cb := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		cb(v, nil)
		return NoEdge
	}
	q.ready = append(q.ready, v)
	edge := q.wm.Adjust(1)
	q.mu.Unlock()
	return edge
}

// Accept pops a ready socket synchronously if available; otherwise cb is
// recorded and invoked by a future Push (or PushError, for listener
// shutdown). It returns true if popped synchronously along with the
// watermark edge crossed by draining.
func (q *AcceptQueue[T]) Accept(cb func(T, error)) (v T, edge Edge, popped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ready) > 0 {
		v = q.ready[0]
		q.ready = q.ready[1:]
		edge = q.wm.Adjust(-1)
		return v, edge, true
	}
	q.pending = append(q.pending, cb)
	return v, NoEdge, false
}

// PushError delivers err to the single oldest pending accept waiter, if
// any (used when a listener transitions to a terminal state with accepts
// still outstanding).
func (q *AcceptQueue[T]) PushError(err error) bool {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return false
	}
	cb := q.pending[0]
	q.pending = q.pending[1:]
	q.mu.Unlock()
	var zero T
	cb(zero, err)
	return true
}

// Len returns the number of buffered ready sockets.
func (q *AcceptQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// PendingCount returns the number of outstanding accept waiters.
func (q *AcceptQueue[T]) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
