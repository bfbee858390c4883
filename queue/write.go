package queue

import (
	"sync"

	"github.com/joeycumines/go-asyncsock/errkind"
)

// WriteQueue is the byte FIFO of data submitted by the user but not yet
// handed to the OS (or, in proactor mode, not yet reported complete). A
// send completion fires on the operation's own strand once the bytes are
// queued (not necessarily transmitted) per §4.5; callers choose when to
// invoke that completion relative to actually draining into the OS buffer.
type WriteQueue struct {
	mu   sync.Mutex
	data []byte
	wm   *Watermark
}

// NewWriteQueue builds a WriteQueue with the given low/high watermark
// (bytes).
func NewWriteQueue(low, high int64) *WriteQueue {
	return &WriteQueue{wm: NewWatermark(low, high)}
}

// Submit appends payload to the write queue unless doing so would exceed
// the high watermark, in which case it fails atomically (nothing is
// enqueued) with a Limit error. On success it returns the watermark edge
// crossed by the enqueue (almost always HighEdge or NoEdge, since a submit
// only grows the queue).
func (q *WriteQueue) Submit(payload []byte) (Edge, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.wm.WouldExceedHigh(int64(len(payload))) {
		return NoEdge, errkind.New(errkind.Limit, "write queue would exceed high watermark")
	}
	q.data = append(q.data, payload...)
	edge := q.wm.Adjust(int64(len(payload)))
	return edge, nil
}

// Drain removes up to max bytes from the front of the queue for handing to
// the OS send call, returning a copy of the bytes (safe to retain past the
// next Submit, which would otherwise grow the same backing array a
// 2-index slice of q.data still has spare capacity in) and the watermark
// edge crossed by the removal (almost always LowEdge or NoEdge).
func (q *WriteQueue) Drain(max int) ([]byte, Edge) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]byte, max)
	copy(out, q.data[:max])
	q.data = q.data[max:]
	edge := q.wm.Adjust(-int64(len(out)))
	return out, edge
}

// Len returns the current buffered byte count.
func (q *WriteQueue) Len() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.wm.Current()
}
