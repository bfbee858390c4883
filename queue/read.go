package queue

import "sync"

type message struct {
	data []byte
	meta any // datagram peer endpoint / ancillary data; nil for stream data
}

type streamWaiter struct {
	min int
	max int
	cb  func(data []byte, err error)
}

type datagramWaiter func(data []byte, meta any, err error)

// ReadQueue is the byte-addressable FIFO of received data described in
// §4.5, with optional per-message metadata for datagram sockets. A single
// ReadQueue instance is used in either stream mode (ReceiveStream,
// discarding message boundaries) or datagram mode (ReceiveDatagram, one
// whole message per receive) according to the owning socket's transport.
type ReadQueue struct {
	mu   sync.Mutex
	msgs []message
	wm   *Watermark

	streamWaiters    []streamWaiter
	datagramWaiters  []datagramWaiter
	closed           bool
	closeErr         error
}

// NewReadQueue builds a ReadQueue with the given low/high watermark
// (bytes).
func NewReadQueue(low, high int64) *ReadQueue {
	return &ReadQueue{wm: NewWatermark(low, high)}
}

// Push appends received data (and, for datagrams, its metadata) to the
// queue, delivering to the oldest waiting receive if one is present, and
// returns the watermark edge crossed.
func (q *ReadQueue) Push(data []byte, meta any) Edge {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return NoEdge
	}

	if len(q.datagramWaiters) > 0 {
		cb := q.datagramWaiters[0]
		q.datagramWaiters = q.datagramWaiters[1:]
		q.mu.Unlock()
		cb(data, meta, nil)
		return NoEdge
	}

	q.msgs = append(q.msgs, message{data: data, meta: meta})
	edge := q.wm.Adjust(int64(len(data)))
	q.drainStreamWaitersLocked()
	q.mu.Unlock()
	return edge
}

// Close marks the queue closed with err delivered to every further and
// currently-pending receive (used on EOF / terminal error / shutdown).
func (q *ReadQueue) Close(err error) {
	q.mu.Lock()
	sw := q.streamWaiters
	dw := q.datagramWaiters
	q.streamWaiters = nil
	q.datagramWaiters = nil
	q.closed = true
	q.closeErr = err
	q.mu.Unlock()

	for _, w := range sw {
		w.cb(nil, err)
	}
	for _, w := range dw {
		w(nil, nil, err)
	}
}

// ReceiveStream completes synchronously with up to max bytes if the queue
// already holds >= min bytes (default min is 1); otherwise cb is queued and
// invoked by a future Push or Close.
func (q *ReadQueue) ReceiveStream(min, max int, cb func(data []byte, err error)) {
	if min <= 0 {
		min = 1
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		cb(nil, q.closeErr)
		return
	}
	if q.wm.Current() >= int64(min) {
		data, edge := q.popBytesLocked(max)
		_ = edge
		q.mu.Unlock()
		cb(data, nil)
		return
	}
	q.streamWaiters = append(q.streamWaiters, streamWaiter{min: min, max: max, cb: cb})
	q.mu.Unlock()
}

// popBytesLocked removes up to max bytes from the front of the queue,
// across message boundaries, and returns them plus the watermark edge.
func (q *ReadQueue) popBytesLocked(max int) ([]byte, Edge) {
	var out []byte
	for len(q.msgs) > 0 && (max <= 0 || len(out) < max) {
		m := &q.msgs[0]
		remaining := max - len(out)
		if max <= 0 || remaining >= len(m.data) {
			out = append(out, m.data...)
			q.msgs = q.msgs[1:]
		} else {
			out = append(out, m.data[:remaining]...)
			m.data = m.data[remaining:]
		}
	}
	edge := q.wm.Adjust(-int64(len(out)))
	return out, edge
}

func (q *ReadQueue) drainStreamWaitersLocked() {
	for len(q.streamWaiters) > 0 && q.wm.Current() >= int64(q.streamWaiters[0].min) {
		w := q.streamWaiters[0]
		q.streamWaiters = q.streamWaiters[1:]
		data, _ := q.popBytesLocked(w.max)
		cb := w.cb
		q.mu.Unlock()
		cb(data, nil)
		q.mu.Lock()
	}
}

// ReceiveDatagram completes synchronously with the oldest whole message if
// one is buffered; otherwise cb is queued and invoked by a future Push
// (never split across messages) or Close.
func (q *ReadQueue) ReceiveDatagram(cb datagramWaiter) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		cb(nil, nil, q.closeErr)
		return
	}
	if len(q.msgs) > 0 {
		m := q.msgs[0]
		q.msgs = q.msgs[1:]
		edge := q.wm.Adjust(-int64(len(m.data)))
		_ = edge
		q.mu.Unlock()
		cb(m.data, m.meta, nil)
		return
	}
	q.datagramWaiters = append(q.datagramWaiters, cb)
	q.mu.Unlock()
}

// Len returns the current buffered byte count.
func (q *ReadQueue) Len() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.wm.Current()
}
