// Package strand implements the serial FIFO executor: a logical
// serialisation domain guaranteeing non-concurrent execution of its
// submitted functions, regardless of which goroutine submits them.
package strand

import "sync"

const chunkSize = 128

// chunk is a fixed-size segment of a chunked linked-list FIFO, recycled
// through a sync.Pool once fully drained to avoid per-task allocation.
type chunk struct {
	tasks   [chunkSize]func()
	next    *chunk
	readPos int
	pos     int
}

var chunkPool = sync.Pool{New: func() any { return new(chunk) }}

func newChunk() *chunk {
	return chunkPool.Get().(*chunk)
}

func returnChunk(c *chunk) {
	for i := range c.tasks {
		c.tasks[i] = nil
	}
	c.next = nil
	c.readPos = 0
	c.pos = 0
	chunkPool.Put(c)
}

// fifo is a chunked-linked-list queue of deferred functions. All methods
// require the caller to hold mu.
type fifo struct {
	head, tail *chunk
	length     int
}

func (q *fifo) push(f func()) {
	if q.tail == nil {
		q.head = newChunk()
		q.tail = q.head
	} else if q.tail.pos == chunkSize {
		next := newChunk()
		q.tail.next = next
		q.tail = next
	}
	q.tail.tasks[q.tail.pos] = f
	q.tail.pos++
	q.length++
}

func (q *fifo) pop() (func(), bool) {
	if q.head == nil {
		return nil, false
	}
	if q.head.readPos == q.head.pos {
		return nil, false
	}
	f := q.head.tasks[q.head.readPos]
	q.head.tasks[q.head.readPos] = nil
	q.head.readPos++
	q.length--
	if q.head.readPos == chunkSize {
		drained := q.head
		q.head = drained.next
		if q.head == nil {
			q.tail = nil
		}
		returnChunk(drained)
	}
	return f, true
}

// Strand is a serial executor: Execute appends f to the FIFO, and exactly
// one goroutine at a time drains it, running callbacks one after another.
// Execute is safe for concurrent use from any number of goroutines.
type Strand struct {
	mu       sync.Mutex
	q        fifo
	draining bool
}

// New returns a ready-to-use Strand.
func New() *Strand {
	return &Strand{}
}

// Execute appends f for serialised execution. If the strand is currently
// idle, f (and anything submitted while it runs) is drained in-line on the
// calling goroutine before Execute returns — this is the "recurse" path: a
// caller that cannot tolerate inline execution should post through its own
// executor instead of calling Execute directly from latency-sensitive code.
// If the strand is already being drained by another goroutine, f is simply
// enqueued and that goroutine will run it in submission order.
func (s *Strand) Execute(f func()) {
	s.mu.Lock()
	s.q.push(f)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	s.drain()
}

// ExecuteNoRecurse appends f without ever running it inline: the caller
// never blocks on f's execution. If the strand is idle, a goroutine is
// spawned to drain it.
func (s *Strand) ExecuteNoRecurse(f func()) {
	s.mu.Lock()
	s.q.push(f)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	go s.drain()
}

func (s *Strand) drain() {
	for {
		s.mu.Lock()
		f, ok := s.q.pop()
		if !ok {
			s.draining = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		f()
	}
}

// Pending returns the number of functions currently queued (not counting one
// that may be mid-execution).
func (s *Strand) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.length
}
