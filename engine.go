// Package asyncsock is a cross-platform asynchronous socket I/O engine: a
// reactor-driven worker pool over stream, listener and datagram sockets,
// with watermarked queues, rate limiting, timers and structured logging
// composed from the sibling packages.
package asyncsock

import (
	"runtime"
	"time"

	"github.com/joeycumines/go-asyncsock/endpoint"
	"github.com/joeycumines/go-asyncsock/logging"
	"github.com/joeycumines/go-asyncsock/option"
	"github.com/joeycumines/go-asyncsock/ratelimit"
	"github.com/joeycumines/go-asyncsock/scheduler"
	"github.com/joeycumines/go-asyncsock/socket"
)

// DefaultWatermarks bounds a socket's read/write queues absent an explicit
// override: a generous high watermark with no low watermark floor.
var DefaultWatermarks = [2]int64{0, 4 << 20}

// DefaultAcceptWatermark bounds a listener's accept queue depth.
const DefaultAcceptWatermark = 1024

// Engine is the top-level handle: a configured worker pool plus the
// factory methods for attaching new sockets to it.
type Engine struct {
	cfg  option.Config
	pool *scheduler.Pool
}

// New builds an Engine with numWorkers worker threads (runtime.GOMAXPROCS
// if numWorkers <= 0), configured by opts.
func New(numWorkers int, opts ...option.Option) (*Engine, error) {
	cfg := option.Resolve(opts)
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	pool, err := scheduler.New(numWorkers, cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, pool: pool}, nil
}

// SetLogger installs l as the engine-wide structured logger, ambient to
// every socket the engine creates from this point forward.
func SetLogger(l *logging.Logger) { logging.SetLogger(l) }

// autoPlace is the worker placement hint the engine passes to Place; -1
// means "let the policy decide" (the Pinned policy rejects it).
const autoPlace = -1

// NewStream attaches a new, unopened StreamSocket to a worker chosen by
// the engine's load-balancing policy.
func (e *Engine) NewStream() (*socket.StreamSocket, error) {
	w, err := e.pool.Place(autoPlace)
	if err != nil {
		return nil, err
	}
	id := e.pool.NextID()
	s := socket.NewStream(w, id, DefaultWatermarks, DefaultWatermarks)
	scheduler.Register(e.pool, id, w, s)
	return s, nil
}

// NewListener attaches a new, unopened ListenerSocket to a worker chosen
// by the engine's load-balancing policy.
func (e *Engine) NewListener() (*socket.ListenerSocket, error) {
	w, err := e.pool.Place(autoPlace)
	if err != nil {
		return nil, err
	}
	id := e.pool.NextID()
	l := socket.NewListener(w, id, DefaultAcceptWatermark)
	scheduler.Register(e.pool, id, w, l)
	return l, nil
}

// NewDatagram attaches a new, unopened DatagramSocket to a worker chosen
// by the engine's load-balancing policy.
func (e *Engine) NewDatagram() (*socket.DatagramSocket, error) {
	w, err := e.pool.Place(autoPlace)
	if err != nil {
		return nil, err
	}
	id := e.pool.NextID()
	g := socket.NewDatagram(w, id, DefaultWatermarks)
	scheduler.Register(e.pool, id, w, g)
	return g, nil
}

// AdoptStream wraps an already-accepted raw file descriptor (as returned by
// a ListenerSocket's Accept) in an engine-managed, CONNECTED StreamSocket
// placed on a worker per the load-balancing policy.
func (e *Engine) AdoptStream(fd int, transport endpoint.Transport) (*socket.StreamSocket, error) {
	w, err := e.pool.Place(autoPlace)
	if err != nil {
		return nil, err
	}
	id := e.pool.NextID()
	s := socket.NewStream(w, id, DefaultWatermarks, DefaultWatermarks)
	if err := socket.Adopt(s, fd, transport); err != nil {
		return nil, err
	}
	scheduler.Register(e.pool, id, w, s)
	return s, nil
}

// Listen is a convenience that builds, opens and returns a ListenerSocket
// bound to ep with the given backlog.
func (e *Engine) Listen(ep endpoint.Endpoint, transport endpoint.Transport, backlog int) (*socket.ListenerSocket, error) {
	l, err := e.NewListener()
	if err != nil {
		return nil, err
	}
	if err := l.Open(ep, transport, backlog, true); err != nil {
		return nil, err
	}
	return l, nil
}

// Dial is a convenience that builds, opens and connects a StreamSocket to
// ep, blocking until the connect completes or deadline elapses (zero
// deadline means no timeout).
func (e *Engine) Dial(transport endpoint.Transport, ep endpoint.Endpoint, deadline time.Time) (*socket.StreamSocket, error) {
	s, err := e.NewStream()
	if err != nil {
		return nil, err
	}
	if err := s.Open(transport); err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	s.Connect(ep, deadline, func(err error) { done <- err })
	if err := <-done; err != nil {
		return nil, err
	}
	return s, nil
}

// Lookup resolves an engine-assigned socket id back to its live handle.
// The second return is false once every strong reference the caller held
// has been dropped and garbage collected, even if the id was valid at
// Register time.
func (e *Engine) Lookup(id uint64) (any, bool) { return e.pool.Lookup(id) }

// Scavenge sweeps the engine's socket registry for garbage-collected
// entries, amortised across batchSize per call. A production caller
// typically wires this to a periodic timer.
func (e *Engine) Scavenge(batchSize int) { e.pool.Scavenge(batchSize) }

// Workers returns the number of worker threads in the engine's pool.
func (e *Engine) Workers() int { return e.pool.Workers() }

// Close stops every worker. It does not detach sockets first; callers
// should Detach everything they care about closing cleanly before calling
// Close.
func (e *Engine) Close() error {
	e.pool.Close()
	return nil
}
