// Package scheduler implements §4.9's thread/worker pool: a fixed set of
// Workers, a socket-placement policy selecting among them, and a
// weak-reference registry of attached sockets.
package scheduler

import (
	"fmt"
	"sync/atomic"

	"github.com/joeycumines/go-asyncsock/errkind"
	"github.com/joeycumines/go-asyncsock/metrics"
	"github.com/joeycumines/go-asyncsock/option"
	"github.com/joeycumines/go-asyncsock/reactor"
)

// Pool is the engine's worker pool: Place assigns new sockets to a Worker
// according to the configured LoadBalancing policy.
type Pool struct {
	workers []*Worker
	policy  option.LoadBalancing
	rr      atomic.Uint64

	registry *registry
	nextID   atomic.Uint64

	metricsReg *metrics.Registry
}

// New builds a Pool of n workers, each with its own platform-default
// reactor, sized per cfg.
func New(n int, cfg option.Config) (*Pool, error) {
	if n <= 0 {
		return nil, errkind.New(errkind.Invalid, "worker pool size must be positive")
	}
	reg := metrics.NewRegistry(cfg.MetricsPerWaiter, cfg.MetricsPerSocket)
	p := &Pool{
		policy:     cfg.LoadBalancingPolicy,
		registry:   newRegistry(),
		metricsReg: reg,
	}
	for i := 0; i < n; i++ {
		r, err := reactor.New()
		if err != nil {
			p.Close()
			return nil, err
		}
		name := fmt.Sprintf("%s-%d", cfg.ThreadName, i)
		p.workers = append(p.workers, newWorker(i, name, r, cfg.MaxEventsPerWait, cfg.MaxTimersPerWait, reg.Waiter(i)))
	}
	return p, nil
}

// NextID allocates a fresh socket identifier, monotonically increasing and
// unique for this pool's lifetime.
func (p *Pool) NextID() uint64 { return p.nextID.Add(1) }

// Place selects a Worker for a new socket per the configured policy. pin is
// only consulted under the Pinned policy, where it names the worker index;
// a negative or out-of-range pin then fails with Invalid.
func (p *Pool) Place(pin int) (*Worker, error) {
	switch p.policy {
	case option.Pinned:
		if pin < 0 || pin >= len(p.workers) {
			return nil, errkind.New(errkind.Invalid, "pinned worker index out of range")
		}
		return p.workers[pin], nil
	case option.LeastLoaded:
		best := p.workers[0]
		for _, w := range p.workers[1:] {
			if w.Load() < best.Load() {
				best = w
			}
		}
		return best, nil
	default: // RoundRobin
		i := p.rr.Add(1) - 1
		return p.workers[int(i)%len(p.workers)], nil
	}
}

// Register records v (typically a *socket.StreamSocket, *socket.ListenerSocket
// or *socket.DatagramSocket) under id in the pool's weak-reference registry
// and bumps the owning worker's load estimate. The weak reference tracks
// v's own liveness directly — Register keeps no strong reference of its
// own, so Lookup starts failing once the caller drops v.
func Register[T any](p *Pool, id uint64, w *Worker, v *T) {
	registerIn(p.registry, id, v)
	w.sockets.Add(1)
}

// Forget removes id from the registry and decrements w's load estimate,
// called once a socket has fully detached.
func (p *Pool) Forget(id uint64, w *Worker) {
	p.registry.Forget(id)
	w.sockets.Add(-1)
	p.metricsReg.ForgetSocket(id)
}

// Lookup resolves a previously Register'd socket by id. ok is false if the
// id is unknown or the caller's last strong reference has been collected.
func (p *Pool) Lookup(id uint64) (v any, ok bool) {
	return p.registry.Lookup(id)
}

// Scavenge sweeps up to batchSize registry entries for GC'd sockets.
// Nothing in the pool or its workers calls it; callers (e.g. via
// Engine.Scavenge) invoke it themselves.
func (p *Pool) Scavenge(batchSize int) { p.registry.Scavenge(batchSize) }

// Metrics returns the pool's metrics registry.
func (p *Pool) Metrics() *metrics.Registry { return p.metricsReg }

// Workers returns the number of workers in the pool.
func (p *Pool) Workers() int { return len(p.workers) }

// Close stops every worker's dispatch goroutine.
func (p *Pool) Close() {
	for _, w := range p.workers {
		w.Stop()
	}
}
