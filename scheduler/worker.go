package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-asyncsock/detach"
	"github.com/joeycumines/go-asyncsock/logging"
	"github.com/joeycumines/go-asyncsock/metrics"
	"github.com/joeycumines/go-asyncsock/reactor"
	"github.com/joeycumines/go-asyncsock/strand"
	"github.com/joeycumines/go-asyncsock/timer"
)

// dispatchable is the subset of socket.StreamSocket / ListenerSocket /
// DatagramSocket a Worker's dispatch loop drives. It is satisfied
// implicitly; the socket package never imports scheduler.
type dispatchable interface {
	FD() int
	AcquireProcessor() detach.AcquireResult
	ReleaseProcessor()
	OnReadable()
	OnWritable()
}

// Worker is one engine thread: a strand, a timer wheel and a reactor driven
// by a single dedicated goroutine. It implements socket.Dispatcher.
type Worker struct {
	id      int
	name    string
	str     *strand.Strand
	wheel   *timer.Wheel
	react   reactor.Reactor
	metrics *metrics.WaiterMetrics
	logger  *logging.Logger

	sockets atomic.Int64 // live-attachment estimate, for least-loaded balancing

	maxEventsPerWait int
	maxTimersPerWait int

	stopCh chan struct{}
	doneCh chan struct{}
}

// newWorker builds and starts a Worker's dispatch goroutine.
func newWorker(id int, name string, r reactor.Reactor, maxEvents, maxTimers int, wm *metrics.WaiterMetrics) *Worker {
	w := &Worker{
		id:               id,
		name:             name,
		str:              strand.New(),
		wheel:            timer.New(),
		react:            r,
		metrics:          wm,
		logger:           logging.Default(),
		maxEventsPerWait: maxEvents,
		maxTimersPerWait: maxTimers,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
	go w.run()
	return w
}

// Strand returns the worker's serial executor.
func (w *Worker) Strand() *strand.Strand { return w.str }

// Timers returns the worker's timer wheel.
func (w *Worker) Timers() *timer.Wheel { return w.wheel }

// Reactor returns the worker's readiness multiplexer.
func (w *Worker) Reactor() reactor.Reactor { return w.react }

// Load returns the worker's current attachment estimate, for
// least-loaded scheduling.
func (w *Worker) Load() int64 { return w.sockets.Load() }

func (w *Worker) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		var deadline time.Time
		if d, ok := w.wheel.EarliestDeadline(); ok {
			deadline = d
		}

		start := time.Now()
		events, err := w.react.Wait(deadline)
		if w.metrics != nil {
			w.metrics.DispatchLatency.Observe(time.Since(start))
			// EventsPerWait reuses the duration-typed quantile estimator to
			// track a plain count distribution; the unit is "events", not
			// nanoseconds.
			w.metrics.EventsPerWait.Observe(time.Duration(len(events)))
		}
		if err != nil {
			continue
		}

		select {
		case <-w.stopCh:
			return
		default:
		}

		now := time.Now()
		w.wheel.Advance(now)

		for i, ev := range events {
			if i >= w.maxEventsPerWait && w.maxEventsPerWait > 0 {
				break
			}
			sk, ok := ev.Data.(dispatchable)
			if !ok {
				continue
			}
			if sk.AcquireProcessor() != detach.Granted {
				continue
			}
			if ev.Events.Has(reactor.Readable) || ev.Events.Has(reactor.ErrorInterest) {
				sk.OnReadable()
			}
			if ev.Events.Has(reactor.Writable) {
				sk.OnWritable()
			}
			sk.ReleaseProcessor()
		}
	}
}

// Stop signals the worker's dispatch goroutine to exit and waits for it to
// do so. It does not detach any attached sockets; callers detach them
// first.
func (w *Worker) Stop() {
	close(w.stopCh)
	_ = w.react.Wake()
	<-w.doneCh
	_ = w.react.Close()
}
