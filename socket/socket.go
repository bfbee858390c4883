// Package socket implements §4.9: the stream, listener and datagram socket
// state machines, composing a descriptor with the reactor, the watermarked
// queues, the authorisation counter, the rate limiter, the timer wheel, the
// strand and the detach coordinator.
package socket

import (
	"time"

	"github.com/joeycumines/go-asyncsock/detach"
	"github.com/joeycumines/go-asyncsock/errkind"
	"github.com/joeycumines/go-asyncsock/logging"
	"github.com/joeycumines/go-asyncsock/metrics"
	"github.com/joeycumines/go-asyncsock/reactor"
	"github.com/joeycumines/go-asyncsock/strand"
	"github.com/joeycumines/go-asyncsock/timer"
)

// State is a socket's position in its state machine (§4.9). Streams use the
// full range; listeners and datagrams use a subset, documented on their own
// constructors.
type State int

const (
	Closed State = iota
	Opening
	Open
	Connecting
	Connected
	Encrypted
	ShuttingDown
	Shutdown
	Listening
	Detaching
	Detached
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Encrypted:
		return "encrypted"
	case ShuttingDown:
		return "shutting-down"
	case Shutdown:
		return "shutdown"
	case Listening:
		return "listening"
	case Detaching:
		return "detaching"
	case Detached:
		return "detached"
	default:
		return "unknown"
	}
}

// Dispatcher is the minimal surface a socket needs from its owning worker:
// the serial executor all of its state transitions run on, the timer wheel
// backing deadline options, and the readiness multiplexer it registers
// with. The scheduler package's Worker satisfies this.
type Dispatcher interface {
	Strand() *strand.Strand
	Timers() *timer.Wheel
	Reactor() reactor.Reactor
}

// base holds the fields common to every socket kind: the state machine
// guard, the detach handshake, and the ambient logging/metrics hooks.
type base struct {
	dispatcher Dispatcher
	detach     *detach.Coordinator
	state      State
	logger     *logging.Logger
	metrics    *metrics.SocketMetrics
	id         uint64
}

func newBase(d Dispatcher, id uint64) base {
	return base{
		dispatcher: d,
		detach:     detach.New(),
		state:      Closed,
		logger:     logging.Default(),
		metrics:    metrics.NewSocketMetrics(time.Now()),
		id:         id,
	}
}

// State returns the socket's current state. Safe to call from any
// goroutine; the value may be stale by the time the caller observes it,
// matching the optimistic-read convention used throughout the engine's
// public accessors.
func (b *base) State() State {
	var s State
	done := make(chan struct{})
	b.dispatcher.Strand().Execute(func() {
		s = b.state
		close(done)
	})
	<-done
	return s
}

// errInvalidTransition reports an operation attempted from a state that
// does not permit it.
func errInvalidTransition(op string, s State) error {
	return errkind.New(errkind.Invalid, op+": invalid from state "+s.String())
}

// Id returns the socket's engine-assigned identifier, used to key metrics
// and scheduler registries.
func (b *base) Id() uint64 { return b.id }
