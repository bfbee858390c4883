package socket

import (
	"time"

	"github.com/joeycumines/go-asyncsock/authz"
	"github.com/joeycumines/go-asyncsock/descriptor"
	"github.com/joeycumines/go-asyncsock/detach"
	"github.com/joeycumines/go-asyncsock/endpoint"
	"github.com/joeycumines/go-asyncsock/errkind"
	"github.com/joeycumines/go-asyncsock/queue"
	"github.com/joeycumines/go-asyncsock/ratelimit"
	"github.com/joeycumines/go-asyncsock/reactor"
	"github.com/joeycumines/go-asyncsock/timer"
)

// StreamSocket is a full-duplex, connection-oriented socket (TCP or local
// stream), progressing CLOSED -> OPENING -> OPEN -> CONNECTING -> CONNECTED
// -> (ENCRYPTED) -> SHUTTING-DOWN -> SHUTDOWN -> DETACHING -> DETACHED.
// Apart from Id, FD, SetWriteLimiter and the AcquireProcessor /
// ReleaseProcessor pair, every exported method does its work on the owning
// Dispatcher's strand, including the completion handlers passed to it;
// callers invoke them directly (they're queued onto the strand
// internally) from any goroutine.
type StreamSocket struct {
	base

	desc      *descriptor.Descriptor
	transport endpoint.Transport
	fd        int
	registered bool

	flow         *ratelimit.FlowControlContext
	writeLimiter *ratelimit.Limiter

	readQ  *queue.ReadQueue
	writeQ *queue.WriteQueue

	connectAuth    *authz.Authorization
	connectCb      func(error)
	connectTimeout timer.Handle
	hasConnTimeout bool

	shutdownRead, shutdownWrite bool

	pendingDetachCb func(error)
}

// NewStream returns a StreamSocket in the CLOSED state, registered with no
// reactor fd yet.
func NewStream(d Dispatcher, id uint64, readWM, writeWM [2]int64) *StreamSocket {
	s := &StreamSocket{
		base:        newBase(d, id),
		desc:        descriptor.New(),
		fd:          -1,
		flow:        ratelimit.NewFlowControlContext(),
		readQ:       queue.NewReadQueue(readWM[0], readWM[1]),
		writeQ:      queue.NewWriteQueue(writeWM[0], writeWM[1]),
		connectAuth: authz.New(),
	}
	return s
}

// SetWriteLimiter installs a dual-bucket limiter gating write-queue drains.
// Must be called before Open.
func (s *StreamSocket) SetWriteLimiter(l *ratelimit.Limiter) { s.writeLimiter = l }

// Open creates the underlying OS socket and registers it with the
// dispatcher's reactor, transitioning CLOSED -> OPEN.
func (s *StreamSocket) Open(transport endpoint.Transport) error {
	errc := make(chan error, 1)
	s.dispatcher.Strand().Execute(func() {
		if s.state != Closed {
			errc <- errInvalidTransition("open", s.state)
			return
		}
		if err := s.desc.Open(transport); err != nil {
			errc <- err
			return
		}
		_ = s.desc.SetBlocking(false)
		s.transport = transport
		s.fd = s.desc.FD()
		if err := s.dispatcher.Reactor().Register(s.fd, 0, s); err != nil {
			_ = s.desc.Close()
			errc <- err
			return
		}
		s.registered = true
		s.state = Open
		errc <- nil
	})
	return <-errc
}

// Adopt wraps an already-accepted raw fd (from a ListenerSocket) as a
// CONNECTED StreamSocket, skipping OPENING/CONNECTING.
func Adopt(s *StreamSocket, fd int, transport endpoint.Transport) error {
	return s.adopt(fd, transport)
}

func (s *StreamSocket) adopt(fd int, transport endpoint.Transport) error {
	errc := make(chan error, 1)
	s.dispatcher.Strand().Execute(func() {
		if s.state != Closed {
			errc <- errInvalidTransition("adopt", s.state)
			return
		}
		if err := s.desc.Acquire(fd, transport); err != nil {
			errc <- err
			return
		}
		_ = s.desc.SetBlocking(false)
		s.transport = transport
		s.fd = fd
		if err := s.dispatcher.Reactor().Register(s.fd, 0, s); err != nil {
			errc <- err
			return
		}
		s.registered = true
		s.state = Connected
		s.flow.WantReadable(true)
		s.recomputeInterest()
		errc <- nil
	})
	return <-errc
}

// Connect begins an asynchronous connect to ep. cb fires exactly once, on
// the dispatcher's strand, with the outcome. A non-zero deadline arms a
// cancelling timer.
func (s *StreamSocket) Connect(ep endpoint.Endpoint, deadline time.Time, cb func(error)) {
	s.dispatcher.Strand().Execute(func() {
		if s.state != Open {
			cb(errInvalidTransition("connect", s.state))
			return
		}
		if s.connectAuth.Acquire() != authz.OK {
			cb(errkind.New(errkind.Invalid, "connect already in progress"))
			return
		}
		s.state = Connecting
		s.connectCb = cb
		err := s.desc.Connect(ep)
		if err == nil {
			s.finishConnect(nil)
			return
		}
		if errkind.Of(err) != errkind.WouldBlock {
			s.finishConnect(err)
			return
		}
		s.flow.WantWritable(true)
		s.recomputeInterest()
		if !deadline.IsZero() {
			s.hasConnTimeout = true
			s.connectTimeout = s.dispatcher.Timers().Schedule(deadline, 0, s.dispatcher.Strand(), func(time.Time) {
				if s.state == Connecting {
					s.finishConnect(errkind.New(errkind.Timeout, "connect timed out"))
				}
			})
			// the worker may be blocked in Wait with an older (or no)
			// deadline; wake it so it picks up this timer.
			_ = s.dispatcher.Reactor().Wake()
		}
	})
}

// finishConnect must run on the strand. It completes the pending connect
// (success or failure), clearing connect-specific state.
func (s *StreamSocket) finishConnect(err error) {
	if s.hasConnTimeout {
		s.dispatcher.Timers().Cancel(s.connectTimeout)
		s.hasConnTimeout = false
	}
	s.flow.WantWritable(false)
	cb := s.connectCb
	s.connectCb = nil
	if err != nil {
		s.connectAuth.Release()
		s.state = Open
		s.recomputeInterest()
		if cb != nil {
			cb(err)
		}
		return
	}
	s.connectAuth.Release()
	s.state = Connected
	s.flow.WantReadable(true)
	s.recomputeInterest()
	if cb != nil {
		cb(nil)
	}
}

// CancelConnect cancels a pending connect, if one is in flight.
func (s *StreamSocket) CancelConnect() {
	s.dispatcher.Strand().Execute(func() {
		if s.state == Connecting {
			s.finishConnect(errkind.New(errkind.Cancelled, "connect cancelled"))
		}
	})
}

// Send enqueues payload for transmission, completing handler once it has
// been accepted onto the write queue (not necessarily transmitted), per
// §4.5. A Limit error means enqueuing payload would have taken the write
// queue above its high watermark, and nothing was enqueued.
func (s *StreamSocket) Send(payload []byte, handler func(error)) {
	s.dispatcher.Strand().Execute(func() {
		if s.state != Connected && s.state != Encrypted {
			handler(errInvalidTransition("send", s.state))
			return
		}
		if s.shutdownWrite {
			handler(errkind.New(errkind.Invalid, "write side shut down"))
			return
		}
		if _, err := s.writeQ.Submit(payload); err != nil {
			handler(err)
			return
		}
		handler(nil)
		s.flow.WantWritable(true)
		s.recomputeInterest()
		s.tryDrainWrite()
	})
}

// Receive requests between min and max bytes (max<=0 means unbounded),
// completing cb synchronously if already available, else once enough
// arrives.
func (s *StreamSocket) Receive(min, max int, cb func([]byte, error)) {
	s.dispatcher.Strand().Execute(func() {
		if s.state != Connected && s.state != Encrypted {
			cb(nil, errInvalidTransition("receive", s.state))
			return
		}
		s.readQ.ReceiveStream(min, max, cb)
	})
}

// Shutdown shuts down one or both directions. Shutting down both
// transitions CONNECTED -> SHUTTING-DOWN; SHUTTING-DOWN completes to
// SHUTDOWN once both the read queue has drained its final EOF and the
// write queue has flushed, modeled here as immediate since the descriptor
// call itself is synchronous — draining in-flight buffered bytes is the
// write queue's own concern, not this transition's.
func (s *StreamSocket) Shutdown(dir descriptor.ShutdownDirection) error {
	errc := make(chan error, 1)
	s.dispatcher.Strand().Execute(func() {
		if s.state != Connected && s.state != Encrypted {
			errc <- errInvalidTransition("shutdown", s.state)
			return
		}
		if err := s.desc.Shutdown(dir); err != nil {
			errc <- err
			return
		}
		switch dir {
		case descriptor.ShutdownSend:
			s.shutdownWrite = true
		case descriptor.ShutdownReceive:
			s.shutdownRead = true
		default:
			s.shutdownRead, s.shutdownWrite = true, true
		}
		s.flow.SetShutdown(s.shutdownRead, s.shutdownWrite)
		s.recomputeInterest()
		if s.shutdownRead && s.shutdownWrite {
			s.state = ShuttingDown
			s.readQ.Close(errkind.New(errkind.EOF, "shut down"))
			s.state = Shutdown
		}
		errc <- nil
	})
	return <-errc
}

// Detach runs the two-phase handshake synchronously from the caller's
// point of view: it blocks until every in-flight dispatch has drained and
// the descriptor is closed. Use DetachAsync from inside a dispatch handler
// to avoid deadlocking on your own in-flight lease.
func (s *StreamSocket) Detach() error {
	done := make(chan error, 1)
	s.DetachAsync(func(err error) { done <- err })
	return <-done
}

// DetachAsync requests detachment, invoking onDone once the socket is fully
// torn down (reactor-unregistered, descriptor closed). Safe to call from a
// dispatch handler.
func (s *StreamSocket) DetachAsync(onDone func(error)) {
	s.dispatcher.Strand().Execute(func() {
		if s.state == Detaching || s.state == Detached {
			onDone(errkind.New(errkind.Already, "already detaching"))
			return
		}
		s.state = Detaching
		switch s.detach.Detach() {
		case detach.DetachCompleted:
			s.finishDetach(onDone)
		case detach.Pending:
			s.pendingDetachCb = onDone
		case detach.Invalid:
			onDone(errkind.New(errkind.Invalid, "detach invalid"))
		}
	})
}

func (s *StreamSocket) finishDetach(onDone func(error)) {
	s.readQ.Close(errkind.New(errkind.Cancelled, "socket detached"))
	if s.registered {
		_ = s.dispatcher.Reactor().Unregister(s.fd)
		s.registered = false
	}
	_ = s.desc.Close()
	s.state = Detached
	if onDone != nil {
		onDone(nil)
	}
}

// OnReadable is invoked by the owning worker after AcquireProcessor
// succeeds, when the reactor reports the fd readable.
func (s *StreamSocket) OnReadable() {
	s.dispatcher.Strand().Execute(func() {
		if s.state != Connected && s.state != Encrypted {
			return
		}
		buf := make([]byte, 64*1024)
		n, err := s.desc.Receive(buf)
		if err != nil {
			if errkind.Of(err) == errkind.WouldBlock {
				return
			}
			s.readQ.Close(err)
			return
		}
		s.readQ.Push(buf[:n], nil)
	})
}

// OnWritable is invoked by the owning worker when the reactor reports the
// fd writable: it completes an in-flight connect or drains the write
// queue.
func (s *StreamSocket) OnWritable() {
	s.dispatcher.Strand().Execute(func() {
		if s.state == Connecting {
			s.finishConnect(s.desc.ConnectResult())
			return
		}
		s.tryDrainWrite()
	})
}

// tryDrainWrite must run on the strand. It pushes buffered bytes to the OS,
// honouring the write limiter if one is installed.
func (s *StreamSocket) tryDrainWrite() {
	if s.writeQ.Len() == 0 {
		s.flow.WantWritable(false)
		s.recomputeInterest()
		return
	}
	n := 64 * 1024
	if s.writeLimiter != nil {
		d := s.writeLimiter.Consume(float64(n), time.Now())
		if !d.Allowed {
			s.flow.SetRateLimited(true)
			s.recomputeInterest()
			s.dispatcher.Timers().Schedule(d.WaitUntil, 0, s.dispatcher.Strand(), func(time.Time) {
				s.flow.SetRateLimited(false)
				s.recomputeInterest()
				s.tryDrainWrite()
			})
			return
		}
	}
	buf, _ := s.writeQ.Drain(n)
	if len(buf) == 0 {
		return
	}
	written, err := s.desc.Send(buf)
	if err != nil && errkind.Of(err) != errkind.WouldBlock {
		s.readQ.Close(err)
		return
	}
	if written < len(buf) {
		// WriteQueue has no prepend: take everything still queued, put it
		// behind the unsent remainder, and resubmit the whole into the
		// now-empty queue so byte order is preserved.
		rest, _ := s.writeQ.Drain(0)
		leftover := append(buf[written:len(buf):len(buf)], rest...)
		s.writeQ.Submit(leftover) //nolint:errcheck // restores the queue's earlier size, can't exceed watermark
	}
	if s.writeQ.Len() > 0 {
		s.flow.WantWritable(true)
	} else {
		s.flow.WantWritable(false)
	}
	s.recomputeInterest()
}

// recomputeInterest must run on the strand. It reconciles the flow
// control context's wanted state against what's registered with the
// reactor.
func (s *StreamSocket) recomputeInterest() {
	if !s.registered {
		return
	}
	readable, writable, changed := s.flow.Recompute()
	if !changed {
		return
	}
	if readable {
		_ = s.dispatcher.Reactor().ShowInterest(s.fd, reactor.Readable)
	} else {
		_ = s.dispatcher.Reactor().HideInterest(s.fd, reactor.Readable)
	}
	if writable {
		_ = s.dispatcher.Reactor().ShowInterest(s.fd, reactor.Writable)
	} else {
		_ = s.dispatcher.Reactor().HideInterest(s.fd, reactor.Writable)
	}
}

// AcquireProcessor and ReleaseProcessor expose the detach coordinator to
// the owning worker's dispatch loop, which must bracket every OnReadable /
// OnWritable call with them.
func (s *StreamSocket) AcquireProcessor() detach.AcquireResult { return s.detach.AcquireProcessor() }

func (s *StreamSocket) ReleaseProcessor() {
	if s.detach.ReleaseProcessor() == detach.Completed {
		s.dispatcher.Strand().Execute(func() {
			cb := s.pendingDetachCb
			s.pendingDetachCb = nil
			s.finishDetach(cb)
		})
	}
}

// FD returns the raw descriptor, for the worker's reactor event
// dispatch table.
func (s *StreamSocket) FD() int { return s.fd }
