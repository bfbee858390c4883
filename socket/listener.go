package socket

import (
	"github.com/joeycumines/go-asyncsock/descriptor"
	"github.com/joeycumines/go-asyncsock/detach"
	"github.com/joeycumines/go-asyncsock/endpoint"
	"github.com/joeycumines/go-asyncsock/errkind"
	"github.com/joeycumines/go-asyncsock/queue"
	"github.com/joeycumines/go-asyncsock/ratelimit"
	"github.com/joeycumines/go-asyncsock/reactor"
)

// acceptedConn is the raw material an accepted connection is boxed as
// before the caller adopts it into a StreamSocket.
type acceptedConn struct {
	fd        int
	transport endpoint.Transport
	peer      endpoint.Endpoint
}

// ListenerSocket is a passive stream socket: CLOSED -> OPEN -> LISTENING ->
// DETACHING -> DETACHED.
type ListenerSocket struct {
	base

	desc       *descriptor.Descriptor
	transport  endpoint.Transport
	fd         int
	registered bool

	backlog int
	acceptQ *queue.AcceptQueue[acceptedConn]
	pacer   *ratelimit.AcceptPacer

	pendingDetachCb func(error)
}

// NewListener returns a ListenerSocket in the CLOSED state.
func NewListener(d Dispatcher, id uint64, acceptHigh int64) *ListenerSocket {
	return &ListenerSocket{
		base:    newBase(d, id),
		desc:    descriptor.New(),
		fd:      -1,
		acceptQ: queue.NewAcceptQueue[acceptedConn](0, acceptHigh),
	}
}

// SetAcceptPacer installs a sliding-window limiter gating how fast pending
// connections are drained from the OS backlog into the accept queue.
func (l *ListenerSocket) SetAcceptPacer(p *ratelimit.AcceptPacer) { l.pacer = p }

// Open binds ep, starts listening with the given backlog, and registers for
// readability (a listener is "readable" when a connection is pending).
func (l *ListenerSocket) Open(ep endpoint.Endpoint, transport endpoint.Transport, backlog int, reuseAddr bool) error {
	errc := make(chan error, 1)
	l.dispatcher.Strand().Execute(func() {
		if l.state != Closed {
			errc <- errInvalidTransition("open", l.state)
			return
		}
		if err := l.desc.Open(transport); err != nil {
			errc <- err
			return
		}
		if err := l.desc.Bind(ep, reuseAddr); err != nil {
			_ = l.desc.Close()
			errc <- err
			return
		}
		_ = l.desc.SetBlocking(false)
		if err := l.desc.Listen(backlog); err != nil {
			_ = l.desc.Close()
			errc <- err
			return
		}
		l.transport = transport
		l.backlog = backlog
		l.fd = l.desc.FD()
		if err := l.dispatcher.Reactor().Register(l.fd, reactor.Readable, l); err != nil {
			_ = l.desc.Close()
			errc <- err
			return
		}
		l.registered = true
		l.state = Listening
		errc <- nil
	})
	return <-errc
}

// Accept pops a pending connection, completing synchronously if one is
// already buffered, else once OnReadable drains one from the OS.
func (l *ListenerSocket) Accept(cb func(fd int, transport endpoint.Transport, peer endpoint.Endpoint, err error)) {
	l.dispatcher.Strand().Execute(func() {
		if l.state != Listening {
			cb(-1, endpoint.Undefined, endpoint.Endpoint{}, errInvalidTransition("accept", l.state))
			return
		}
		v, _, popped := l.acceptQ.Accept(func(c acceptedConn, err error) {
			if err != nil {
				cb(-1, endpoint.Undefined, endpoint.Endpoint{}, err)
				return
			}
			cb(c.fd, c.transport, c.peer, nil)
		})
		if popped {
			cb(v.fd, v.transport, v.peer, nil)
		}
	})
}

// OnReadable drains as many pending OS-level connections as the accept
// pacer allows into the accept queue.
func (l *ListenerSocket) OnReadable() {
	l.dispatcher.Strand().Execute(func() {
		if l.state != Listening {
			return
		}
		for {
			if l.pacer != nil {
				if _, ok := l.pacer.Allow(l.fd); !ok {
					return
				}
			}
			fd, peer, err := l.desc.Accept()
			if err != nil {
				if errkind.Of(err) == errkind.WouldBlock {
					return
				}
				l.acceptQ.PushError(err)
				return
			}
			l.acceptQ.Push(acceptedConn{fd: fd, transport: l.transport, peer: peer})
		}
	})
}

// OnWritable is unused by a listener; present to satisfy the worker's
// dispatch table uniformly across socket kinds.
func (l *ListenerSocket) OnWritable() {}

// FD returns the raw descriptor.
func (l *ListenerSocket) FD() int { return l.fd }

// AcquireProcessor / ReleaseProcessor expose the detach handshake, as on
// StreamSocket.
func (l *ListenerSocket) AcquireProcessor() detach.AcquireResult { return l.detach.AcquireProcessor() }

func (l *ListenerSocket) ReleaseProcessor() {
	if l.detach.ReleaseProcessor() == detach.Completed {
		l.dispatcher.Strand().Execute(func() {
			cb := l.pendingDetachCb
			l.pendingDetachCb = nil
			l.finishDetach(cb)
		})
	}
}

func (l *ListenerSocket) finishDetach(onDone func(error)) {
	if l.registered {
		_ = l.dispatcher.Reactor().Unregister(l.fd)
		l.registered = false
	}
	_ = l.desc.Close()
	l.state = Detached
	for l.acceptQ.PushError(errkind.New(errkind.Cancelled, "listener detached")) {
	}
	if onDone != nil {
		onDone(nil)
	}
}

// Detach blocks until the listener is fully torn down.
func (l *ListenerSocket) Detach() error {
	done := make(chan error, 1)
	l.DetachAsync(func(err error) { done <- err })
	return <-done
}

// DetachAsync requests detachment without blocking the caller.
func (l *ListenerSocket) DetachAsync(onDone func(error)) {
	l.dispatcher.Strand().Execute(func() {
		if l.state == Detaching || l.state == Detached {
			onDone(errkind.New(errkind.Already, "already detaching"))
			return
		}
		l.state = Detaching
		switch l.detach.Detach() {
		case detach.DetachCompleted:
			l.finishDetach(onDone)
		case detach.Pending:
			l.pendingDetachCb = onDone
		case detach.Invalid:
			onDone(errkind.New(errkind.Invalid, "detach invalid"))
		}
	})
}
