package socket

import (
	"github.com/joeycumines/go-asyncsock/descriptor"
	"github.com/joeycumines/go-asyncsock/detach"
	"github.com/joeycumines/go-asyncsock/endpoint"
	"github.com/joeycumines/go-asyncsock/errkind"
	"github.com/joeycumines/go-asyncsock/queue"
	"github.com/joeycumines/go-asyncsock/reactor"
)

// DatagramSocket is a connectionless, message-oriented socket (UDP or local
// datagram): CLOSED -> OPEN -> (CONNECTED) -> SHUTDOWN -> DETACHING ->
// DETACHED. CONNECTED here means a default peer has been fixed via
// Connect, restricting Receive to that peer and allowing Send without an
// explicit destination; it never implies a handshake.
type DatagramSocket struct {
	base

	desc       *descriptor.Descriptor
	transport  endpoint.Transport
	fd         int
	registered bool
	peer       endpoint.Endpoint
	hasPeer    bool

	readQ *queue.ReadQueue

	pendingDetachCb func(error)
}

// NewDatagram returns a DatagramSocket in the CLOSED state.
func NewDatagram(d Dispatcher, id uint64, readWM [2]int64) *DatagramSocket {
	return &DatagramSocket{
		base:  newBase(d, id),
		desc:  descriptor.New(),
		fd:    -1,
		readQ: queue.NewReadQueue(readWM[0], readWM[1]),
	}
}

// Open creates the OS socket and, if ep is not Undefined, binds it.
func (g *DatagramSocket) Open(transport endpoint.Transport, ep endpoint.Endpoint, reuseAddr bool) error {
	errc := make(chan error, 1)
	g.dispatcher.Strand().Execute(func() {
		if g.state != Closed {
			errc <- errInvalidTransition("open", g.state)
			return
		}
		if err := g.desc.Open(transport); err != nil {
			errc <- err
			return
		}
		if !ep.IsUndefined() {
			if err := g.desc.Bind(ep, reuseAddr); err != nil {
				_ = g.desc.Close()
				errc <- err
				return
			}
		}
		_ = g.desc.SetBlocking(false)
		g.transport = transport
		g.fd = g.desc.FD()
		if err := g.dispatcher.Reactor().Register(g.fd, reactor.Readable, g); err != nil {
			_ = g.desc.Close()
			errc <- err
			return
		}
		g.registered = true
		g.state = Open
		errc <- nil
	})
	return <-errc
}

// Connect fixes a default peer. It never touches the network; datagram
// sockets have no handshake.
func (g *DatagramSocket) Connect(ep endpoint.Endpoint) error {
	errc := make(chan error, 1)
	g.dispatcher.Strand().Execute(func() {
		if g.state != Open {
			errc <- errInvalidTransition("connect", g.state)
			return
		}
		g.peer = ep
		g.hasPeer = true
		g.state = Connected
		errc <- nil
	})
	return <-errc
}

// SendTo sends one datagram addressed to ep straight to the OS socket,
// completing handler with the result of that send. A zero-valued ep sends to the fixed peer (if Connect was
// called); sending without a peer and without an explicit ep fails.
func (g *DatagramSocket) SendTo(payload []byte, ep endpoint.Endpoint, handler func(error)) {
	g.dispatcher.Strand().Execute(func() {
		if g.state != Open && g.state != Connected {
			handler(errInvalidTransition("send", g.state))
			return
		}
		dest := ep
		if dest.IsUndefined() {
			if !g.hasPeer {
				handler(errkind.New(errkind.Invalid, "no destination and no fixed peer"))
				return
			}
			dest = g.peer
		}
		_, err := g.desc.SendTo(payload, dest)
		handler(err)
	})
}

// Receive requests the next datagram, completing cb synchronously if one
// is already buffered. from carries the sender's endpoint.Endpoint.
func (g *DatagramSocket) Receive(cb func(data []byte, from endpoint.Endpoint, err error)) {
	g.dispatcher.Strand().Execute(func() {
		if g.state != Open && g.state != Connected {
			cb(nil, endpoint.Endpoint{}, errInvalidTransition("receive", g.state))
			return
		}
		g.readQ.ReceiveDatagram(func(data []byte, meta any, err error) {
			if err != nil {
				cb(nil, endpoint.Endpoint{}, err)
				return
			}
			from, _ := meta.(endpoint.Endpoint)
			cb(data, from, nil)
		})
	})
}

// OnReadable drains pending datagrams from the OS into the read queue,
// filtering to the fixed peer if Connect was called.
func (g *DatagramSocket) OnReadable() {
	g.dispatcher.Strand().Execute(func() {
		if g.state != Open && g.state != Connected {
			return
		}
		for {
			buf := make([]byte, 64*1024)
			n, from, err := g.desc.ReceiveFrom(buf)
			if err != nil {
				if errkind.Of(err) == errkind.WouldBlock {
					return
				}
				g.readQ.Close(err)
				return
			}
			if g.hasPeer && from.String() != g.peer.String() {
				continue
			}
			g.readQ.Push(buf[:n], from)
		}
	})
}

// OnWritable is a no-op: datagram sends are fire-and-forget against the OS
// socket buffer rather than queued for later drain.
func (g *DatagramSocket) OnWritable() {}

// FD returns the raw descriptor.
func (g *DatagramSocket) FD() int { return g.fd }

// Shutdown marks the socket SHUTDOWN, closing the read queue with EOF.
func (g *DatagramSocket) Shutdown() error {
	errc := make(chan error, 1)
	g.dispatcher.Strand().Execute(func() {
		if g.state != Open && g.state != Connected {
			errc <- errInvalidTransition("shutdown", g.state)
			return
		}
		g.state = Shutdown
		g.readQ.Close(errkind.New(errkind.EOF, "shut down"))
		errc <- nil
	})
	return <-errc
}

// AcquireProcessor / ReleaseProcessor expose the detach handshake.
func (g *DatagramSocket) AcquireProcessor() detach.AcquireResult { return g.detach.AcquireProcessor() }

func (g *DatagramSocket) ReleaseProcessor() {
	if g.detach.ReleaseProcessor() == detach.Completed {
		g.dispatcher.Strand().Execute(func() {
			cb := g.pendingDetachCb
			g.pendingDetachCb = nil
			g.finishDetach(cb)
		})
	}
}

func (g *DatagramSocket) finishDetach(onDone func(error)) {
	g.readQ.Close(errkind.New(errkind.Cancelled, "socket detached"))
	if g.registered {
		_ = g.dispatcher.Reactor().Unregister(g.fd)
		g.registered = false
	}
	_ = g.desc.Close()
	g.state = Detached
	if onDone != nil {
		onDone(nil)
	}
}

// Detach blocks until the socket is fully torn down.
func (g *DatagramSocket) Detach() error {
	done := make(chan error, 1)
	g.DetachAsync(func(err error) { done <- err })
	return <-done
}

// DetachAsync requests detachment without blocking the caller.
func (g *DatagramSocket) DetachAsync(onDone func(error)) {
	g.dispatcher.Strand().Execute(func() {
		if g.state == Detaching || g.state == Detached {
			onDone(errkind.New(errkind.Already, "already detaching"))
			return
		}
		g.state = Detaching
		switch g.detach.Detach() {
		case detach.DetachCompleted:
			g.finishDetach(onDone)
		case detach.Pending:
			g.pendingDetachCb = onDone
		case detach.Invalid:
			onDone(errkind.New(errkind.Invalid, "detach invalid"))
		}
	})
}
