// Package proactor implements the completion-based multiplexer (§4.3): a
// portable, goroutine-backed proactor. Rather than a native completion port,
// each submitted operation runs its blocking syscall on a dedicated
// goroutine (via the attached socket's blocking descriptor) and posts its
// result to a shared completion channel that Wait drains — the same
// contract a native IOCP/io_uring backend would present to the socket
// layer, so socket state machines are written once against this interface.
package proactor

import (
	"context"
	"sync"
	"time"

	"github.com/joeycumines/go-asyncsock/endpoint"
	"github.com/joeycumines/go-asyncsock/errkind"
)

// OpKind enumerates the operations a Proactor can be asked to perform.
type OpKind int

const (
	OpAccept OpKind = iota
	OpConnect
	OpSend
	OpReceive
	OpShutdown
)

// Completion is delivered by Wait for one finished (or cancelled) operation.
type Completion struct {
	Socket   *Handle
	Kind     OpKind
	N        int
	Endpoint endpoint.Endpoint
	Err      error
}

// Backend is the minimal descriptor surface a Proactor drives. It is
// satisfied by *descriptor.Descriptor; defined locally to avoid a Linux
// build-tag dependency leaking into this portable package.
type Backend interface {
	Send([]byte) (int, error)
	Receive([]byte) (int, error)
	SendTo([]byte, endpoint.Endpoint) (int, error)
	ReceiveFrom([]byte) (int, endpoint.Endpoint, error)
	Accept() (int, endpoint.Endpoint, error)
}

// Handle is an attached socket: the Backend plus the per-attachment
// cancellation state submitted operations observe.
type Handle struct {
	backend Backend

	mu        sync.Mutex
	cancelled map[uint64]bool
	nextToken uint64
}

// Proactor is the completion-based multiplexer. It has no read/write queue
// of its own (§4.3): user-submitted buffers remain pinned until the
// operation completes or is cancelled.
type Proactor struct {
	completions chan Completion
	closed      chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// New returns a ready-to-use Proactor.
func New() *Proactor {
	return &Proactor{
		completions: make(chan Completion, 256),
		closed:      make(chan struct{}),
	}
}

// Attach registers backend for operations, returning a Handle to submit
// them against.
func (p *Proactor) Attach(backend Backend) *Handle {
	return &Handle{backend: backend, cancelled: make(map[uint64]bool)}
}

// Token identifies one in-flight operation for Cancel.
type Token uint64

func (h *Handle) newToken() Token {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextToken++
	return Token(h.nextToken)
}

func (h *Handle) isCancelled(tok Token) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled[uint64(tok)]
}

// Cancel best-effort cancels an in-flight operation. The OS request, if
// already started, may still report success, partial completion, or
// cancellation, per §4.3's backpressure note; this only suppresses
// newly-observed completions for tok from racing ahead of an explicit
// cancellation the caller already committed to.
func (h *Handle) Cancel(tok Token) {
	h.mu.Lock()
	h.cancelled[uint64(tok)] = true
	h.mu.Unlock()
}

func (p *Proactor) post(c Completion) {
	select {
	case p.completions <- c:
	case <-p.closed:
	}
}

// SubmitAccept runs accept on h's listener backend, posting a completion
// when a connection arrives, ctx is done, or the operation is cancelled.
func (p *Proactor) SubmitAccept(ctx context.Context, h *Handle) Token {
	tok := h.newToken()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				p.post(Completion{Socket: h, Kind: OpAccept, Err: errkind.New(errkind.Cancelled, "accept cancelled")})
				return
			default:
			}
			fd, ep, err := h.backend.Accept()
			if err != nil {
				if errkind.Of(err) == errkind.WouldBlock {
					select {
					case <-time.After(time.Millisecond):
						continue
					case <-ctx.Done():
						p.post(Completion{Socket: h, Kind: OpAccept, Err: errkind.New(errkind.Cancelled, "accept cancelled")})
						return
					}
				}
				p.post(Completion{Socket: h, Kind: OpAccept, Err: err})
				return
			}
			if h.isCancelled(tok) {
				p.post(Completion{Socket: h, Kind: OpAccept, Err: errkind.New(errkind.Cancelled, "accept cancelled")})
				return
			}
			p.post(Completion{Socket: h, Kind: OpAccept, N: fd, Endpoint: ep})
			return
		}
	}()
	return tok
}

// SubmitSend runs a blocking send of buf on h, posting a completion with
// the bytes transferred.
func (p *Proactor) SubmitSend(ctx context.Context, h *Handle, buf []byte) Token {
	tok := h.newToken()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		n, err := h.backend.Send(buf)
		if h.isCancelled(tok) {
			p.post(Completion{Socket: h, Kind: OpSend, Err: errkind.New(errkind.Cancelled, "send cancelled")})
			return
		}
		p.post(Completion{Socket: h, Kind: OpSend, N: n, Err: err})
	}()
	return tok
}

// SubmitReceive runs a blocking receive into buf on h.
func (p *Proactor) SubmitReceive(ctx context.Context, h *Handle, buf []byte) Token {
	tok := h.newToken()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		n, err := h.backend.Receive(buf)
		if h.isCancelled(tok) {
			p.post(Completion{Socket: h, Kind: OpReceive, Err: errkind.New(errkind.Cancelled, "receive cancelled")})
			return
		}
		p.post(Completion{Socket: h, Kind: OpReceive, N: n, Err: err})
	}()
	return tok
}

// SubmitReceiveFrom is the datagram counterpart of SubmitReceive, reporting
// the sender's endpoint.
func (p *Proactor) SubmitReceiveFrom(ctx context.Context, h *Handle, buf []byte) Token {
	tok := h.newToken()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		n, ep, err := h.backend.ReceiveFrom(buf)
		if h.isCancelled(tok) {
			p.post(Completion{Socket: h, Kind: OpReceive, Err: errkind.New(errkind.Cancelled, "receive cancelled")})
			return
		}
		p.post(Completion{Socket: h, Kind: OpReceive, N: n, Endpoint: ep, Err: err})
	}()
	return tok
}

// SubmitSendTo is the datagram counterpart of SubmitSend.
func (p *Proactor) SubmitSendTo(ctx context.Context, h *Handle, buf []byte, to endpoint.Endpoint) Token {
	tok := h.newToken()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		n, err := h.backend.SendTo(buf, to)
		if h.isCancelled(tok) {
			p.post(Completion{Socket: h, Kind: OpSend, Err: errkind.New(errkind.Cancelled, "send cancelled")})
			return
		}
		p.post(Completion{Socket: h, Kind: OpSend, N: n, Err: err})
	}()
	return tok
}

// Wait blocks until a completion is available or deadline elapses (a zero
// deadline blocks indefinitely).
func (p *Proactor) Wait(deadline time.Time) (Completion, bool) {
	if deadline.IsZero() {
		select {
		case c := <-p.completions:
			return c, true
		case <-p.closed:
			return Completion{}, false
		}
	}
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case c := <-p.completions:
		return c, true
	case <-timer.C:
		return Completion{}, false
	case <-p.closed:
		return Completion{}, false
	}
}

// Close stops accepting new completions and waits for in-flight operation
// goroutines to finish posting (or observe closure and exit).
func (p *Proactor) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
	p.wg.Wait()
}
