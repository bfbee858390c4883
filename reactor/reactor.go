// Package reactor implements the readiness-based multiplexer: register a
// socket with a set of interests, block in Wait for events, and react. It
// also implements the self-pipe controller used to interrupt a blocked
// Wait from another goroutine.
package reactor

import "time"

// Interest is a bitmask of event kinds a registration is interested in.
type Interest uint32

const (
	Readable Interest = 1 << iota
	Writable
	ErrorInterest
	Notifications
)

func (i Interest) Has(bit Interest) bool { return i&bit != 0 }

// Event names a socket (by fd) and the interest(s) that became ready.
type Event struct {
	FD     int
	Events Interest
	Data   any
}

// Reactor is the readiness-based multiplexer contract (§4.2). Register adds
// fd with the given initial interests; ShowInterest/HideInterest change
// interest without unregistering; Unregister removes fd entirely (the
// two-phase detach handshake lives in package detach and the socket
// types, which call Unregister once it completes); Wait
// blocks until at least one event is ready or deadline elapses (a zero
// deadline means block indefinitely); Wake interrupts a blocked Wait from
// any goroutine.
type Reactor interface {
	Register(fd int, interests Interest, data any) error
	ShowInterest(fd int, bit Interest) error
	HideInterest(fd int, bit Interest) error
	Unregister(fd int) error
	Wait(deadline time.Time) ([]Event, error)
	Wake() error
	Close() error
}

// waitTimeoutMillis converts an absolute deadline into a millisecond
// timeout suitable for epoll_wait/kevent, where -1 means block
// indefinitely and 0 means a pure poll.
func waitTimeoutMillis(deadline time.Time) int {
	if deadline.IsZero() {
		return -1
	}
	d := time.Until(deadline)
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(1<<31-1) {
		ms = int64(1<<31 - 1)
	}
	return int(ms)
}
