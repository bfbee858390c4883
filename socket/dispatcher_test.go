//go:build linux

package socket_test

import (
	"time"

	"github.com/joeycumines/go-asyncsock/reactor"
	"github.com/joeycumines/go-asyncsock/strand"
	"github.com/joeycumines/go-asyncsock/timer"
)

// fakeReactor satisfies reactor.Reactor with bookkeeping only; tests drive
// OnReadable/OnWritable directly instead of relying on a real poll loop.
type fakeReactor struct {
	registered map[int]reactor.Interest
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{registered: make(map[int]reactor.Interest)}
}

func (r *fakeReactor) Register(fd int, interests reactor.Interest, data any) error {
	r.registered[fd] = interests
	return nil
}

func (r *fakeReactor) ShowInterest(fd int, bit reactor.Interest) error {
	r.registered[fd] |= bit
	return nil
}

func (r *fakeReactor) HideInterest(fd int, bit reactor.Interest) error {
	r.registered[fd] &^= bit
	return nil
}

func (r *fakeReactor) Unregister(fd int) error {
	delete(r.registered, fd)
	return nil
}

func (r *fakeReactor) Wait(deadline time.Time) ([]reactor.Event, error) { return nil, nil }
func (r *fakeReactor) Wake() error                                      { return nil }
func (r *fakeReactor) Close() error                                     { return nil }

// fakeDispatcher is a socket.Dispatcher backed by a real Strand and Wheel
// (both are plain data structures, safe to use directly) plus a fakeReactor.
type fakeDispatcher struct {
	str   *strand.Strand
	wheel *timer.Wheel
	react *fakeReactor
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		str:   strand.New(),
		wheel: timer.New(),
		react: newFakeReactor(),
	}
}

func (d *fakeDispatcher) Strand() *strand.Strand   { return d.str }
func (d *fakeDispatcher) Timers() *timer.Wheel     { return d.wheel }
func (d *fakeDispatcher) Reactor() reactor.Reactor { return d.react }

// waitUntil polls fn every few milliseconds until it returns true or
// timeout elapses, mirroring the busy-retry pattern descriptor_test.go uses
// for non-blocking socket operations.
func waitUntil(timeout time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if fn() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
