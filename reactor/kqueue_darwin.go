//go:build darwin

package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-asyncsock/errkind"
)

// registration is the per-fd bookkeeping kept alongside kqueue's own filter
// registration.
type registration struct {
	interests Interest
	data      any
}

// Kqueue is the Darwin/BSD readiness multiplexer, grounded on
// kqueue/kevent, mirroring Epoll's map-based registration and spurious
// wake-up handling.
type Kqueue struct {
	kq int

	mu   sync.RWMutex
	regs map[int]*registration

	eventBuf []unix.Kevent_t

	wake *wakeController
}

// NewKqueue creates and initialises a kqueue instance.
func NewKqueue() (*Kqueue, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, errkind.Wrap(errkind.Unknown, "kqueue", err)
	}
	unix.CloseOnExec(kq)
	wc, err := newWakeController()
	if err != nil {
		_ = unix.Close(kq)
		return nil, err
	}
	k := &Kqueue{
		kq:       kq,
		regs:     make(map[int]*registration),
		eventBuf: make([]unix.Kevent_t, 256),
		wake:     wc,
	}
	ev := unix.Kevent_t{
		Ident:  uint64(wc.readFD()),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		_ = k.Close()
		return nil, errkind.Wrap(errkind.Unknown, "kevent add wake fd", err)
	}
	return k, nil
}

func (k *Kqueue) changeFilters(fd int, interests Interest, flags uint16) error {
	var changes []unix.Kevent_t
	if interests.Has(Readable) || interests.Has(Notifications) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if interests.Has(Writable) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(k.kq, changes, nil, nil)
	return err
}

func (k *Kqueue) Register(fd int, interests Interest, data any) error {
	k.mu.Lock()
	if _, exists := k.regs[fd]; exists {
		k.mu.Unlock()
		return errkind.New(errkind.Already, "fd already registered")
	}
	k.regs[fd] = &registration{interests: interests, data: data}
	k.mu.Unlock()

	if err := k.changeFilters(fd, interests, unix.EV_ADD|unix.EV_ENABLE); err != nil {
		k.mu.Lock()
		delete(k.regs, fd)
		k.mu.Unlock()
		return errkind.Wrap(errkind.Unknown, "kevent add", err)
	}
	return nil
}

func (k *Kqueue) ShowInterest(fd int, bit Interest) error {
	k.mu.Lock()
	reg, ok := k.regs[fd]
	if !ok {
		k.mu.Unlock()
		return errkind.New(errkind.Invalid, "fd not registered")
	}
	reg.interests |= bit
	k.mu.Unlock()
	if err := k.changeFilters(fd, bit, unix.EV_ADD|unix.EV_ENABLE); err != nil {
		return errkind.Wrap(errkind.Unknown, "kevent enable", err)
	}
	return nil
}

func (k *Kqueue) HideInterest(fd int, bit Interest) error {
	k.mu.Lock()
	reg, ok := k.regs[fd]
	if !ok {
		k.mu.Unlock()
		return errkind.New(errkind.Invalid, "fd not registered")
	}
	reg.interests &^= bit
	k.mu.Unlock()
	if err := k.changeFilters(fd, bit, unix.EV_DELETE); err != nil {
		return errkind.Wrap(errkind.Unknown, "kevent disable", err)
	}
	return nil
}

func (k *Kqueue) Unregister(fd int) error {
	k.mu.Lock()
	reg, ok := k.regs[fd]
	if !ok {
		k.mu.Unlock()
		return errkind.New(errkind.Invalid, "fd not registered")
	}
	delete(k.regs, fd)
	k.mu.Unlock()
	_ = k.changeFilters(fd, reg.interests, unix.EV_DELETE)
	return nil
}

// Wait blocks until at least one registered fd is ready, the wake
// controller is signalled, or deadline elapses.
func (k *Kqueue) Wait(deadline time.Time) ([]Event, error) {
	for {
		var ts *unix.Timespec
		if !deadline.IsZero() {
			d := time.Until(deadline)
			if d < 0 {
				d = 0
			}
			spec := unix.NsecToTimespec(d.Nanoseconds())
			ts = &spec
		}
		n, err := unix.Kevent(k.kq, nil, k.eventBuf, ts)
		if err != nil {
			if err == unix.EINTR {
				if !deadline.IsZero() && !time.Now().Before(deadline) {
					return nil, nil
				}
				continue
			}
			return nil, errkind.Wrap(errkind.Unknown, "kevent wait", err)
		}
		if n == 0 {
			return nil, nil
		}

		var events []Event
		woken := false
		for i := 0; i < n; i++ {
			fd := int(k.eventBuf[i].Ident)
			if fd == k.wake.readFD() {
				k.wake.drain()
				woken = true
				continue
			}
			k.mu.RLock()
			reg, ok := k.regs[fd]
			k.mu.RUnlock()
			if !ok {
				continue
			}
			var ev Interest
			switch k.eventBuf[i].Filter {
			case unix.EVFILT_READ:
				ev = Readable
			case unix.EVFILT_WRITE:
				ev = Writable
			}
			if k.eventBuf[i].Flags&unix.EV_EOF != 0 {
				ev |= ErrorInterest
			}
			events = append(events, Event{FD: fd, Events: ev & (reg.interests | ErrorInterest), Data: reg.data})
		}
		if len(events) == 0 {
			if woken || (!deadline.IsZero() && !time.Now().Before(deadline)) {
				return nil, nil
			}
			continue
		}
		return events, nil
	}
}

func (k *Kqueue) Wake() error {
	return k.wake.signal()
}

func (k *Kqueue) Close() error {
	k.wake.close()
	return unix.Close(k.kq)
}
