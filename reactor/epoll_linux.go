//go:build linux

package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-asyncsock/errkind"
)

// registration is the per-fd bookkeeping kept alongside the kernel's own
// interest set.
type registration struct {
	interests Interest
	data      any
}

// Epoll is the Linux readiness multiplexer, grounded on epoll_create1 /
// epoll_ctl / epoll_wait. Direct fd-indexed lookup is replaced with a map
// here (relative to the teacher's fixed [65536]fdInfo array) since the
// engine does not bound descriptor counts the way the teacher's JS loop
// does.
type Epoll struct {
	epfd int

	mu   sync.RWMutex
	regs map[int]*registration

	eventBuf []unix.EpollEvent

	wake *wakeController
}

// NewEpoll creates and initialises an epoll instance.
func NewEpoll() (*Epoll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errkind.Wrap(errkind.Unknown, "epoll_create1", err)
	}
	wc, err := newWakeController()
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	e := &Epoll{
		epfd:     epfd,
		regs:     make(map[int]*registration),
		eventBuf: make([]unix.EpollEvent, 256),
		wake:     wc,
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wc.readFD(), &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wc.readFD()),
	}); err != nil {
		_ = e.Close()
		return nil, errkind.Wrap(errkind.Unknown, "epoll_ctl add wake fd", err)
	}
	return e, nil
}

func interestsToEpoll(i Interest) uint32 {
	var ev uint32
	if i.Has(Readable) || i.Has(Notifications) {
		ev |= unix.EPOLLIN
	}
	if i.Has(Writable) {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func epollToInterests(ev uint32) Interest {
	var i Interest
	if ev&unix.EPOLLIN != 0 {
		i |= Readable
	}
	if ev&unix.EPOLLOUT != 0 {
		i |= Writable
	}
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		i |= ErrorInterest
	}
	return i
}

func (e *Epoll) Register(fd int, interests Interest, data any) error {
	e.mu.Lock()
	if _, exists := e.regs[fd]; exists {
		e.mu.Unlock()
		return errkind.New(errkind.Already, "fd already registered")
	}
	e.regs[fd] = &registration{interests: interests, data: data}
	e.mu.Unlock()

	err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: interestsToEpoll(interests),
		Fd:     int32(fd),
	})
	if err != nil {
		e.mu.Lock()
		delete(e.regs, fd)
		e.mu.Unlock()
		return errkind.Wrap(errkind.Unknown, "epoll_ctl add", err)
	}
	return nil
}

func (e *Epoll) modify(fd int) error {
	e.mu.RLock()
	reg, ok := e.regs[fd]
	var interests Interest
	if ok {
		interests = reg.interests
	}
	e.mu.RUnlock()
	if !ok {
		return errkind.New(errkind.Invalid, "fd not registered")
	}
	err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: interestsToEpoll(interests),
		Fd:     int32(fd),
	})
	if err != nil {
		return errkind.Wrap(errkind.Unknown, "epoll_ctl mod", err)
	}
	return nil
}

func (e *Epoll) ShowInterest(fd int, bit Interest) error {
	e.mu.Lock()
	reg, ok := e.regs[fd]
	if !ok {
		e.mu.Unlock()
		return errkind.New(errkind.Invalid, "fd not registered")
	}
	reg.interests |= bit
	e.mu.Unlock()
	return e.modify(fd)
}

func (e *Epoll) HideInterest(fd int, bit Interest) error {
	e.mu.Lock()
	reg, ok := e.regs[fd]
	if !ok {
		e.mu.Unlock()
		return errkind.New(errkind.Invalid, "fd not registered")
	}
	reg.interests &^= bit
	e.mu.Unlock()
	return e.modify(fd)
}

func (e *Epoll) Unregister(fd int) error {
	e.mu.Lock()
	if _, ok := e.regs[fd]; !ok {
		e.mu.Unlock()
		return errkind.New(errkind.Invalid, "fd not registered")
	}
	delete(e.regs, fd)
	e.mu.Unlock()
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return errkind.Wrap(errkind.Unknown, "epoll_ctl del", err)
	}
	return nil
}

// Wait blocks until at least one registered fd is ready, the wake
// controller is signalled, or deadline elapses. A Wake signal with no other
// event ready returns no events; readiness reported only for fds
// unregistered in the meantime is dropped and Wait keeps waiting.
func (e *Epoll) Wait(deadline time.Time) ([]Event, error) {
	for {
		timeoutMs := waitTimeoutMillis(deadline)
		n, err := unix.EpollWait(e.epfd, e.eventBuf, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				if !deadline.IsZero() && !time.Now().Before(deadline) {
					return nil, nil
				}
				continue
			}
			return nil, errkind.Wrap(errkind.Unknown, "epoll_wait", err)
		}
		if n == 0 {
			return nil, nil
		}

		var events []Event
		woken := false
		for i := 0; i < n; i++ {
			fd := int(e.eventBuf[i].Fd)
			if fd == e.wake.readFD() {
				e.wake.drain()
				woken = true
				continue
			}
			e.mu.RLock()
			reg, ok := e.regs[fd]
			e.mu.RUnlock()
			if !ok {
				continue
			}
			events = append(events, Event{
				FD:     fd,
				Events: epollToInterests(e.eventBuf[i].Events) & (reg.interests | ErrorInterest),
				Data:   reg.data,
			})
		}
		if len(events) == 0 {
			// purely a wake-up or events for fds raced away under us.
			if woken || (!deadline.IsZero() && !time.Now().Before(deadline)) {
				return nil, nil
			}
			continue
		}
		return events, nil
	}
}

func (e *Epoll) Wake() error {
	return e.wake.signal()
}

func (e *Epoll) Close() error {
	e.wake.close()
	return unix.Close(e.epfd)
}
