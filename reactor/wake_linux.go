//go:build linux

package reactor

import (
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-asyncsock/errkind"
)

// wakeController is the self-pipe (here, eventfd) used to interrupt a
// blocked epoll_wait from another goroutine. writing increments the kernel
// counter; draining resets it to zero. Spurious wake-ups (the fd ready with
// nothing else to report) are handled by the caller looping on Wait.
type wakeController struct {
	fd      int
	pending int32
}

func newWakeController() (*wakeController, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, errkind.Wrap(errkind.Unknown, "eventfd", err)
	}
	return &wakeController{fd: fd}, nil
}

func (w *wakeController) readFD() int { return w.fd }

// signal increments the interrupt count. Multiple signals before a drain
// coalesce into a single wake-up, which is fine: Wait only needs to know
// "something happened", not how many times.
func (w *wakeController) signal() error {
	if !atomic.CompareAndSwapInt32(&w.pending, 0, 1) {
		return nil
	}
	var buf [8]byte
	buf[7] = 1
	_, err := unix.Write(w.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return errkind.Wrap(errkind.Unknown, "eventfd write", err)
	}
	return nil
}

func (w *wakeController) drain() {
	atomic.StoreInt32(&w.pending, 0)
	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
		if err != nil {
			return
		}
	}
}

func (w *wakeController) close() {
	_ = unix.Close(w.fd)
}
