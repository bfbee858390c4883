//go:build darwin

package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-asyncsock/errkind"
)

// wakeController is the self-pipe used to interrupt a blocked kevent from
// another goroutine. Darwin has no eventfd, so a plain pipe plays the same
// role: write one byte to signal, read (and discard) to drain.
type wakeController struct {
	r, w int
}

func newWakeController() (*wakeController, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, errkind.Wrap(errkind.Unknown, "pipe2", err)
	}
	return &wakeController{r: fds[0], w: fds[1]}, nil
}

func (w *wakeController) readFD() int { return w.r }

func (w *wakeController) signal() error {
	_, err := unix.Write(w.w, []byte{1})
	if err != nil && err != unix.EAGAIN {
		return errkind.Wrap(errkind.Unknown, "pipe write", err)
	}
	return nil
}

func (w *wakeController) drain() {
	var buf [64]byte
	for {
		_, err := unix.Read(w.r, buf[:])
		if err != nil {
			return
		}
	}
}

func (w *wakeController) close() {
	_ = unix.Close(w.r)
	_ = unix.Close(w.w)
}
