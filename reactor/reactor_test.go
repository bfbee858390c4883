//go:build linux || darwin

package reactor

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReactorReadableEvent(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	pr, pw, err := socketPair(t)
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	fd := fdOf(t, pr)
	require.NoError(t, r.Register(fd, Readable, "marker"))

	_, err = pw.Write([]byte{1})
	require.NoError(t, err)

	events, err := r.Wait(time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, fd, events[0].FD)
	require.True(t, events[0].Events.Has(Readable))
	require.Equal(t, "marker", events[0].Data)
}

func TestReactorWakeUnblocksWait(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	done := make(chan error, 1)
	go func() {
		_, err := r.Wait(time.Time{})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Wake())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Wake")
	}
}

func socketPair(t *testing.T) (*net.TCPConn, *net.TCPConn, error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var serverConn net.Conn
	accepted := make(chan struct{})
	go func() {
		serverConn, _ = ln.Accept()
		close(accepted)
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	<-accepted

	return serverConn.(*net.TCPConn), clientConn.(*net.TCPConn), nil
}

func fdOf(t *testing.T, c *net.TCPConn) int {
	t.Helper()
	raw, err := c.SyscallConn()
	require.NoError(t, err)
	var fd int
	err = raw.Control(func(f uintptr) { fd = int(f) })
	require.NoError(t, err)
	return fd
}
