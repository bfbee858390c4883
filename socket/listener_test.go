//go:build linux

package socket_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-asyncsock/descriptor"
	"github.com/joeycumines/go-asyncsock/endpoint"
	"github.com/joeycumines/go-asyncsock/errkind"
	"github.com/joeycumines/go-asyncsock/socket"
)

// listenerSourceEndpoint recovers the wildcard port a ListenerSocket bound
// to, by wrapping its raw fd in a throwaway Descriptor; Acquire/Release
// record ownership only, so this never touches the underlying handle.
func listenerSourceEndpoint(t *testing.T, l *socket.ListenerSocket) endpoint.Endpoint {
	t.Helper()
	probe := descriptor.New()
	require.NoError(t, probe.Acquire(l.FD(), endpoint.TCPIPv4))
	ep, err := probe.SourceEndpoint()
	require.NoError(t, err)
	_, err = probe.Release()
	require.NoError(t, err)
	return ep
}

func TestListenerSocketOnReadableAcceptsConnection(t *testing.T) {
	d := newFakeDispatcher()
	l := socket.NewListener(d, 1, 1<<20)
	require.NoError(t, l.Open(endpoint.IP(net.IPv4zero, 0), endpoint.TCPIPv4, 4, true))

	srcEP := listenerSourceEndpoint(t, l)

	client := descriptor.New()
	require.NoError(t, client.Open(endpoint.TCPIPv4))
	defer client.Close()
	err := client.Connect(srcEP)
	if err != nil {
		require.Equal(t, errkind.WouldBlock, errkind.Of(err))
	}

	var gotFD int
	var gotTransport endpoint.Transport
	var gotErr error
	done := make(chan struct{})
	l.Accept(func(fd int, transport endpoint.Transport, peer endpoint.Endpoint, cbErr error) {
		gotFD = fd
		gotTransport = transport
		gotErr = cbErr
		close(done)
	})

	require.True(t, waitUntil(2*time.Second, func() bool {
		l.OnReadable()
		select {
		case <-done:
			return true
		default:
			return false
		}
	}))
	require.NoError(t, gotErr)
	assert.Equal(t, endpoint.TCPIPv4, gotTransport)
	assert.NotEqual(t, -1, gotFD)

	accepted := descriptor.New()
	require.NoError(t, accepted.Acquire(gotFD, endpoint.TCPIPv4))
	require.NoError(t, accepted.Close())
}

func TestListenerSocketDetachDrainsPendingAccept(t *testing.T) {
	d := newFakeDispatcher()
	l := socket.NewListener(d, 2, 1<<20)
	require.NoError(t, l.Open(endpoint.IP(net.IPv4zero, 0), endpoint.TCPIPv4, 4, true))

	var acceptErr error
	done := make(chan struct{})
	l.Accept(func(fd int, transport endpoint.Transport, peer endpoint.Endpoint, err error) {
		acceptErr = err
		close(done)
	})

	require.NoError(t, l.Detach())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pending Accept was never completed by Detach")
	}
	assert.Equal(t, errkind.Cancelled, errkind.Of(acceptErr))
}
