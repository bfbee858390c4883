//go:build linux

package descriptor

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-asyncsock/endpoint"
	"github.com/joeycumines/go-asyncsock/errkind"
)

func TestStreamEcho(t *testing.T) {
	listener := New()
	require.NoError(t, listener.BindAny(endpoint.TCPIPv4, true))
	require.NoError(t, listener.Listen(1))

	srcEP, err := listener.SourceEndpoint()
	require.NoError(t, err)

	client := New()
	require.NoError(t, client.Open(endpoint.TCPIPv4))
	err = client.Connect(srcEP)
	if err != nil {
		require.Equal(t, errkind.WouldBlock, errkind.Of(err))
	}

	var serverFD int
	var acceptErr error
	for {
		var ep endpoint.Endpoint
		serverFD, ep, acceptErr = listener.Accept()
		if acceptErr == nil {
			_ = ep
			break
		}
		if errkind.Of(acceptErr) == errkind.WouldBlock {
			continue
		}
		t.Fatalf("accept: %v", acceptErr)
	}

	server := New()
	require.NoError(t, server.Acquire(serverFD, endpoint.TCPIPv4))

	if err != nil {
		require.NoError(t, client.ConnectResult())
	}

	n, err := client.Send([]byte{0x43})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	buf := make([]byte, 16)
	for {
		n, err = server.Receive(buf)
		if err == nil {
			break
		}
		if errkind.Of(err) == errkind.WouldBlock {
			continue
		}
		t.Fatalf("receive: %v", err)
	}
	require.Equal(t, 1, n)
	require.Equal(t, byte(0x43), buf[0])

	n, err = server.Send([]byte{0x31})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	for {
		n, err = client.Receive(buf)
		if err == nil {
			break
		}
		if errkind.Of(err) == errkind.WouldBlock {
			continue
		}
		t.Fatalf("receive: %v", err)
	}
	require.Equal(t, 1, n)
	require.Equal(t, byte(0x31), buf[0])

	require.NoError(t, client.Shutdown(ShutdownBoth))
	require.NoError(t, server.Shutdown(ShutdownBoth))

	n, err = server.Receive(buf)
	require.Equal(t, 0, n)
	require.Equal(t, errkind.EOF, errkind.Of(err))

	require.NoError(t, client.Close())
	require.NoError(t, server.Close())
	require.NoError(t, listener.Close())
	require.NoError(t, listener.Close()) // idempotent
}

func TestDatagramUnicast(t *testing.T) {
	s1 := New()
	require.NoError(t, s1.BindAny(endpoint.UDPIPv4, true))
	s2 := New()
	require.NoError(t, s2.BindAny(endpoint.UDPIPv4, true))

	ep1, err := s1.SourceEndpoint()
	require.NoError(t, err)
	ep2, err := s2.SourceEndpoint()
	require.NoError(t, err)

	n, err := s1.SendTo([]byte{0x55}, ep2)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	buf := make([]byte, 16)
	var from endpoint.Endpoint
	for {
		n, from, err = s2.ReceiveFrom(buf)
		if err == nil {
			break
		}
		if errkind.Of(err) == errkind.WouldBlock {
			continue
		}
		t.Fatalf("receivefrom: %v", err)
	}
	require.Equal(t, 1, n)
	require.Equal(t, byte(0x55), buf[0])
	require.Equal(t, ep1.Port(), from.Port())
	require.True(t, net.IP(ep1.Addr()).Equal(from.Addr()))

	require.NoError(t, s1.Close())
	require.NoError(t, s2.Close())
}

func TestOpenCloseIdempotent(t *testing.T) {
	d := New()
	require.NoError(t, d.Open(endpoint.TCPIPv4))
	require.Error(t, d.Open(endpoint.TCPIPv4))
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	require.False(t, d.IsOpen())
}
