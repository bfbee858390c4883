package endpoint_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-asyncsock/endpoint"
)

func TestParseFormatRoundTripV4(t *testing.T) {
	e, err := endpoint.Parse("127.0.0.1:8080")
	require.NoError(t, err)
	assert.True(t, e.IsIP())
	assert.Equal(t, "127.0.0.1:8080", e.String())
}

func TestParseFormatRoundTripV6(t *testing.T) {
	e, err := endpoint.Parse("[::1]:8080")
	require.NoError(t, err)
	assert.True(t, e.IsIP())
	assert.Equal(t, "[::1]:8080", e.String())
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := endpoint.Parse("not-an-endpoint")
	require.Error(t, err)
}

func TestLocalEndpoint(t *testing.T) {
	e := endpoint.Local("/tmp/sock")
	assert.True(t, e.IsLocal())
	assert.Equal(t, "/tmp/sock", e.String())
}

func TestUndefined(t *testing.T) {
	var e endpoint.Endpoint
	assert.True(t, e.IsUndefined())
	assert.Equal(t, "", e.String())
}

func TestTransportOf(t *testing.T) {
	v4, _ := endpoint.Parse("127.0.0.1:0")
	assert.Equal(t, endpoint.TCPIPv4, endpoint.TransportOf(v4, true))
	assert.Equal(t, endpoint.UDPIPv4, endpoint.TransportOf(v4, false))

	v6e := endpoint.IP(net.ParseIP("::1"), 0)
	assert.Equal(t, endpoint.TCPIPv6, endpoint.TransportOf(v6e, true))

	local := endpoint.Local("/tmp/x")
	assert.Equal(t, endpoint.LocalStream, endpoint.TransportOf(local, true))
	assert.Equal(t, endpoint.LocalDatagram, endpoint.TransportOf(local, false))
}

func TestTransportPredicates(t *testing.T) {
	assert.True(t, endpoint.TCPIPv4.IsStream())
	assert.True(t, endpoint.UDPIPv6.IsDatagram())
	assert.True(t, endpoint.LocalStream.IsLocal())
}
