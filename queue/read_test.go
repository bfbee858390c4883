package queue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-asyncsock/queue"
)

func TestReceiveStreamSynchronous(t *testing.T) {
	q := queue.NewReadQueue(0, 1024)
	q.Push([]byte("hello"), nil)

	var got []byte
	q.ReceiveStream(1, 0, func(data []byte, err error) {
		got = data
		require.NoError(t, err)
	})
	assert.Equal(t, []byte("hello"), got)
}

func TestReceiveStreamWaitsForMinimum(t *testing.T) {
	q := queue.NewReadQueue(0, 1024)
	var got []byte
	delivered := false
	q.ReceiveStream(3, 0, func(data []byte, err error) {
		got = data
		delivered = true
	})
	assert.False(t, delivered)

	q.Push([]byte("a"), nil)
	assert.False(t, delivered)
	q.Push([]byte("bc"), nil)
	require.True(t, delivered)
	assert.Equal(t, []byte("abc"), got)
}

func TestReceiveStreamSpansMessages(t *testing.T) {
	q := queue.NewReadQueue(0, 1024)
	q.Push([]byte("ab"), nil)
	q.Push([]byte("cd"), nil)

	var got []byte
	q.ReceiveStream(1, 3, func(data []byte, err error) { got = data })
	assert.Equal(t, []byte("abc"), got)
	assert.EqualValues(t, 1, q.Len())
}

func TestReceiveDatagramPreservesBoundaries(t *testing.T) {
	q := queue.NewReadQueue(0, 1024)
	q.Push([]byte{0x55}, "peer-a")
	q.Push([]byte{0x66}, "peer-b")

	var data1 []byte
	var meta1 any
	q.ReceiveDatagram(func(d []byte, m any, err error) {
		data1 = d
		meta1 = m
	})
	assert.Equal(t, []byte{0x55}, data1)
	assert.Equal(t, "peer-a", meta1)

	var data2 []byte
	q.ReceiveDatagram(func(d []byte, m any, err error) { data2 = d })
	assert.Equal(t, []byte{0x66}, data2)
}

// TestScenarioDatagramUnicast mirrors the literal end-to-end scenario: a
// single-byte datagram delivered with its peer endpoint metadata.
func TestScenarioDatagramUnicast(t *testing.T) {
	q := queue.NewReadQueue(0, 1024)
	q.Push([]byte{0x55}, "127.0.0.1:P1")

	var n int
	var meta any
	var payload []byte
	q.ReceiveDatagram(func(d []byte, m any, err error) {
		require.NoError(t, err)
		payload = d
		meta = m
		n = len(d)
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, []byte{0x55}, payload)
	assert.Equal(t, "127.0.0.1:P1", meta)
}

func TestCloseDeliversToWaiters(t *testing.T) {
	q := queue.NewReadQueue(0, 1024)
	var streamErr, dgramErr error
	q.ReceiveStream(1, 0, func(data []byte, err error) { streamErr = err })
	q.ReceiveDatagram(func(d []byte, m any, err error) { dgramErr = err })

	q.Close(assert.AnError)
	assert.Equal(t, assert.AnError, streamErr)
	assert.Equal(t, assert.AnError, dgramErr)
}

func TestCloseFailsFutureReceives(t *testing.T) {
	q := queue.NewReadQueue(0, 1024)
	q.Close(assert.AnError)

	var err error
	q.ReceiveStream(1, 0, func(data []byte, e error) { err = e })
	assert.Equal(t, assert.AnError, err)
}
