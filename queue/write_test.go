package queue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-asyncsock/errkind"
	"github.com/joeycumines/go-asyncsock/queue"
)

func TestWriteQueueSubmitAndDrain(t *testing.T) {
	q := queue.NewWriteQueue(0, 1024)
	edge, err := q.Submit([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, queue.NoEdge, edge)

	data, edge := q.Drain(0)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, queue.NoEdge, edge)
	assert.EqualValues(t, 0, q.Len())
}

func TestWriteQueueRejectsOverHighWatermark(t *testing.T) {
	q := queue.NewWriteQueue(0, 4)
	_, err := q.Submit([]byte("1234"))
	require.NoError(t, err)

	_, err = q.Submit([]byte("5"))
	require.Error(t, err)
	assert.Equal(t, errkind.Limit, errkind.Of(err))
	assert.EqualValues(t, 4, q.Len())
}

func TestWriteQueuePartialDrainThenLowEdge(t *testing.T) {
	q := queue.NewWriteQueue(2, 10)
	_, err := q.Submit([]byte("1234567890"))
	require.NoError(t, err)

	_, edge := q.Drain(7)
	assert.Equal(t, queue.NoEdge, edge)

	_, edge = q.Drain(2)
	assert.Equal(t, queue.LowEdge, edge)
}
