package queue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joeycumines/go-asyncsock/queue"
)

// TestScenarioWatermarkEdgeTrigger follows the literal end-to-end scenario:
// high watermark 4; four 1-byte submits produce exactly one HighEdge; then
// draining back down produces exactly one LowEdge; a further submit-and-drain
// produces no additional watermark events.
func TestScenarioWatermarkEdgeTrigger(t *testing.T) {
	w := queue.NewWatermark(0, 4)

	var edges []queue.Edge
	for i := 0; i < 4; i++ {
		edges = append(edges, w.Adjust(1))
	}
	highCount := 0
	for _, e := range edges {
		if e == queue.HighEdge {
			highCount++
		}
	}
	assert.Equal(t, 1, highCount)

	lowCount := 0
	for i := 0; i < 4; i++ {
		if w.Adjust(-1) == queue.LowEdge {
			lowCount++
		}
	}
	assert.Equal(t, 1, lowCount)

	e1 := w.Adjust(1)
	e2 := w.Adjust(-1)
	assert.Equal(t, queue.NoEdge, e1)
	assert.Equal(t, queue.NoEdge, e2)
}

func TestWatermarkAlternation(t *testing.T) {
	w := queue.NewWatermark(2, 8)
	var seen []queue.Edge
	record := func(e queue.Edge) {
		if e != queue.NoEdge {
			seen = append(seen, e)
		}
	}
	record(w.Adjust(8))  // -> HighEdge
	record(w.Adjust(-7)) // current=1 < low=2 -> LowEdge
	record(w.Adjust(8))  // current=9 -> HighEdge
	record(w.Adjust(-8)) // current=1 -> LowEdge

	assert.Equal(t, []queue.Edge{queue.HighEdge, queue.LowEdge, queue.HighEdge, queue.LowEdge}, seen)
}

func TestWouldExceedHigh(t *testing.T) {
	w := queue.NewWatermark(0, 4)
	assert.False(t, w.WouldExceedHigh(4))
	assert.True(t, w.WouldExceedHigh(5))
	assert.False(t, w.WouldExceedHigh(0))
}

func TestUnboundedHighWatermark(t *testing.T) {
	w := queue.NewWatermark(0, 0)
	assert.False(t, w.WouldExceedHigh(1<<30))
	assert.Equal(t, queue.NoEdge, w.Adjust(1<<30))
}
