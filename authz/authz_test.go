package authz_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joeycumines/go-asyncsock/authz"
)

// TestScenarioAuthorisationLimit follows the literal end-to-end scenario:
// bound 1; acquire OK count=1; acquire LIMIT count=1; release OK count=0;
// cancel WasNotAcquired count=-1; subsequent acquire Cancelled.
func TestScenarioAuthorisationLimit(t *testing.T) {
	a := authz.NewBounded(1)

	assert.Equal(t, authz.OK, a.Acquire())
	assert.Equal(t, 1, a.Count())

	assert.Equal(t, authz.Limit, a.Acquire())
	assert.Equal(t, 1, a.Count())

	assert.Equal(t, authz.OK, a.Release())
	assert.Equal(t, 0, a.Count())

	assert.Equal(t, authz.WasNotAcquired, a.Cancel())
	assert.Equal(t, -1, a.Count())

	assert.Equal(t, authz.Cancelled, a.Acquire())
}

func TestReleaseWithoutAcquireIsInvalid(t *testing.T) {
	a := authz.New()
	assert.Equal(t, authz.Invalid, a.Release())
	assert.Equal(t, 0, a.Count())
}

func TestCancelWhileLeaseHeldFails(t *testing.T) {
	a := authz.New()
	assert.Equal(t, authz.OK, a.Acquire())
	assert.Equal(t, authz.Invalid, a.Cancel())
	assert.False(t, a.Cancelled())
	assert.Equal(t, 1, a.Count())
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	a := authz.New()
	assert.Equal(t, authz.OK, a.Acquire())
	assert.Equal(t, authz.OK, a.Release())
	assert.Equal(t, 0, a.Count())
}

func TestConcurrentAcquireRespectsBound(t *testing.T) {
	a := authz.NewBounded(10)
	var wg sync.WaitGroup
	var oks, limits int32
	var mu sync.Mutex
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := a.Acquire()
			mu.Lock()
			if r == authz.OK {
				oks++
			} else if r == authz.Limit {
				limits++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 10, oks)
	assert.EqualValues(t, 90, limits)
	assert.Equal(t, 10, a.Count())
}
