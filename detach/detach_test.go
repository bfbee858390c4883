package detach_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joeycumines/go-asyncsock/detach"
)

func TestAcquireDeniedWhenNotAttached(t *testing.T) {
	c := detach.New()
	assert.Equal(t, detach.DetachCompleted, c.Detach())
	assert.Equal(t, detach.Denied, c.AcquireProcessor())
}

func TestDetachPendingUntilLastRelease(t *testing.T) {
	c := detach.New()
	assert.Equal(t, detach.Granted, c.AcquireProcessor())
	assert.Equal(t, detach.Pending, c.Detach())
	assert.Equal(t, detach.Detaching, c.State())

	assert.Equal(t, detach.Completed, c.ReleaseProcessor())
	assert.Equal(t, detach.Detached, c.State())
}

func TestDoubleDetachFails(t *testing.T) {
	c := detach.New()
	assert.Equal(t, detach.DetachCompleted, c.Detach())
	assert.Equal(t, detach.Invalid, c.Detach())
}

// TestScenarioDetachSafety follows the literal end-to-end scenario: a
// concurrent detach must not complete while a processor lease is held, and
// the release that drops the count to zero is the one that completes it.
func TestScenarioDetachSafety(t *testing.T) {
	c := detach.New()
	require := assert.New(t)
	require.Equal(detach.Granted, c.AcquireProcessor())

	var detachResult detach.DetachResult
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		detachResult = c.Detach()
	}()
	wg.Wait()

	require.Equal(detach.Pending, detachResult)
	require.Equal(1, c.ProcessorCount())

	require.Equal(detach.Completed, c.ReleaseProcessor())
	require.Equal(detach.Detached, c.State())
}

func TestTwoConcurrentDetachesOneWinsOneInvalid(t *testing.T) {
	c := detach.New()
	var wg sync.WaitGroup
	results := make([]detach.DetachResult, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Detach()
		}()
	}
	wg.Wait()

	valid := 0
	invalid := 0
	for _, r := range results {
		switch r {
		case detach.DetachCompleted, detach.Pending:
			valid++
		case detach.Invalid:
			invalid++
		}
	}
	assert.Equal(t, 1, valid)
	assert.Equal(t, 1, invalid)
}

func TestProcessorCountNeverNegativeAfterValidUse(t *testing.T) {
	c := detach.New()
	assert.Equal(t, detach.Granted, c.AcquireProcessor())
	assert.Equal(t, detach.Released, c.ReleaseProcessor())
	assert.GreaterOrEqual(t, c.ProcessorCount(), 0)
}
