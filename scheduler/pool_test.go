//go:build linux

package scheduler_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-asyncsock/option"
	"github.com/joeycumines/go-asyncsock/scheduler"
)

func TestPoolPlaceRoundRobin(t *testing.T) {
	p, err := scheduler.New(3, option.Resolve([]option.Option{option.WithLoadBalancing(option.RoundRobin)}))
	require.NoError(t, err)
	defer p.Close()

	seen := make(map[*scheduler.Worker]int)
	for i := 0; i < 9; i++ {
		w, err := p.Place(-1)
		require.NoError(t, err)
		seen[w]++
	}
	assert.Len(t, seen, 3)
	for _, n := range seen {
		assert.Equal(t, 3, n)
	}
}

func TestPoolPlaceLeastLoaded(t *testing.T) {
	p, err := scheduler.New(2, option.Resolve([]option.Option{option.WithLoadBalancing(option.LeastLoaded)}))
	require.NoError(t, err)
	defer p.Close()

	type socket struct{ n int }

	first, err := p.Place(-1)
	require.NoError(t, err)
	s1 := &socket{}
	scheduler.Register(p, p.NextID(), first, s1)

	second, err := p.Place(-1)
	require.NoError(t, err)
	assert.NotSame(t, first, second, "a fresh socket should be placed on the worker with less load")
}

func TestPoolPlacePinned(t *testing.T) {
	p, err := scheduler.New(3, option.Resolve([]option.Option{option.WithLoadBalancing(option.Pinned)}))
	require.NoError(t, err)
	defer p.Close()

	w, err := p.Place(1)
	require.NoError(t, err)
	require.NotNil(t, w)

	_, err = p.Place(99)
	require.Error(t, err)

	_, err = p.Place(-1)
	require.Error(t, err)
}

func TestPoolRegisterLookupForget(t *testing.T) {
	p, err := scheduler.New(1, option.Resolve(nil))
	require.NoError(t, err)
	defer p.Close()

	type socket struct{ tag string }

	w, err := p.Place(-1)
	require.NoError(t, err)

	id := p.NextID()
	s := &socket{tag: "attached"}
	scheduler.Register(p, id, w, s)

	v, ok := p.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, s, v)
	assert.Equal(t, int64(1), w.Load())

	p.Forget(id, w)
	_, ok = p.Lookup(id)
	assert.False(t, ok)
	assert.Equal(t, int64(0), w.Load())
}

func TestPoolLookupFailsAfterGC(t *testing.T) {
	p, err := scheduler.New(1, option.Resolve(nil))
	require.NoError(t, err)
	defer p.Close()

	type socket struct{ tag string }

	w, err := p.Place(-1)
	require.NoError(t, err)

	id := p.NextID()
	func() {
		s := &socket{tag: "ephemeral"}
		scheduler.Register(p, id, w, s)
		_, ok := p.Lookup(id)
		require.True(t, ok)
		runtime.KeepAlive(s)
	}()

	var ok bool
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		_, ok = p.Lookup(id)
		if !ok {
			break
		}
	}
	assert.False(t, ok, "weakly-registered socket should stop resolving once the only strong reference is dropped")
}

func TestPoolScavengeEvictsDeadEntries(t *testing.T) {
	p, err := scheduler.New(1, option.Resolve(nil))
	require.NoError(t, err)
	defer p.Close()

	type socket struct{ tag string }

	w, err := p.Place(-1)
	require.NoError(t, err)

	id := p.NextID()
	func() {
		s := &socket{tag: "short-lived"}
		scheduler.Register(p, id, w, s)
		runtime.KeepAlive(s)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		p.Scavenge(256)
		if _, ok := p.Lookup(id); !ok {
			return
		}
	}
	t.Fatal("scavenge never evicted the garbage-collected entry")
}
