package scheduler

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registryProbe struct{ tag string }

func TestRegistryLookupSeesLiveEntry(t *testing.T) {
	r := newRegistry()
	p := &registryProbe{tag: "alive"}
	registerIn(r, 1, p)

	v, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Same(t, p, v.(*registryProbe))
	runtime.KeepAlive(p)
}

func TestRegistryLookupMissingID(t *testing.T) {
	r := newRegistry()
	_, ok := r.Lookup(42)
	assert.False(t, ok)
}

func TestRegistryLookupFailsAfterCollection(t *testing.T) {
	r := newRegistry()
	func() {
		p := &registryProbe{tag: "ephemeral"}
		registerIn(r, 7, p)
		runtime.KeepAlive(p)
	}()

	deadline := time.Now().Add(2 * time.Second)
	var ok bool
	for time.Now().Before(deadline) {
		runtime.GC()
		_, ok = r.Lookup(7)
		if !ok {
			return
		}
	}
	t.Fatal("weak handle still resolved after its only strong reference was dropped")
}

func TestRegistryForgetRemovesEntryRegardlessOfLiveness(t *testing.T) {
	r := newRegistry()
	p := &registryProbe{tag: "forgotten"}
	registerIn(r, 3, p)
	r.Forget(3)
	_, ok := r.Lookup(3)
	assert.False(t, ok)
	runtime.KeepAlive(p)
}

func TestRegistryScavengeEvictsDeadEntriesAndCompacts(t *testing.T) {
	r := newRegistry()
	survivor := &registryProbe{tag: "survivor"}
	registerIn(r, 100, survivor)

	func() {
		for id := uint64(1); id <= 20; id++ {
			p := &registryProbe{tag: "batch"}
			registerIn(r, id, p)
			runtime.KeepAlive(p)
		}
	}()

	require.Equal(t, 21, r.Len())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		r.Scavenge(256)
		if r.Len() == 1 {
			break
		}
	}
	assert.Equal(t, 1, r.Len())
	_, ok := r.Lookup(100)
	assert.True(t, ok)
	runtime.KeepAlive(survivor)
}

func TestRegistryReregisterOverwritesEntry(t *testing.T) {
	r := newRegistry()
	first := &registryProbe{tag: "first"}
	registerIn(r, 9, first)

	second := &registryProbe{tag: "second"}
	registerIn(r, 9, second)

	v, ok := r.Lookup(9)
	require.True(t, ok)
	assert.Same(t, second, v.(*registryProbe))
	assert.Equal(t, 1, r.Len())
	runtime.KeepAlive(first)
	runtime.KeepAlive(second)
}
