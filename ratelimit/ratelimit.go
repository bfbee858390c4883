// Package ratelimit implements the dual-bucket (sustained + peak) token
// rate limiter and the flow-control gate composition that sits above it.
package ratelimit

import (
	"sync"
	"time"
)

// bucket is a single token bucket: capacity tokens refill continuously over
// window, consumed by Consume. It is not safe for concurrent use on its
// own; Limiter serialises access with its own mutex.
type bucket struct {
	capacity    float64
	window      time.Duration
	tokens      float64
	lastRefill  time.Time
	initialized bool
}

func (b *bucket) refill(now time.Time) {
	if !b.initialized {
		b.tokens = b.capacity
		b.lastRefill = now
		b.initialized = true
		return
	}
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	rate := b.capacity / float64(b.window)
	b.tokens += float64(elapsed) * rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// waitUntil returns the time at which n more tokens would be available,
// given the bucket's state as of the last refill.
func (b *bucket) waitUntil(n float64, now time.Time) time.Time {
	deficit := n - b.tokens
	if deficit <= 0 {
		return now
	}
	rate := b.capacity / float64(b.window)
	return now.Add(time.Duration(deficit / rate))
}

// Limiter is a dual-bucket (sustained + peak) token rate limiter: a
// long-window "sustained" bucket bounds long-run throughput, a short-window
// "peak" bucket bounds short bursts. Both must admit n for Consume to
// allow it.
//
// It is grounded on the same sliding-window-per-category structure as
// catrate.Limiter but is weighted by an arbitrary n (bytes, typically)
// rather than one event per Allow call, and exposes a single combined
// decision rather than per-category tracking.
type Limiter struct {
	mu        sync.Mutex
	sustained bucket
	peak      bucket
}

// New returns a Limiter with a sustained bucket of sustainedCap tokens
// refilling over sustainedWindow, and a peak bucket of peakCap tokens
// refilling over peakWindow. peakWindow should be shorter than
// sustainedWindow for the peak bucket to meaningfully bound bursts.
func New(sustainedCap float64, sustainedWindow time.Duration, peakCap float64, peakWindow time.Duration) *Limiter {
	return &Limiter{
		sustained: bucket{capacity: sustainedCap, window: sustainedWindow},
		peak:      bucket{capacity: peakCap, window: peakWindow},
	}
}

// Decision is the result of Consume.
type Decision struct {
	Allowed   bool
	WaitUntil time.Time // meaningful only if !Allowed
}

// Consume requests n tokens (e.g. bytes about to be drained from a write
// queue) as of now. If both buckets currently hold at least n tokens, it
// deducts n from each and returns Allowed. Otherwise neither bucket is
// mutated and it returns the time at which the more-constrained bucket
// would admit the request.
func (l *Limiter) Consume(n float64, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sustained.refill(now)
	l.peak.refill(now)

	if l.sustained.tokens >= n && l.peak.tokens >= n {
		l.sustained.tokens -= n
		l.peak.tokens -= n
		return Decision{Allowed: true}
	}

	sw := l.sustained.waitUntil(n, now)
	pw := l.peak.waitUntil(n, now)
	wait := sw
	if pw.After(wait) {
		wait = pw
	}
	return Decision{Allowed: false, WaitUntil: wait}
}

// FlowControlContext tracks, independently for readability and writability,
// whether the user wants interest enabled and whether it is actually
// registered with the multiplexer. Enabled-ness is recomputed from wanted
// AND NOT rate-limited AND NOT watermark-paused AND NOT shutdown on every
// relevant transition; callers call Recompute after changing any input.
type FlowControlContext struct {
	mu sync.Mutex

	wantReadable  bool
	wantWritable  bool
	rateLimited   bool
	readPaused    bool // watermark-paused
	writePaused   bool // watermark-paused
	shutdownRead  bool
	shutdownWrite bool

	enabledReadable bool
	enabledWritable bool
}

// NewFlowControlContext returns a context with nothing wanted or enabled.
func NewFlowControlContext() *FlowControlContext {
	return &FlowControlContext{}
}

// WantReadable sets whether the user wants read-readiness interest.
func (f *FlowControlContext) WantReadable(want bool) { f.mu.Lock(); f.wantReadable = want; f.mu.Unlock() }

// WantWritable sets whether the user wants write-readiness interest.
func (f *FlowControlContext) WantWritable(want bool) { f.mu.Lock(); f.wantWritable = want; f.mu.Unlock() }

// SetRateLimited sets whether a rate limiter is currently denying drains.
// Rate limiting pauses both directions' interest uniformly, matching how a
// single dual-bucket limiter gates a socket's overall drain rate.
func (f *FlowControlContext) SetRateLimited(limited bool) { f.mu.Lock(); f.rateLimited = limited; f.mu.Unlock() }

// SetReadPaused sets whether the read queue's high watermark is breached.
func (f *FlowControlContext) SetReadPaused(paused bool) { f.mu.Lock(); f.readPaused = paused; f.mu.Unlock() }

// SetWritePaused sets whether the write queue's high watermark is breached.
func (f *FlowControlContext) SetWritePaused(paused bool) { f.mu.Lock(); f.writePaused = paused; f.mu.Unlock() }

// SetShutdown marks a direction shut down, permanently disabling its
// interest.
func (f *FlowControlContext) SetShutdown(read, write bool) {
	f.mu.Lock()
	f.shutdownRead = f.shutdownRead || read
	f.shutdownWrite = f.shutdownWrite || write
	f.mu.Unlock()
}

// Recompute derives enabled-ness from the current inputs and returns the
// (readable, writable) enabled state plus whether either changed since the
// last call, so the caller knows whether to re-register interest with its
// multiplexer.
func (f *FlowControlContext) Recompute() (readable, writable, changed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	newReadable := f.wantReadable && !f.rateLimited && !f.readPaused && !f.shutdownRead
	newWritable := f.wantWritable && !f.rateLimited && !f.writePaused && !f.shutdownWrite

	changed = newReadable != f.enabledReadable || newWritable != f.enabledWritable
	f.enabledReadable = newReadable
	f.enabledWritable = newWritable
	return newReadable, newWritable, changed
}

// Enabled returns the last-computed enabled state without recomputing it.
func (f *FlowControlContext) Enabled() (readable, writable bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabledReadable, f.enabledWritable
}
