package ratelimit

import (
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// AcceptPacer paces per-listener accept-queue drains using a sliding-window
// event limiter, as distinct from the byte-weighted dual-bucket Limiter
// used for read/write queue drains. Listener accept storms are naturally
// per-event (one connection at a time) rather than byte-weighted, which is
// exactly catrate.Limiter's model.
type AcceptPacer struct {
	limiter *catrate.Limiter
}

// NewAcceptPacer builds an AcceptPacer from a set of sliding-window rates,
// e.g. {time.Second: 100, time.Minute: 2000} to cap sustained accept rate
// while tolerating short bursts.
func NewAcceptPacer(rates map[time.Duration]int) *AcceptPacer {
	return &AcceptPacer{limiter: catrate.NewLimiter(rates)}
}

// Allow reports whether another accept may be drained for the given
// listener (keyed by any comparable identifier, typically the listener's
// descriptor or endpoint). If denied, the returned time is when the next
// accept may proceed.
func (p *AcceptPacer) Allow(listener any) (time.Time, bool) {
	return p.limiter.Allow(listener)
}
