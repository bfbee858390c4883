// Package option provides the engine's functional-options configuration
// surface and the per-socket Options enumeration (§6 of the external
// interfaces).
package option

import "time"

// LoadBalancing selects how the scheduler distributes new sockets across
// its worker pool.
type LoadBalancing int

const (
	RoundRobin LoadBalancing = iota
	LeastLoaded
	Pinned
)

// ResolverConfig is the embedded, deliberately minimal stub for the DNS
// resolver configuration the engine's configuration surface names but does
// not implement (name resolution is an external collaborator per the
// engine's scope).
type ResolverConfig struct {
	Nameservers []string
	Timeout     time.Duration
}

// Config is the engine's nested configuration record.
type Config struct {
	ThreadName          string
	DriverName          string
	MaxEventsPerWait    int
	MaxTimersPerWait    int
	MaxCyclesPerWait    int
	MetricsPerWaiter    bool
	MetricsPerSocket    bool
	Resolver            ResolverConfig
	LoadBalancingPolicy LoadBalancing
}

// defaultConfig returns the baseline Config before any Option is applied.
func defaultConfig() Config {
	return Config{
		ThreadName:          "asyncsock-worker",
		DriverName:          "auto",
		MaxEventsPerWait:    256,
		MaxTimersPerWait:    64,
		MaxCyclesPerWait:    16,
		LoadBalancingPolicy: RoundRobin,
	}
}

// Option configures the engine. Options are applied in order via Resolve.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithThreadName sets the name new worker threads/goroutines are labeled
// with, for diagnostics.
func WithThreadName(name string) Option {
	return optionFunc(func(c *Config) { c.ThreadName = name })
}

// WithDriverName records a multiplexer driver name (e.g. "epoll",
// "kqueue") in Config. The scheduler does not read it: workers always use
// the platform's default reactor (epoll on Linux, kqueue on Darwin).
func WithDriverName(name string) Option {
	return optionFunc(func(c *Config) { c.DriverName = name })
}

// WithMaxEventsPerWait bounds how many readiness/completion events a single
// multiplexer wait call drains before returning control to the worker loop.
func WithMaxEventsPerWait(n int) Option {
	return optionFunc(func(c *Config) { c.MaxEventsPerWait = n })
}

// WithMaxTimersPerWait records a per-tick bound on due timers in Config.
// Each worker stores it, but the dispatch loop fires every due timer on
// each tick regardless of it.
func WithMaxTimersPerWait(n int) Option {
	return optionFunc(func(c *Config) { c.MaxTimersPerWait = n })
}

// WithMaxCyclesPerWait records a per-tick bound on internal-queue drain
// cycles in Config. No worker reads it.
func WithMaxCyclesPerWait(n int) Option {
	return optionFunc(func(c *Config) { c.MaxCyclesPerWait = n })
}

// WithMetrics sets the per-waiter and per-socket switches of the pool's
// metrics.Registry. Workers collect dispatch metrics only when perWaiter is
// set; the socket types keep their own SocketMetrics set whatever perSocket
// says, and nothing in the engine asks the Registry for per-socket sets.
func WithMetrics(perWaiter, perSocket bool) Option {
	return optionFunc(func(c *Config) {
		c.MetricsPerWaiter = perWaiter
		c.MetricsPerSocket = perSocket
	})
}

// WithResolver sets the embedded resolver configuration stub.
func WithResolver(r ResolverConfig) Option {
	return optionFunc(func(c *Config) { c.Resolver = r })
}

// WithLoadBalancing selects the scheduler's socket-placement policy.
func WithLoadBalancing(p LoadBalancing) Option {
	return optionFunc(func(c *Config) { c.LoadBalancingPolicy = p })
}

// Resolve applies opts over the default Config, skipping nil entries (so
// callers may conditionally build an []Option slice with nil gaps).
func Resolve(opts []Option) Config {
	c := defaultConfig()
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(&c)
	}
	return c
}
