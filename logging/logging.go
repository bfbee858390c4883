// Package logging is the engine's ambient structured-logging facade: a
// package-level default logger (initially a no-op writer) that embedders
// replace with SetLogger, wiring in a concrete logiface backend (stumpy,
// zerolog, logrus, ...) without the engine importing any of them directly
// beyond stumpy as its own default.
package logging

import (
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Event is the concrete logiface event type the engine logs through. stumpy
// is the default writer; any other logiface backend implementing
// logiface.Event can be substituted by building a *Logger via
// logiface.New[*Event] directly, as long as it satisfies this alias.
type Event = stumpy.Event

// Logger is the generic logiface facade, specialised to Event.
type Logger = logiface.Logger[*Event]

var (
	mu      sync.RWMutex
	current = newNoop()
)

// newNoop returns a Logger with no writer configured, which logiface treats
// as disabled (logiface.Logger.canWrite reports false without one), so log
// calls are cheap no-ops until SetLogger installs a real backend.
func newNoop() *Logger {
	return logiface.New[*Event]()
}

// SetLogger installs l as the package-wide default logger. Passing nil
// restores the no-op default.
func SetLogger(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		current = newNoop()
		return
	}
	current = l
}

// Default returns the currently installed logger.
func Default() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// NewStumpyLogger builds a Logger backed by stumpy, configured by opts,
// the engine's default backend (see cmd/echoserver for a wired
// example).
func NewStumpyLogger(opts ...stumpy.Option) *Logger {
	return logiface.New[*Event](stumpy.WithStumpy(opts...))
}
