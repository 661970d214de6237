// Package clock provides a deterministic time abstraction for the engine.
//
// GUARDRAIL: core packages MUST NOT call time.Now() directly. Every
// time-sensitive contract (TTL expiry, hysteresis, within_last_days windows,
// renewal-window boundaries) takes a Clock so it can be driven precisely in
// tests and replay.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock. Use only at process entry points (cmd/*).
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Fixed always returns the same instant. Use in unit and property tests.
type Fixed struct {
	At time.Time
}

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return f.At }

// Func adapts a plain function to Clock, for tests that need an
// incrementing or otherwise dynamic notion of "now".
type Func func() time.Time

// Now calls the wrapped function.
func (f Func) Now() time.Time { return f() }

var (
	_ Clock = System{}
	_ Clock = Fixed{}
	_ Clock = Func(nil)
)
