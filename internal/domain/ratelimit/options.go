package ratelimit

import (
	"time"

	"github.com/skybrain/formrelay/pkg/logger"
)

// Option applies a configuration option to the Limiter.
type Option func(*Limiter)

// WithWindow sets the fixed window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithCeiling sets how many requests a key may make per window.
func WithCeiling(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.ceiling = n
		}
	}
}

// WithClock replaces time.Now. Tests use it to advance time.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(log logger.Logger) Option {
	return func(l *Limiter) {
		if log != nil {
			l.log = log
		}
	}
}

// WithSweepHook is called after every sweep with the number of evicted entries
// and the entries left.
func WithSweepHook(fn func(evicted, remaining int)) Option {
	return func(l *Limiter) {
		l.onSweep = fn
	}
}
