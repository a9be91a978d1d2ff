package ratelimit

import "errors"

// Sentinel kinds for rate limiter errors.
var (
	// ErrStore wraps any failure of the backing Store. Check fails open on it.
	ErrStore = errors.New("rate limit store")
	// ErrInvalidSweepInterval is returned by RunSweeper for a non-positive interval.
	ErrInvalidSweepInterval = errors.New("invalid sweep interval")
)
