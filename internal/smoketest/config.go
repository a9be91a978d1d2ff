// Package smoketest exercises a running form relay end to end: health, one
// valid and one invalid body per form, method and preflight handling, and
// optionally the rate limit.
package smoketest

import "time"

// Config holds configuration for a smoke run.
type Config struct {
	BaseURL string        // Base URL of the service
	Origin  string        // Origin header sent with every request
	Timeout time.Duration // HTTP request timeout
	// ExhaustRateLimit keeps posting invalid newsletter bodies until a 429 or
	// MaxRateRequests requests. It burns the caller's window, so it is opt-in.
	ExhaustRateLimit bool
	MaxRateRequests  int
	// SendValid posts the valid bodies. They trigger real emails and sheet
	// rows on the target, so a read-only run leaves it off.
	SendValid bool
	LogFile   string // Log file for test output
	Verbose   bool   // Enable verbose logging
}

// Check is the result of one request.
type Check struct {
	Name     string
	Method   string
	Path     string
	Want     int
	Got      int
	Message  string
	Err      error
	Duration time.Duration
}

// Passed reports whether the status matched.
func (c Check) Passed() bool {
	return c.Err == nil && c.Got == c.Want
}

// Report collects every check of a run.
type Report struct {
	Checks    []Check
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Failed returns the checks that did not pass.
func (r *Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed() {
			out = append(out, c)
		}
	}
	return out
}
