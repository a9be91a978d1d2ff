// Package ratelimit implements the fixed-window per-client limiter that gates
// form submissions.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/skybrain/formrelay/pkg/logger"
)

const (
	// DefaultWindow is the fixed window length.
	DefaultWindow = 15 * time.Minute
	// DefaultCeiling is the production ceiling.
	DefaultCeiling = 5
	// UnknownClient is the shared key for clients whose address cannot be resolved.
	UnknownClient = "unknown"
)

// Entry is the per-key window state.
type Entry struct {
	Attempts      int       `bson:"attempts" json:"attempts"`
	WindowResetAt time.Time `bson:"windowResetAt" json:"windowResetAt"`
}

// Expired reports whether the window has ended at now. The boundary instant
// itself still belongs to the window.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.WindowResetAt)
}

// Store holds Entries by key. Implementations must be safe for concurrent use,
// and Hit must be atomic per key across every process sharing the store.
type Store interface {
	// Hit counts one request for key as Advance describes and returns the
	// resulting entry and whether the request is within the ceiling.
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, ceiling int) (Entry, bool, error)
	// Sweep removes every entry expired at now and returns how many it removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
	// Len returns the number of tracked keys.
	Len(ctx context.Context) (int, error)
}

// Decision is the outcome of one Check.
type Decision struct {
	Allowed  bool
	Attempts int
	ResetAt  time.Time
	// RetryAfter and RetryAfterLabel are set only when the request is denied.
	RetryAfter      time.Duration
	RetryAfterLabel string
}

// Advance applies one request to the entry for a key. A missing or expired
// entry restarts at one attempt. An entry at the ceiling is returned
// unchanged and the request is denied.
func Advance(e Entry, exists bool, now time.Time, window time.Duration, ceiling int) (Entry, bool) {
	switch {
	case !exists || e.Expired(now):
		return Entry{Attempts: 1, WindowResetAt: now.Add(window)}, true
	case e.Attempts >= ceiling:
		return e, false
	default:
		e.Attempts++
		return e, true
	}
}

// Limiter is a fixed-window counter over a Store. It holds no lock of its
// own; the Store serialises hits on a key.
type Limiter struct {
	store   Store
	window  time.Duration
	ceiling int
	now     func() time.Time
	log     logger.Logger
	onSweep func(evicted, remaining int)
}

// New creates a Limiter over store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		window:  DefaultWindow,
		ceiling: DefaultCeiling,
		now:     time.Now,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Ceiling returns the configured per-window ceiling.
func (l *Limiter) Ceiling() int { return l.ceiling }

// Check counts one request for key and decides whether it may proceed.
// A store failure allows the request and returns an error wrapping ErrStore.
func (l *Limiter) Check(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		key = UnknownClient
	}

	now := l.now()
	e, allowed, err := l.store.Hit(ctx, key, now, l.window, l.ceiling)
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("%w: hit %q: %v", ErrStore, key, err)
	}
	if !allowed {
		wait := e.WindowResetAt.Sub(now)
		return Decision{
			Allowed:         false,
			Attempts:        e.Attempts,
			ResetAt:         e.WindowResetAt,
			RetryAfter:      wait,
			RetryAfterLabel: RetryAfterLabel(wait),
		}, nil
	}
	return Decision{Allowed: true, Attempts: e.Attempts, ResetAt: e.WindowResetAt}, nil
}

// Len returns the number of tracked keys.
func (l *Limiter) Len(ctx context.Context) (int, error) {
	n, err := l.store.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: len: %v", ErrStore, err)
	}
	return n, nil
}

// Sweep evicts expired entries once.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	n, err := l.store.Sweep(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("%w: sweep: %v", ErrStore, err)
	}
	return n, nil
}

// RunSweeper evicts expired entries every interval until ctx is done.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSweepInterval, interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			evicted, err := l.Sweep(ctx)
			if err != nil {
				l.log.Warn(ctx, "rate limit sweep failed", logger.Error(err))
				continue
			}
			remaining, err := l.Len(ctx)
			if err != nil {
				l.log.Warn(ctx, "rate limit size unavailable", logger.Error(err))
				continue
			}
			if evicted > 0 {
				l.log.Debug(ctx, "rate limit entries evicted",
					logger.Int("evicted", evicted),
					logger.Int("remaining", remaining))
			}
			if l.onSweep != nil {
				l.onSweep(evicted, remaining)
			}
		}
	}
}

// RetryAfterLabel renders a wait as a human-readable hint, rounded up to whole minutes.
func RetryAfterLabel(wait time.Duration) string {
	minutes := int(math.Ceil(wait.Minutes()))
	if minutes <= 1 {
		return "Please try again in 1 minute."
	}
	return fmt.Sprintf("Please try again in %d minutes.", minutes)
}

// RetryAfterSeconds is wait rounded up to whole seconds, at least 1, for the Retry-After header.
func RetryAfterSeconds(wait time.Duration) int {
	s := int(math.Ceil(wait.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
