package service

import (
	"time"

	"github.com/skybrain/formrelay/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLimiter sets the rate limiter.
func WithLimiter(l Limiter) Option {
	return func(s *Service) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithValidator sets the payload validator.
func WithValidator(v Validator) Option {
	return func(s *Service) {
		if v != nil {
			s.validator = v
		}
	}
}

// WithMailer sets the email dispatcher.
func WithMailer(m Mailer) Option {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithSheets sets the sheet logger.
func WithSheets(sl SheetLogger) Option {
	return func(s *Service) {
		if sl != nil {
			s.sheets = sl
		}
	}
}

// WithAdminEmail sets the operator inbox that receives admin notifications.
func WithAdminEmail(addr string) Option {
	return func(s *Service) {
		s.adminEmail = addr
	}
}

// WithSweepInterval sets how often expired rate limit entries are evicted.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight deliveries.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithBackgroundConcurrency caps concurrently running fan-outs. Zero means unbounded.
func WithBackgroundConcurrency(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the submission id source.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithSettledHook is called once per accepted submission after every
// background task has settled.
func WithSettledHook(fn func(Outcome)) Option {
	return func(s *Service) {
		s.onSettled = fn
	}
}
