// Package service composes the rate limiter, validator, mail dispatcher and
// sheet logger into the form relay used by the HTTP API.
//
// Delivery is best-effort with at most one attempt per task: once a
// submission is accepted the caller has its answer, and every background
// failure is only logged.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/skybrain/formrelay/internal/adapters/mailer"
	"github.com/skybrain/formrelay/internal/adapters/sheets"
	"github.com/skybrain/formrelay/internal/domain/model"
	"github.com/skybrain/formrelay/internal/domain/ratelimit"
	"github.com/skybrain/formrelay/internal/domain/validation"
	"github.com/skybrain/formrelay/internal/templates"
	"github.com/skybrain/formrelay/pkg/logger"
	"github.com/skybrain/formrelay/pkg/metrics"
)

// Background task names, used in logs, metrics and outcomes.
const (
	TaskAdminEmail = "admin_email"
	TaskUserEmail  = "user_email"
	TaskSheetLog   = "sheet_log"
)

const (
	defaultSweepInterval   = 5 * time.Minute
	defaultShutdownTimeout = 30 * time.Second
)

// Limiter gates submissions per client key.
type Limiter interface {
	Check(ctx context.Context, key string) (ratelimit.Decision, error)
	Len(ctx context.Context) (int, error)
	RunSweeper(ctx context.Context, interval time.Duration) error
}

// Validator checks a payload before it becomes a record.
type Validator interface {
	Validate(fields model.Fields) validation.Result
}

// Mailer renders and sends one email.
type Mailer interface {
	Send(ctx context.Context, to string, tmpl templates.Template, rec model.Record, opts ...mailer.SendOption) (mailer.Delivery, error)
}

// SheetLogger forwards records to the spreadsheet webhook.
type SheetLogger interface {
	Log(ctx context.Context, rec model.Record) (sheets.Result, error)
	TestConnection(ctx context.Context) (sheets.Result, error)
	Stats(ctx context.Context) sheets.Status
}

// InvalidError lists the rules a rejected payload violated. It unwraps to ErrInvalid.
type InvalidError struct {
	Errors []string
}

func (e *InvalidError) Error() string {
	return "invalid submission: " + strings.Join(e.Errors, "; ")
}

func (e *InvalidError) Unwrap() error { return ErrInvalid }

// TaskOutcome is how one background task settled.
type TaskOutcome struct {
	Task      string
	Recipient string
	Template  string
	Skipped   bool
	Err       error
	Duration  time.Duration
}

// Outcome collects every task of one accepted submission once all have settled.
type Outcome struct {
	SubmissionID string
	FormType     model.FormType
	Tasks        []TaskOutcome
}

// Failed returns the number of rejected tasks.
func (o Outcome) Failed() int {
	n := 0
	for _, t := range o.Tasks {
		if t.Err != nil {
			n++
		}
	}
	return n
}

// task is one independent background delivery.
type task struct {
	name      string
	recipient string
	template  string
	run       func(ctx context.Context, rec model.Record) (skipped bool, err error)
}

// Service implements the API dependencies for the form relay.
type Service struct {
	mu sync.RWMutex

	// Core components
	limiter   Limiter
	validator Validator
	mailer    Mailer
	sheets    SheetLogger

	// Configuration
	adminEmail      string
	sweepInterval   time.Duration
	shutdownTimeout time.Duration
	concurrency     int

	// State
	started     bool
	stopped     bool
	stopSweeper context.CancelFunc
	sem         *semaphore.Weighted
	inflight    sync.WaitGroup

	now       func() time.Time
	newID     func() string
	onSettled func(Outcome)

	// Logging
	logger logger.Logger
}

// New constructs a Service. The limiter, mailer and sheet logger must be
// supplied through options; the validator defaults to validation.MustNew.
func New(opts ...Option) *Service {
	s := &Service{
		sweepInterval:   defaultSweepInterval,
		shutdownTimeout: defaultShutdownTimeout,
		now:             time.Now,
		newID:           uuid.NewString,
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = validation.MustNew()
	}
	if s.concurrency > 0 {
		s.sem = semaphore.NewWeighted(int64(s.concurrency))
	}
	return s
}

// Start launches the rate limit sweeper.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}

	if s.limiter != nil {
		sweepCtx, cancel := context.WithCancel(ctx)
		s.stopSweeper = cancel
		go func() {
			if err := s.limiter.RunSweeper(sweepCtx, s.sweepInterval); err != nil {
				s.logger.Error(sweepCtx, "rate limit sweeper stopped", logger.Error(err))
			}
		}()
	}

	s.started = true
	s.logger.Info(ctx, "form relay started",
		logger.String("admin_email", s.adminEmail),
		logger.Duration("sweep_interval", s.sweepInterval),
		logger.Int("background_concurrency", s.concurrency),
	)
	return nil
}

// Stop rejects new submissions and waits up to the shutdown timeout for
// in-flight fan-outs. Deliveries still running afterwards are abandoned.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.started = false
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping form relay, waiting for background deliveries...")

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info(ctx, "form relay stopped")
		return nil
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn(ctx, "background deliveries still running at shutdown",
			logger.Duration("waited", s.shutdownTimeout))
		return fmt.Errorf("%w after %s", ErrShutdownTimeout, s.shutdownTimeout)
	}
}

// Check counts one request of clientIP against the form's own window. A
// limiter store failure is logged and the request is let through.
func (s *Service) Check(ctx context.Context, ft model.FormType, clientIP string) ratelimit.Decision {
	if s.limiter == nil {
		return ratelimit.Decision{Allowed: true}
	}
	if strings.TrimSpace(clientIP) == "" {
		clientIP = ratelimit.UnknownClient
	}
	d, err := s.limiter.Check(ctx, string(ft)+"|"+clientIP)
	if err != nil {
		metrics.RecordRateLimitStoreError()
		metrics.RecordErrorByComponent("ratelimit", "store")
		s.logger.Warn(ctx, "rate limit check failed, allowing request",
			logger.String("form_type", string(ft)),
			logger.String("client_ip", clientIP),
			logger.Error(err))
	}
	return d
}

// Submit validates fields, builds the record and starts the background
// fan-out without waiting for it. A validation failure is an *InvalidError.
func (s *Service) Submit(ctx context.Context, fields model.Fields) (model.Record, error) {
	res := s.validator.Validate(fields)
	if !res.IsValid {
		return model.Record{}, &InvalidError{Errors: res.Errors}
	}

	rec, err := model.NewRecord(s.newID(), fields, s.now())
	if err != nil {
		return model.Record{}, fmt.Errorf("build record: %w", err)
	}

	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return model.Record{}, ErrStopped
	}
	s.inflight.Add(1)
	s.mu.RUnlock()

	metrics.IncFanoutsInFlight()
	// The fan-out outlives the request; keep its values, drop its cancellation.
	go s.fanOut(context.WithoutCancel(ctx), rec)

	s.logger.Info(ctx, "submission accepted",
		logger.String("submission_id", rec.ID),
		logger.String("form_type", string(rec.Type)),
		logger.String("source", rec.Source))
	return rec, nil
}

// fanOut runs every task of rec concurrently and waits until all have
// settled. No task can cancel or block another.
func (s *Service) fanOut(ctx context.Context, rec model.Record) {
	defer s.inflight.Done()
	defer metrics.DecFanoutsInFlight()

	if s.sem != nil {
		// ctx carries no cancellation, so Acquire only returns once a slot frees.
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.logger.Error(ctx, "background slot unavailable, dropping deliveries",
				logger.String("submission_id", rec.ID), logger.Error(err))
			return
		}
		defer s.sem.Release(1)
	}

	tasks := s.tasks(rec)
	outcomes := make([]TaskOutcome, len(tasks))

	var g errgroup.Group
	for i, t := range tasks {
		g.Go(func() error {
			outcomes[i] = s.runTask(ctx, t, rec.Clone())
			return nil
		})
	}
	_ = g.Wait()

	out := Outcome{SubmissionID: rec.ID, FormType: rec.Type, Tasks: outcomes}
	s.logger.Info(ctx, "background deliveries settled",
		logger.String("submission_id", rec.ID),
		logger.String("form_type", string(rec.Type)),
		logger.Int("tasks", len(outcomes)),
		logger.Int("failed", out.Failed()))

	if s.onSettled != nil {
		s.onSettled(out)
	}
}

// runTask executes one task, turning a panic into a rejection. A rejection
// is logged exactly once here.
func (s *Service) runTask(ctx context.Context, t task, rec model.Record) (out TaskOutcome) {
	out = TaskOutcome{Task: t.name, Recipient: t.recipient, Template: t.template}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
		out.Duration = time.Since(start)

		outcome := metrics.OutcomeFulfilled
		switch {
		case out.Err != nil:
			outcome = metrics.OutcomeRejected
			metrics.RecordErrorByComponent(t.name, "delivery")
			fields := []logger.Field{
				logger.String("submission_id", rec.ID),
				logger.String("form_type", string(rec.Type)),
				logger.String("task", t.name),
				logger.Duration("duration", out.Duration),
				logger.Error(out.Err),
			}
			if t.recipient != "" {
				fields = append(fields, logger.String("recipient", t.recipient))
			}
			if t.template != "" {
				fields = append(fields, logger.String("template", t.template))
			}
			s.logger.Error(ctx, "background delivery failed", fields...)
		case out.Skipped:
			outcome = metrics.OutcomeSkipped
		}
		metrics.RecordBackgroundTask(t.name, outcome, out.Duration.Seconds())
	}()

	out.Skipped, out.Err = t.run(ctx, rec)
	return out
}

// tasks lists the deliveries for rec: the admin copy, the auto-reply when
// the form sends one, and the sheet log.
func (s *Service) tasks(rec model.Record) []task {
	form := model.Forms[rec.Type]
	var out []task

	if s.mailer != nil {
		admin := templates.MustFor(rec.Type, templates.Admin)
		adminTo := s.adminEmail
		replyTo := rec.Fields.Address()
		out = append(out, task{
			name:      TaskAdminEmail,
			recipient: adminTo,
			template:  admin.Name,
			run: func(ctx context.Context, r model.Record) (bool, error) {
				_, err := s.mailer.Send(ctx, adminTo, admin, r, mailer.WithReplyTo(replyTo))
				return false, err
			},
		})

		if form.AutoReply {
			user := templates.MustFor(rec.Type, templates.User)
			userTo := rec.Fields.Address()
			out = append(out, task{
				name:      TaskUserEmail,
				recipient: userTo,
				template:  user.Name,
				run: func(ctx context.Context, r model.Record) (bool, error) {
					_, err := s.mailer.Send(ctx, userTo, user, r)
					return false, err
				},
			})
		}
	}

	if s.sheets != nil {
		out = append(out, task{
			name: TaskSheetLog,
			run: func(ctx context.Context, r model.Record) (bool, error) {
				res, err := s.sheets.Log(ctx, r)
				return res.Skipped, err
			},
		})
	}
	return out
}

// TestSheets sends a synthetic payload to the webhook.
func (s *Service) TestSheets(ctx context.Context) (sheets.Result, error) {
	if s.sheets == nil {
		return sheets.Result{}, sheets.ErrNotConfigured
	}
	res, err := s.sheets.TestConnection(ctx)
	if err != nil && !errors.Is(err, sheets.ErrNotConfigured) {
		s.logger.Warn(ctx, "sheets connection test failed", logger.Error(err))
	}
	return res, err
}

// SheetsStats reports the webhook configuration status.
func (s *Service) SheetsStats(ctx context.Context) sheets.Status {
	if s.sheets == nil {
		return sheets.Status{Configured: false, Message: "Google Sheets webhook URL not configured"}
	}
	return s.sheets.Stats(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":               s.started,
		"backgroundConcurrency": s.concurrency,
		"adminConfigured":       s.adminEmail != "",
		"sheetsConfigured":      s.sheets != nil && s.sheets.Stats(context.Background()).Configured,
	}

	if s.limiter != nil {
		n, err := s.limiter.Len(context.Background())
		if err == nil {
			stats["rateLimitEntries"] = n
			metrics.UpdateRateLimitEntries(n)
		}
	}
	return stats
}
