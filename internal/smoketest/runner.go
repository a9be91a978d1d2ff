package smoketest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/skybrain/formrelay/internal/domain/model"
	"github.com/skybrain/formrelay/pkg/logger"
)

// ErrChecksFailed is returned by Run when at least one check did not pass.
var ErrChecksFailed = errors.New("smoke checks failed")

// Run executes the complete smoke run and returns its report.
func Run(ctx context.Context, config *Config) (*Report, error) {
	report := &Report{
		StartTime: time.Now(),
	}
	client := newHTTPClient(config.Timeout, config.Origin)
	base := strings.TrimRight(config.BaseURL, "/")

	logger.Get().Info(ctx, "starting form relay smoke run",
		logger.String("baseURL", base),
		logger.String("origin", config.Origin),
		logger.Bool("sendValid", config.SendValid),
		logger.Bool("exhaustRateLimit", config.ExhaustRateLimit),
		logger.String("timeout", config.Timeout.String()))

	// Step 1: Check service health
	health := runCheck(ctx, client, base, "health", http.MethodGet, "/api/health", nil, http.StatusOK)
	report.Checks = append(report.Checks, health)
	if !health.Passed() {
		finish(report)
		return report, fmt.Errorf("service health check failed: %w", ErrChecksFailed)
	}

	for _, ft := range model.OrderedForms {
		form := model.Forms[ft]
		c := caseFor(ft)

		// Step 2: Preflight and method handling
		report.Checks = append(report.Checks,
			runCheck(ctx, client, base, string(ft)+" preflight", http.MethodOptions, form.Path, nil, http.StatusOK),
			runCheck(ctx, client, base, string(ft)+" wrong method", http.MethodGet, form.Path, nil, http.StatusMethodNotAllowed),
		)

		// Step 3: Invalid body must be refused with field errors
		invalid := runCheck(ctx, client, base, string(ft)+" invalid", http.MethodPost, form.Path, c.invalid, http.StatusBadRequest)
		report.Checks = append(report.Checks, invalid)

		// Step 4: Valid body must be accepted
		if config.SendValid {
			report.Checks = append(report.Checks,
				runCheck(ctx, client, base, string(ft)+" valid", http.MethodPost, form.Path, c.valid, http.StatusOK))
		}
	}

	// Step 5: Drive one bucket past its ceiling
	if config.ExhaustRateLimit {
		report.Checks = append(report.Checks, exhaustRateLimit(ctx, client, base, config.MaxRateRequests))
	}

	finish(report)
	displayReport(report)

	if failed := report.Failed(); len(failed) > 0 {
		logger.Get().Error(ctx, "smoke run failed", logger.Int("failed", len(failed)), logger.Int("total", len(report.Checks)))
		return report, fmt.Errorf("%d of %d: %w", len(failed), len(report.Checks), ErrChecksFailed)
	}
	logger.Get().Info(ctx, "smoke run passed", logger.Int("checks", len(report.Checks)))
	return report, nil
}

func finish(r *Report) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

func runCheck(ctx context.Context, client *HTTPClient, base, name, method, path string, body interface{}, want int) Check {
	start := time.Now()
	status, reply, err := client.do(ctx, method, base+path, body)
	c := Check{
		Name:     name,
		Method:   method,
		Path:     path,
		Want:     want,
		Got:      status,
		Message:  reply.Message,
		Err:      err,
		Duration: time.Since(start),
	}
	if want == http.StatusBadRequest && status == want && len(reply.Errors) == 0 {
		c.Err = errors.New("400 without field errors")
	}
	logCheck(c)
	return c
}

// exhaustRateLimit posts invalid newsletter bodies until the relay answers 429.
// Invalid bodies still count against the window but never reach the mailer.
func exhaustRateLimit(ctx context.Context, client *HTTPClient, base string, maxRateRequests int) Check {
	path := model.Forms[model.FormNewsletter].Path
	body := caseFor(model.FormNewsletter).invalid
	start := time.Now()

	c := Check{Name: "rate limit", Method: http.MethodPost, Path: path, Want: http.StatusTooManyRequests}
	for i := 1; i <= maxRateRequests; i++ {
		status, reply, err := client.do(ctx, http.MethodPost, base+path, body)
		if err != nil {
			c.Err = err
			break
		}
		c.Got, c.Message = status, reply.Message
		if status == http.StatusTooManyRequests {
			c.Message = fmt.Sprintf("%s (after %d requests)", reply.Message, i)
			break
		}
	}
	c.Duration = time.Since(start)
	logCheck(c)
	return c
}

func logCheck(c Check) {
	mark := "✅"
	if !c.Passed() {
		mark = "❌"
	}
	if c.Err != nil {
		log.Printf("%s %-28s %s %s -> %v", mark, c.Name, c.Method, c.Path, c.Err)
		return
	}
	log.Printf("%s %-28s %s %s -> %d (want %d) %s", mark, c.Name, c.Method, c.Path, c.Got, c.Want, c.Message)
}

func displayReport(r *Report) {
	failed := r.Failed()
	log.Printf("📊 Smoke run finished in %v", r.Duration)
	log.Printf("   Checks: %d, passed: %d, failed: %d", len(r.Checks), len(r.Checks)-len(failed), len(failed))
	for _, c := range failed {
		log.Printf("   ❌ %s: got %d want %d", c.Name, c.Got, c.Want)
	}
}
