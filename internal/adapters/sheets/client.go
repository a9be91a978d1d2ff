// Package sheets posts submissions to the spreadsheet logging webhook.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/skybrain/formrelay/internal/domain/model"
	"github.com/skybrain/formrelay/pkg/logger"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 64 << 10
)

// Result is the webhook's reply. Only Success is relied on; the rest is informational.
type Result struct {
	Success         bool   `json:"success"`
	Message         string `json:"message,omitempty"`
	Error           string `json:"error,omitempty"`
	Urgency         string `json:"urgency,omitempty"`
	SubmissionCount int    `json:"submissionCount,omitempty"`
	// Skipped is set locally when no webhook is configured.
	Skipped bool `json:"-"`
}

// Status reports configuration only; aggregation lives in the spreadsheet.
type Status struct {
	Configured bool   `json:"configured"`
	Host       string `json:"webhookHost,omitempty"`
	Message    string `json:"message"`
}

// Client delivers records to one webhook with a single attempt per call.
type Client struct {
	url     string
	hc      *http.Client
	timeout time.Duration
	log     logger.Logger
	now     func() time.Time
}

// NewClient creates a Client. An empty webhookURL yields an unconfigured
// client whose Log is a warning-only no-op.
func NewClient(webhookURL string, opts ...Option) *Client {
	c := &Client{
		url:     webhookURL,
		timeout: defaultTimeout,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hc == nil {
		c.hc = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Configured reports whether a webhook URL is set.
func (c *Client) Configured() bool {
	return c.url != ""
}

// Log posts the record's sheet payload.
func (c *Client) Log(ctx context.Context, rec model.Record) (Result, error) {
	if !c.Configured() {
		c.log.Warn(ctx, "sheets webhook not configured, skipping sheet log",
			logger.String("submission_id", rec.ID),
			logger.String("form_type", string(rec.Type)))
		return Result{Skipped: true}, nil
	}
	payload, err := model.SheetPayload(rec)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrWebhook, err)
	}
	return c.post(ctx, payload)
}

// TestConnection posts a synthetic payload and reports the webhook's reply.
func (c *Client) TestConnection(ctx context.Context) (Result, error) {
	if !c.Configured() {
		return Result{}, ErrNotConfigured
	}
	return c.post(ctx, map[string]interface{}{
		"formType":     "test",
		"timestamp":    c.now().UTC().Format(model.TimestampLayout),
		"source":       "connection-test",
		"submissionId": uuid.NewString(),
		"test":         true,
		"message":      "Connection test from the form relay",
	})
}

// Stats returns configuration status.
func (c *Client) Stats(_ context.Context) Status {
	if !c.Configured() {
		return Status{Configured: false, Message: "Google Sheets webhook URL not configured"}
	}
	st := Status{Configured: true, Message: "Statistics are available in the Google Sheets dashboard"}
	if u, err := url.Parse(c.url); err == nil {
		st.Host = u.Host
	}
	return st
}

func (c *Client) post(ctx context.Context, payload map[string]interface{}) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode payload: %v", ErrWebhook, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: build request: %v", ErrWebhook, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: post: %v", ErrWebhook, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read response: %v", ErrWebhook, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrWebhook, resp.StatusCode, snippet(raw))
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, fmt.Errorf("%w: parse response: %v", ErrWebhook, err)
	}
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = res.Message
		}
		return res, fmt.Errorf("%w: rejected: %s", ErrWebhook, reason)
	}
	return res, nil
}

func snippet(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
