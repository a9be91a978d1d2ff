package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/skybrain/formrelay/internal/domain/model"
	"github.com/skybrain/formrelay/internal/templates"
	"github.com/skybrain/formrelay/pkg/logger"
)

// Delivery describes a message the transport accepted.
type Delivery struct {
	To       string
	Template string
	Subject  string
	SentAt   time.Time
	Duration time.Duration
}

// Dispatcher renders a template for a record and hands it to a Transport.
// Each Send is a single best-effort attempt; there is no retry.
type Dispatcher struct {
	transport   Transport
	fromAddress string
	fromName    string
	log         logger.Logger
	now         func() time.Time
}

// NewDispatcher creates a Dispatcher over transport.
func NewDispatcher(transport Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		log:       logger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send renders tmpl for rec and sends it to the given address. Errors wrap
// ErrRender or ErrSend and name the template and recipient.
func (d *Dispatcher) Send(ctx context.Context, to string, tmpl templates.Template, rec model.Record, opts ...SendOption) (Delivery, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return Delivery{}, fmt.Errorf("%w: template %s", ErrNoRecipient, tmpl.Name)
	}
	if tmpl.Render == nil {
		return Delivery{}, fmt.Errorf("%w: template %s to %s: no renderer", ErrRender, tmpl.Name, to)
	}

	out, err := tmpl.Render(rec)
	if err != nil {
		return Delivery{}, fmt.Errorf("%w: template %s to %s: %v", ErrRender, tmpl.Name, to, err)
	}

	msg := Message{
		FromAddress: d.fromAddress,
		FromName:    d.fromName,
		To:          to,
		Subject:     out.Subject,
		HTML:        out.HTML,
	}
	for _, opt := range opts {
		opt(&msg)
	}

	start := d.now()
	if err := d.transport.Send(ctx, msg); err != nil {
		return Delivery{}, fmt.Errorf("%w: template %s to %s: %w", ErrSend, tmpl.Name, to, err)
	}
	sent := d.now()

	d.log.Debug(ctx, "email sent",
		logger.String("submission_id", rec.ID),
		logger.String("template", tmpl.Name),
		logger.String("recipient", to))

	return Delivery{
		To:       to,
		Template: tmpl.Name,
		Subject:  out.Subject,
		SentAt:   sent,
		Duration: sent.Sub(start),
	}, nil
}
