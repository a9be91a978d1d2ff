package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

const (
	defaultSMTPHost    = "smtp.gmail.com"
	defaultSMTPPort    = 465
	defaultSMTPTimeout = 15 * time.Second
)

// Message is one outgoing email.
type Message struct {
	FromAddress string
	FromName    string
	To          string
	ReplyTo     string
	Subject     string
	HTML        string
}

// Transport delivers a Message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPTransport submits mail to a fixed provider over implicit TLS with PLAIN
// auth. A fresh client is dialled for every message.
type SMTPTransport struct {
	host     string
	port     int
	username string
	password string
	timeout  time.Duration
}

var _ Transport = (*SMTPTransport)(nil)

// NewSMTPTransport creates an SMTPTransport.
func NewSMTPTransport(opts ...SMTPOption) *SMTPTransport {
	t := &SMTPTransport{
		host:    defaultSMTPHost,
		port:    defaultSMTPPort,
		timeout: defaultSMTPTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Configured reports whether credentials are present.
func (t *SMTPTransport) Configured() bool {
	return t.username != "" && t.password != ""
}

// Send dials, authenticates and submits msg.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if !t.Configured() {
		return ErrNotConfigured
	}

	m, err := t.build(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(t.host,
		mail.WithPort(t.port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(t.username),
		mail.WithPassword(t.password),
		mail.WithTimeout(t.timeout),
	)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp %s:%d: %w", t.host, t.port, err)
	}
	return nil
}

func (t *SMTPTransport) build(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	from := msg.FromAddress
	if from == "" {
		from = t.username
	}
	if msg.FromName != "" {
		if err := m.FromFormat(msg.FromName, from); err != nil {
			return nil, fmt.Errorf("from %q: %w", from, err)
		}
	} else if err := m.From(from); err != nil {
		return nil, fmt.Errorf("from %q: %w", from, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("to %q: %w", msg.To, err)
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("reply-to %q: %w", msg.ReplyTo, err)
		}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	return m, nil
}
