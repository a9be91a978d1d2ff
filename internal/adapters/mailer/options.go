// Package mailer renders notification templates and sends them over SMTP.
package mailer

import (
	"time"

	"github.com/skybrain/formrelay/pkg/logger"
)

// SMTPOption applies a configuration option to the SMTPTransport.
type SMTPOption func(*SMTPTransport)

// WithServer sets the SMTP host and implicit-TLS port.
func WithServer(host string, port int) SMTPOption {
	return func(t *SMTPTransport) {
		if host != "" {
			t.host = host
		}
		if port > 0 {
			t.port = port
		}
	}
}

// WithCredentials sets the account identity and app secret used for PLAIN auth.
func WithCredentials(username, password string) SMTPOption {
	return func(t *SMTPTransport) {
		t.username = username
		t.password = password
	}
}

// WithTimeout bounds dialing and sending one message.
func WithTimeout(d time.Duration) SMTPOption {
	return func(t *SMTPTransport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithSender sets the From address and display name.
func WithSender(address, name string) Option {
	return func(d *Dispatcher) {
		d.fromAddress = address
		d.fromName = name
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(log logger.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// SendOption adjusts a single message.
type SendOption func(*Message)

// WithReplyTo sets the Reply-To header, so operators can answer the submitter directly.
func WithReplyTo(address string) SendOption {
	return func(m *Message) {
		m.ReplyTo = address
	}
}
