package mailer

import "errors"

// Sentinel kinds for mail delivery errors.
var (
	ErrNotConfigured = errors.New("smtp transport not configured")
	ErrRender        = errors.New("render email")
	ErrSend          = errors.New("send email")
	ErrNoRecipient   = errors.New("missing recipient")
)
