package sheets

import "errors"

// Sentinel kinds for webhook errors.
var (
	// ErrWebhook wraps every failed delivery: transport errors, non-2xx
	// statuses, unparseable bodies and explicit success:false replies.
	ErrWebhook = errors.New("sheets webhook")
	// ErrNotConfigured is returned by TestConnection when no URL is set.
	ErrNotConfigured = errors.New("sheets webhook not configured")
)
