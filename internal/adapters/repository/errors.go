package repository

import "errors"

// Sentinel kinds for rate limit store errors.
var (
	ErrEmptyKey   = errors.New("empty rate limit key")
	ErrConnect    = errors.New("connect rate limit store")
	ErrOperation  = errors.New("rate limit store operation")
	ErrMissingURI = errors.New("missing mongo uri")
)
