package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrInvalid         = errors.New("invalid submission")
	ErrStopped         = errors.New("service stopped")
	ErrShutdownTimeout = errors.New("background deliveries still running at shutdown")
	ErrTaskPanic       = errors.New("background task panicked")
)
