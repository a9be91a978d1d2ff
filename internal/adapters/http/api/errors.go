package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrValidation       = errors.New("validation failed")
	ErrRateLimited      = errors.New("rate limited")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrInternal         = errors.New("internal error")
)

// KindError tags an underlying error with the operation that failed and one
// of the sentinel kinds above. Only the kind is ever shown to callers.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

// NewKind builds a KindError with no underlying cause.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}

// WrapKind tags err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &KindError{Op: op, Kind: kind, Err: err}
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
