package validation

import "errors"

// Sentinel kinds for validation errors.
var (
	ErrRegisterRule = errors.New("register validation rule")
)
