package model

import "errors"

// Sentinel kinds for model errors.
var (
	ErrUnknownForm = errors.New("unknown form type")
)
