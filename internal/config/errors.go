package config

import "errors"

var (
	// ErrInvalidConfig wraps every Validate failure; the message names the key.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps failures reading the YAML file or decoding values.
	ErrLoadConfig = errors.New("load config failed")
)
