package smoketest

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/skybrain/formrelay/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "smoke_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the smoke tool.
func ShowHelp() {
	os.Stdout.WriteString(`Form Relay Smoke Tool
=====================

Checks a running form relay: health, preflight, method handling, and
one invalid (and optionally one valid) submission per form.

Usage:
  go run ./cmd/smoke-submissions [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:3001")
  -origin string
        Origin header sent with every request (default "http://localhost:3000")
  -send-valid
        Also post one valid body per form. Sends real emails and sheet rows.
  -exhaust-rate-limit
        Post invalid newsletter bodies until the relay answers 429
  -max-rate-requests int
        Upper bound on rate limit requests (default 60)
  -timeout duration
        HTTP request timeout (default 10s)
  -log string
        Log file for test output (default: smoke_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help

Examples:
  go run ./cmd/smoke-submissions -url https://forms.skybrain.in -send-valid
  go run ./cmd/smoke-submissions -exhaust-rate-limit -max-rate-requests 10
`)
}
