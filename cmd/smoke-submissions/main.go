package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/skybrain/formrelay/internal/smoketest"
	"github.com/skybrain/formrelay/pkg/logger"
)

// Default configuration constants.
const (
	defaultMaxRateRequests = 60
	defaultTimeout         = 10 * time.Second
	defaultTestTimeout     = 2 * time.Minute
)

func main() {
	var (
		baseURL          = flag.String("url", "http://localhost:3001", "Base URL of the service")
		origin           = flag.String("origin", "http://localhost:3000", "Origin header sent with every request")
		sendValid        = flag.Bool("send-valid", false, "Also post one valid body per form")
		exhaustRateLimit = flag.Bool("exhaust-rate-limit", false, "Post until the relay answers 429")
		maxRateRequests  = flag.Int("max-rate-requests", defaultMaxRateRequests, "Upper bound on rate limit requests")
		timeout          = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile          = flag.String("log", "", "Log file for test output (default: smoke_log_TIMESTAMP.log)")
		verbose          = flag.Bool("verbose", false, "Enable verbose logging")
		help             = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		smoketest.ShowHelp()
		return
	}

	if err := smoketest.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &smoketest.Config{
		BaseURL:          *baseURL,
		Origin:           *origin,
		Timeout:          *timeout,
		SendValid:        *sendValid,
		ExhaustRateLimit: *exhaustRateLimit,
		MaxRateRequests:  *maxRateRequests,
		LogFile:          *logFile,
		Verbose:          *verbose,
	}

	if _, err := smoketest.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Smoke run failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
