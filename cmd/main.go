package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skybrain/formrelay/internal/adapters/http/api"
	"github.com/skybrain/formrelay/internal/adapters/http/swagger"
	"github.com/skybrain/formrelay/internal/adapters/mailer"
	"github.com/skybrain/formrelay/internal/adapters/repository"
	"github.com/skybrain/formrelay/internal/adapters/sheets"
	app "github.com/skybrain/formrelay/internal/app"
	"github.com/skybrain/formrelay/internal/config"
	"github.com/skybrain/formrelay/internal/domain/ratelimit"
	"github.com/skybrain/formrelay/pkg/logger"
	"github.com/skybrain/formrelay/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	serverShutdownTimeout     = 10 * time.Second
	storeConnectTimeout       = 10 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "form relay exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logger.Get()

	// Load configuration (.env -> defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, closeStore, err := newRateLimitStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter := ratelimit.New(store,
		ratelimit.WithWindow(cfg.RateLimitWindow),
		ratelimit.WithCeiling(cfg.RateLimitMax),
		ratelimit.WithLogger(log.Named("ratelimit")),
		ratelimit.WithSweepHook(func(_, remaining int) { metrics.UpdateRateLimitEntries(remaining) }),
	)

	transport := mailer.NewSMTPTransport(
		mailer.WithServer(cfg.SMTPHost, cfg.SMTPPort),
		mailer.WithCredentials(cfg.SMTPUsername, cfg.SMTPPassword),
		mailer.WithTimeout(cfg.SMTPTimeout),
	)
	if !transport.Configured() {
		log.Warn(ctx, "smtp credentials not configured; every email delivery will fail and be logged")
	}
	dispatcher := mailer.NewDispatcher(transport,
		mailer.WithSender(cfg.SMTPUsername, cfg.SMTPFromName),
		mailer.WithLogger(log.Named("mailer")),
	)

	sheetsClient := sheets.NewClient(cfg.SheetsWebhookURL,
		sheets.WithTimeout(cfg.WebhookTimeout),
		sheets.WithLogger(log.Named("sheets")),
	)
	if !sheetsClient.Configured() {
		log.Warn(ctx, "sheets webhook not configured; submissions will only be emailed")
	}

	svc := app.New(
		app.WithLimiter(limiter),
		app.WithMailer(dispatcher),
		app.WithSheets(sheetsClient),
		app.WithAdminEmail(cfg.AdminEmail),
		app.WithSweepInterval(cfg.RateLimitSweepInterval),
		app.WithBackgroundConcurrency(cfg.BackgroundConcurrency),
		app.WithShutdownTimeout(cfg.ShutdownTimeout),
		app.WithLogger(log.Named("relay")),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			log.Warn(context.Background(), "service stop incomplete", logger.Error(err))
		}
	}()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	r := chi.NewRouter()
	apiServer := api.NewServer(svc,
		api.WithLogger(log.Named("http")),
		api.WithCORS(api.CORSPolicy{AllowedOrigins: cfg.Origins(), AllowAll: cfg.IsProduction()}),
	)
	apiServer.Register(ctx, r)
	swagger.Register(ctx, r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("environment", cfg.Environment),
			logger.Int("rate_limit_max", cfg.RateLimitMax),
			logger.String("rate_limit_store", cfg.RateLimitStore))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newRateLimitStore builds the configured store and a func releasing it.
func newRateLimitStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, func(), error) {
	if cfg.RateLimitStore != config.StoreMongo {
		return repository.NewMemoryStore(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
	defer cancel()
	store, err := repository.NewMongoStore(connectCtx, cfg.MongoURI,
		repository.WithDatabase(cfg.MongoDatabase),
		repository.WithCollection(cfg.MongoCollection),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("rate limit store: %w", err)
	}
	return store, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
		defer cancel()
		_ = store.Close(closeCtx)
	}, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the service gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats refreshes the rate limit entries gauge as a side effect.
			_ = svc.GetStats()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
