// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skybrain/formrelay/internal/adapters/sheets"
	"github.com/skybrain/formrelay/internal/domain/model"
	"github.com/skybrain/formrelay/internal/domain/ratelimit"
	"github.com/skybrain/formrelay/pkg/logger"
	"github.com/skybrain/formrelay/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Check counts one request of clientIP against the form's window.
	Check(ctx context.Context, ft model.FormType, clientIP string) ratelimit.Decision

	// Submit validates and accepts a payload. Delivery happens after it returns.
	Submit(ctx context.Context, fields model.Fields) (model.Record, error)

	// TestSheets and SheetsStats expose the spreadsheet webhook.
	TestSheets(ctx context.Context) (sheets.Result, error)
	SheetsStats(ctx context.Context) sheets.Status
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithCORS sets the CORS policy applied to every route.
func WithCORS(p CORSPolicy) Option {
	return func(s *Server) {
		s.cors = p
	}
}

// Server wires HTTP routes for the form relay.
type Server struct {
	deps Dependencies
	log  logger.Logger
	cors CORSPolicy

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	formHandlers  []*FormHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps: deps,
		log:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps, s.log)
	for _, ft := range model.OrderedForms {
		s.formHandlers = append(s.formHandlers, NewFormHandler(model.Forms[ft], deps, s.log))
	}
	return s
}

// Register attaches middleware and all HTTP routes to r. Middleware must be
// registered before routes, so call it on a fresh router.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(Recover(s.log))
	r.Use(CORS(s.cors))

	r.MethodNotAllowed(s.handleMethodNotAllowed)
	r.NotFound(handleNotFound)

	r.Get("/api/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	r.Get("/api/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Get("/api/test-sheets", MetricsMiddleware(s.statsHandler.HandleTestSheets, "test_sheets"))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	for _, h := range s.formHandlers {
		endpoint := string(h.form.Type)
		r.Post(h.form.Path, MetricsMiddleware(h.HandleSubmit, endpoint))
		r.Options(h.form.Path, handlePreflight)
	}
}

// Handler returns a router with every route registered.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

// response is the body of every form endpoint.
type response struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// Caller-facing messages.
const (
	msgInvalidBody      = "Invalid request body"
	msgValidationFailed = "Validation failed"
	msgMethodNotAllowed = "Method not allowed"
	msgNotFound         = "Not found"
	msgInternal         = "Internal server error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, msg string, errs []string) {
	writeJSON(w, status, response{Success: false, Message: msg, Errors: errs})
}

func handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.log.Debug(r.Context(), "route called with wrong method",
		logger.String("request_id", middleware.GetReqID(r.Context())),
		logger.String("path", r.URL.Path),
		logger.Error(WrapKind("api.route", ErrMethodNotAllowed, errors.New(r.Method))))
	writeFailure(w, http.StatusMethodNotAllowed, msgMethodNotAllowed, nil)
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeFailure(w, http.StatusNotFound, msgNotFound, nil)
}
