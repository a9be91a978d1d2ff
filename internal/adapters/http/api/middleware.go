// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"fmt"
	"net"
	"net/http"
	"path"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/skybrain/formrelay/internal/domain/ratelimit"
	"github.com/skybrain/formrelay/pkg/logger"
	"github.com/skybrain/formrelay/pkg/metrics"
)

// HTTP status code constants.
const (
	statusBadRequest      = 400
	statusNotFound        = 404
	statusMethodNotAllow  = 405
	statusTooManyRequests = 429
	statusInternalError   = 500
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		seconds := time.Since(start).Seconds()
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, seconds)

		if wrapped.statusCode >= statusBadRequest {
			metrics.RecordErrorByComponent("http", getErrorType(wrapped.statusCode))
		}
	}
}

// getErrorType returns a standardized error type based on HTTP status code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode >= statusInternalError:
		return "server_error"
	case statusCode == statusTooManyRequests:
		return "rate_limit"
	case statusCode == statusMethodNotAllow:
		return "method_not_allowed"
	case statusCode == statusNotFound:
		return "not_found"
	case statusCode >= statusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}

// Recover turns a panic into the generic 500 body. The panic value and stack
// are logged; nothing of them reaches the caller.
func Recover(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := WrapKind("api.recover", ErrInternal, fmt.Errorf("panic: %v", rec))
				log.Error(r.Context(), "handler panicked",
					logger.String("request_id", middleware.GetReqID(r.Context())),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.String("stack", string(debug.Stack())),
					logger.Error(err))
				metrics.RecordErrorByComponent("http", "panic")
				writeFailure(w, http.StatusInternalServerError, msgInternal, nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORSPolicy decides which origins are echoed back.
type CORSPolicy struct {
	// AllowedOrigins are exact origins or path.Match patterns such as
	// "https://skybrain-*.vercel.app".
	AllowedOrigins []string
	// AllowAll echoes any origin; set in production.
	AllowAll bool
}

// Allows reports whether origin may be echoed.
func (p CORSPolicy) Allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.AllowAll {
		return true
	}
	for _, allowed := range p.AllowedOrigins {
		if allowed == origin {
			return true
		}
		if strings.Contains(allowed, "*") {
			if ok, err := path.Match(allowed, origin); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// CORS sets the CORS headers on every response. Origins outside the policy
// get no Access-Control-Allow-Origin header at all.
func CORS(p CORSPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin := r.Header.Get("Origin"); p.Allows(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP resolves the rate limit key of a request: the first
// X-Forwarded-For entry, then X-Real-IP, then the connection address. All
// unidentifiable clients share ratelimit.UnknownClient.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host = strings.TrimSpace(host); host != "" {
			return host
		}
	}
	return ratelimit.UnknownClient
}
