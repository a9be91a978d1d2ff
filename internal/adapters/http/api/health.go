// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"time"

	"github.com/skybrain/formrelay/internal/domain/model"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	now func() time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{now: time.Now}
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// HandleHealth handles GET /api/health requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "OK",
		Timestamp: h.now().UTC().Format(model.TimestampLayout),
	})
}
