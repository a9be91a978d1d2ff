// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/skybrain/formrelay/internal/adapters/sheets"
	"github.com/skybrain/formrelay/pkg/logger"
)

// StatsProvider exposes the spreadsheet webhook status and connection test.
type StatsProvider interface {
	TestSheets(ctx context.Context) (sheets.Result, error)
	SheetsStats(ctx context.Context) sheets.Status
}

// StatsHandler handles stats and webhook test requests.
type StatsHandler struct {
	statsProvider StatsProvider
	log           logger.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider, log logger.Logger) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, log: log}
}

type statsResponse struct {
	Success bool          `json:"success"`
	Data    sheets.Status `json:"data"`
}

type testSheetsResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    *sheets.Result `json:"data,omitempty"`
}

// HandleStats handles GET /api/stats requests. Aggregates live in the
// spreadsheet, so only the configuration status is reported.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Success: true,
		Data:    h.statsProvider.SheetsStats(r.Context()),
	})
}

// HandleTestSheets handles GET /api/test-sheets requests. An unconfigured
// webhook is reported with 200 and success false; a failed test with 502.
func (h *StatsHandler) HandleTestSheets(w http.ResponseWriter, r *http.Request) {
	const op = "api.test_sheets"
	res, err := h.statsProvider.TestSheets(r.Context())
	switch {
	case errors.Is(err, sheets.ErrNotConfigured):
		writeJSON(w, http.StatusOK, testSheetsResponse{
			Success: false,
			Message: "Google Sheets webhook URL not configured",
		})
	case err != nil:
		h.log.Warn(r.Context(), "sheets connection test failed", logger.Error(WrapKind(op, ErrInternal, err)))
		writeJSON(w, http.StatusBadGateway, testSheetsResponse{
			Success: false,
			Message: "Google Sheets connection test failed",
		})
	default:
		writeJSON(w, http.StatusOK, testSheetsResponse{
			Success: true,
			Message: "Google Sheets connection successful",
			Data:    &res,
		})
	}
}
