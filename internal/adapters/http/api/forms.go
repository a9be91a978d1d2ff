package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	service "github.com/skybrain/formrelay/internal/app"
	"github.com/skybrain/formrelay/internal/domain/model"
	"github.com/skybrain/formrelay/internal/domain/ratelimit"
	"github.com/skybrain/formrelay/pkg/logger"
	"github.com/skybrain/formrelay/pkg/metrics"
)

// maxBodyBytes bounds a form body; larger bodies are treated as malformed.
const maxBodyBytes = 64 << 10

// FormHandler serves the POST endpoint of one form type.
type FormHandler struct {
	form model.Form
	deps Dependencies
	log  logger.Logger
}

// NewFormHandler creates a handler for form.
func NewFormHandler(form model.Form, deps Dependencies, log logger.Logger) *FormHandler {
	return &FormHandler{form: form, deps: deps, log: log}
}

// HandleSubmit runs the gates in order (rate limit, body, validation) and
// answers as soon as the submission is accepted. Delivery failures after
// that point never reach the caller.
func (h *FormHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit"
	ctx := r.Context()
	ft := string(h.form.Type)
	reqID := middleware.GetReqID(ctx)

	if r.Method != http.MethodPost {
		h.log.Debug(ctx, "form endpoint called with wrong method",
			logger.String("request_id", reqID),
			logger.String("form_type", ft),
			logger.Error(WrapKind(op, ErrMethodNotAllowed, errors.New(r.Method))))
		writeFailure(w, http.StatusMethodNotAllowed, msgMethodNotAllowed, nil)
		return
	}
	metrics.RecordSubmissionReceived(ft)

	ip := ClientIP(r)
	if d := h.deps.Check(ctx, h.form.Type, ip); !d.Allowed {
		metrics.RecordSubmissionRejected(ft, metrics.ReasonRateLimited)
		h.log.Info(ctx, "submission rate limited",
			logger.String("request_id", reqID),
			logger.String("form_type", ft),
			logger.String("client_ip", ip),
			logger.Error(NewKind(op, ErrRateLimited)))
		w.Header().Set("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(d.RetryAfter)))
		writeFailure(w, http.StatusTooManyRequests, "Too many submissions from this IP. "+d.RetryAfterLabel, nil)
		return
	}

	fields := h.form.New()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(fields); err != nil {
		metrics.RecordSubmissionRejected(ft, metrics.ReasonMalformed)
		h.log.Debug(ctx, "malformed submission body",
			logger.String("request_id", reqID),
			logger.String("form_type", ft),
			logger.Error(WrapKind(op, ErrBadRequest, err)))
		writeFailure(w, http.StatusBadRequest, msgInvalidBody, nil)
		return
	}

	rec, err := h.deps.Submit(ctx, fields)
	if err != nil {
		var invalid *service.InvalidError
		if errors.As(err, &invalid) {
			metrics.RecordSubmissionRejected(ft, metrics.ReasonInvalid)
			h.log.Debug(ctx, "submission failed validation",
				logger.String("request_id", reqID),
				logger.String("form_type", ft),
				logger.Any("errors", invalid.Errors),
				logger.Error(WrapKind(op, ErrValidation, err)))
			writeFailure(w, http.StatusBadRequest, msgValidationFailed, invalid.Errors)
			return
		}
		h.log.Error(ctx, "submission could not be accepted",
			logger.String("request_id", reqID),
			logger.String("form_type", ft),
			logger.Error(WrapKind(op, ErrInternal, err)))
		writeFailure(w, http.StatusInternalServerError, msgInternal, nil)
		return
	}

	metrics.RecordSubmissionAccepted(ft)
	h.log.Debug(ctx, "submission acknowledged",
		logger.String("request_id", reqID),
		logger.String("submission_id", rec.ID),
		logger.String("form_type", ft))
	writeJSON(w, http.StatusOK, response{Success: true, Message: h.form.Accepted})
}
