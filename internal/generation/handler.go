package generation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/docsmith-platform/docsmith/internal/api"
	"github.com/docsmith-platform/docsmith/internal/events"
	"github.com/docsmith-platform/docsmith/internal/identity"
	"github.com/docsmith-platform/docsmith/internal/metrics"
	"github.com/docsmith-platform/docsmith/internal/quota"
)

// GenerateRequest is the single-file generation payload.
type GenerateRequest struct {
	Code     string `json:"code" validate:"required,min=1"`
	DocType  string `json:"doc_type" validate:"required,oneof=readme api inline tutorial architecture"`
	Language string `json:"language" validate:"required,min=1,max=64"`
	Filename string `json:"filename" validate:"required,min=1,max=255"`
}

// GenerateResponse pairs the document with the caller's post-increment usage.
type GenerateResponse struct {
	Documentation string       `json:"documentation"`
	QualityScore  QualityScore `json:"quality_score"`
	GeneratedAt   time.Time    `json:"generated_at"`
	Usage         quota.Usage  `json:"usage"`
}

type Handler struct {
	client    *Client
	ledger    *quota.Ledger
	publisher *events.Publisher
	validate  *validator.Validate
}

func NewHandler(client *Client, ledger *quota.Ledger, publisher *events.Publisher) *Handler {
	return &Handler{
		client:    client,
		ledger:    ledger,
		publisher: publisher,
		validate:  validator.New(),
	}
}

// Generate runs the single-file path: admission check, upstream call, ledger
// increment. Admission is checked against freshly read usage on every call.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	usage, err := h.ledger.GetUsage(r.Context(), id)
	if err != nil {
		slog.Error("reading usage for admission", "identity", id.Key(), "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	limits := h.ledger.LimitsFor(id.Tier)
	decision := quota.CheckUsageLimits(usage, limits)
	if !decision.Allowed {
		metrics.QuotaDenialsTotal.WithLabelValues(string(decision.Scope)).Inc()
		h.publisher.Audit(r.Context(), events.AuditEvent{
			Identity:  id.Key(),
			EventType: "quota_denied",
			Severity:  "info",
			Details:   decision.Reason,
			Timestamp: time.Now().UTC(),
		})
		api.JSON(w, http.StatusTooManyRequests, quota.DenialResponse{
			Allowed: false,
			Reason:  decision.Reason,
			Scope:   decision.Scope,
			Usage:   usage,
			Limits:  limits,
		})
		return
	}

	start := time.Now()
	result, err := h.client.Generate(r.Context(), Request{
		Code:      req.Code,
		DocType:   req.DocType,
		Language:  req.Language,
		Filename:  req.Filename,
		CacheHint: id.Key(),
	})
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GenerationJobsTotal.WithLabelValues("single", "failed").Inc()
		h.publisher.JobFinished(r.Context(), events.JobEvent{
			JobID:     uuid.New(),
			Identity:  id.Key(),
			Filename:  req.Filename,
			DocType:   req.DocType,
			Status:    "failed",
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})

		var serverErr *ServerError
		if errors.As(err, &serverErr) {
			slog.Warn("generator rejected request", "status", serverErr.Status, "message", serverErr.Message)
			api.JSONErrorMessage(w, http.StatusBadGateway, serverErr.Error())
			return
		}
		slog.Warn("generator unreachable", "error", err)
		api.JSONErrorMessage(w, http.StatusBadGateway, "documentation generator is unavailable")
		return
	}

	// A failed increment must not fail the user's request, but it is loud:
	// the ledger now under-counts until reconciliation.
	if err := h.ledger.Increment(r.Context(), id, 1); err != nil {
		metrics.LedgerWriteFailuresTotal.Inc()
		h.publisher.Audit(r.Context(), events.AuditEvent{
			Identity:  id.Key(),
			EventType: "ledger_write_failed",
			Severity:  "error",
			Details:   err.Error(),
			Timestamp: time.Now().UTC(),
		})
	}

	metrics.GenerationJobsTotal.WithLabelValues("single", "succeeded").Inc()
	h.publisher.JobFinished(r.Context(), events.JobEvent{
		JobID:     uuid.New(),
		Identity:  id.Key(),
		Filename:  req.Filename,
		DocType:   req.DocType,
		Status:    "succeeded",
		Score:     result.QualityScore.Score,
		Timestamp: time.Now().UTC(),
	})

	usage, err = h.ledger.GetUsage(r.Context(), id)
	if err != nil {
		slog.Warn("reading usage after increment", "identity", id.Key(), "error", err)
	}

	api.JSON(w, http.StatusOK, GenerateResponse{
		Documentation: result.Documentation,
		QualityScore:  result.QualityScore,
		GeneratedAt:   time.Now().UTC(),
		Usage:         usage,
	})
}
