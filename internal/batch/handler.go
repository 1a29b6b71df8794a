package batch

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/docsmith-platform/docsmith/internal/api"
	"github.com/docsmith-platform/docsmith/internal/identity"
	"github.com/docsmith-platform/docsmith/internal/quota"
)

// StartRequest selects the files for a run. An empty Files list falls back to
// the editor buffer as a single ad-hoc job.
type StartRequest struct {
	Files        []FileInput `json:"files" validate:"omitempty,max=50,dive"`
	EditorBuffer *FileInput  `json:"editor_buffer,omitempty"`
	Mode         Mode        `json:"mode" validate:"omitempty,oneof=all missing"`
}

type ResultResponse struct {
	Summary *BatchRun `json:"summary"`
	Report  string    `json:"report"`
}

type Handler struct {
	orchestrator *Orchestrator
	ledger       *quota.Ledger
	validate     *validator.Validate
}

func NewHandler(orchestrator *Orchestrator, ledger *quota.Ledger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		ledger:       ledger,
		validate:     validator.New(),
	}
}

// Start launches a batch run for the caller. Batch is a tier feature: callers
// whose tier does not carry it get 403 regardless of remaining quota.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if !h.ledger.LimitsFor(id.Tier).Batch {
		// Drop any session leftovers from a previous, higher tier.
		if err := h.orchestrator.sessions.Clear(r.Context(), id); err != nil {
			slog.Warn("clearing batch session on tier gate", "identity", id.Key(), "error", err)
		}
		api.HandleError(w, api.ErrBatchNotInTier)
		return
	}

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	input := StartInput{Files: req.Files, Mode: req.Mode}
	if req.EditorBuffer != nil {
		input.EditorBuffer = *req.EditorBuffer
	}

	run, err := h.orchestrator.Start(r.Context(), id, input)
	if err != nil {
		h.handleStartError(w, id, err)
		return
	}

	api.JSON(w, http.StatusAccepted, map[string]any{
		"run_id": run.ID,
		"state":  h.orchestrator.runState(run),
	})
}

func (h *Handler) handleStartError(w http.ResponseWriter, id identity.Identity, err error) {
	var denied *AdmissionDeniedError
	switch {
	case errors.As(err, &denied):
		api.JSON(w, http.StatusTooManyRequests, quota.DenialResponse{
			Allowed: false,
			Reason:  denied.Decision.Reason,
			Scope:   denied.Decision.Scope,
			Usage:   denied.Usage,
			Limits:  denied.Limits,
		})
	case errors.Is(err, ErrRunActive):
		api.HandleError(w, api.NewConflictError(err.Error()))
	case errors.Is(err, ErrConfirmationRequired):
		api.JSON(w, http.StatusConflict, map[string]any{
			"state":  StateConfirming,
			"reason": err.Error(),
		})
	case errors.Is(err, ErrNothingToRun):
		api.HandleError(w, api.NewBadRequestError(err.Error()))
	default:
		slog.Error("starting batch run", "identity", id.Key(), "error", err)
		api.HandleError(w, api.ErrInternalServer)
	}
}

// Progress returns the run's current state, per-file statuses, reload
// progress and the throttle countdown. The UI polls this once a second.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	snap, err := h.orchestrator.Progress(id)
	if err != nil {
		api.HandleError(w, api.NewNotFoundError(err.Error()))
		return
	}
	api.JSON(w, http.StatusOK, snap)
}

// Cancel requests cooperative cancellation of the caller's run.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.orchestrator.Cancel(id); err != nil {
		api.HandleError(w, api.NewNotFoundError(err.Error()))
		return
	}
	api.JSONMessage(w, http.StatusAccepted, "cancellation requested")
}

// Result returns the summary and rendered report of a finished run. Falls
// back to the session mirror when the in-memory run is gone, so a restarted
// instance can still serve the last summary.
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	summary, report, err := h.orchestrator.Result(id)
	switch {
	case errors.Is(err, ErrNoRun):
		summary, report, err = h.orchestrator.sessions.Load(r.Context(), id)
		if err != nil {
			slog.Error("loading batch session", "identity", id.Key(), "error", err)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		if summary == nil {
			api.HandleError(w, api.NewNotFoundError("no batch result"))
			return
		}
	case err != nil:
		// The run exists but has not reached a terminal state.
		api.HandleError(w, api.NewConflictError(err.Error()))
		return
	}

	api.JSON(w, http.StatusOK, ResultResponse{Summary: summary, Report: report})
}

// Reset drops the caller's finished run and its session mirror.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.orchestrator.Reset(r.Context(), id); err != nil {
		if errors.Is(err, ErrRunActive) {
			api.HandleError(w, api.NewConflictError(err.Error()))
			return
		}
		slog.Error("resetting batch run", "identity", id.Key(), "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSONMessage(w, http.StatusOK, "batch state cleared")
}
