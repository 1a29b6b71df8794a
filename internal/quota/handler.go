package quota

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/docsmith-platform/docsmith/internal/api"
	"github.com/docsmith-platform/docsmith/internal/events"
	"github.com/docsmith-platform/docsmith/internal/identity"
)

// DenialResponse is the body returned on an admission denial, consumed by the
// UI to render an upgrade prompt.
type DenialResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Scope   Scope  `json:"scope"`
	Usage   Usage  `json:"usage"`
	Limits  Limits `json:"limits"`
}

// UsageResponse pairs the resolved counters with the caller's ceilings.
type UsageResponse struct {
	Usage  Usage  `json:"usage"`
	Limits Limits `json:"limits"`
}

type MigrateRequest struct {
	// IPAddress is the anonymous identity the caller used before signing in.
	IPAddress string `json:"ip_address" validate:"required,ip"`
}

type Handler struct {
	ledger    *Ledger
	publisher *events.Publisher
	validate  *validator.Validate
}

func NewHandler(ledger *Ledger, publisher *events.Publisher) *Handler {
	return &Handler{
		ledger:    ledger,
		publisher: publisher,
		validate:  validator.New(),
	}
}

// GetUsage returns the caller's current-period counters and tier limits.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	usage, err := h.ledger.GetUsage(r.Context(), id)
	if err != nil {
		slog.Error("getting usage", "identity", id.Key(), "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, UsageResponse{
		Usage:  usage,
		Limits: h.ledger.LimitsFor(id.Tier),
	})
}

// MigrateUsage merges the caller's pre-login anonymous usage into their user
// row. The auth frontend calls this once right after sign-in; repeated calls
// are harmless.
func (h *Handler) MigrateUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.IsAnonymous() {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req MigrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	anon := identity.Anonymous(req.IPAddress, "anonymous")
	if err := h.ledger.MigrateAnonymous(r.Context(), anon, id); err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.publisher.Audit(r.Context(), events.AuditEvent{
		Identity:  id.Key(),
		EventType: "usage_migrated",
		Severity:  "info",
		Details:   "merged " + anon.Key(),
		Timestamp: time.Now().UTC(),
	})

	usage, err := h.ledger.GetUsage(r.Context(), id)
	if err != nil {
		slog.Error("getting usage after migration", "identity", id.Key(), "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, UsageResponse{
		Usage:  usage,
		Limits: h.ledger.LimitsFor(id.Tier),
	})
}
