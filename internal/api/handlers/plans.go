package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cvforge/internal/core"
	"cvforge/internal/types"
)

// PlanCatalog exposes the static plan and package definitions.
type PlanCatalog interface {
	Plans() []types.PlanDefinition
	Packages() []types.PackageDefinition
}

// PlanUpgrader performs self-serve plan transitions.
type PlanUpgrader interface {
	Upgrade(ctx context.Context, userID string, target types.PlanTier) (*types.PlanChange, error)
}

// UsageReporter summarizes the caller's current-period consumption.
type UsageReporter interface {
	Summary(ctx context.Context, userID string) ([]types.LimitStatus, error)
}

// UpgradeMailer sends the upgrade confirmation. Optional; failures are
// logged and never surfaced.
type UpgradeMailer interface {
	SendUpgradeConfirmation(ctx context.Context, email string, change types.PlanChange) error
}

// UpgradeRequest is the body for POST /v1/plans/upgrade.
type UpgradeRequest struct {
	Plan types.PlanTier `json:"plan" validate:"required,oneof=basic pro premium"`
}

// PlanHandler serves the plan catalog, upgrades, and usage summaries.
type PlanHandler struct {
	catalog   PlanCatalog
	upgrader  PlanUpgrader
	usage     UsageReporter
	mailer    UpgradeMailer
	validator *core.Validator
	logger    *slog.Logger
}

func NewPlanHandler(catalog PlanCatalog, upgrader PlanUpgrader, usage UsageReporter,
	mailer UpgradeMailer, v *core.Validator, logger *slog.Logger) *PlanHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanHandler{
		catalog:   catalog,
		upgrader:  upgrader,
		usage:     usage,
		mailer:    mailer,
		validator: v,
		logger:    logger,
	}
}

func (h *PlanHandler) RegisterRoutes(r chi.Router) {
	r.Get("/plans", h.ListPlans)
	r.Get("/packages", h.ListPackages)
	r.Post("/plans/upgrade", h.Upgrade)
	r.Get("/usage", h.UsageSummary)
}

// ListPlans handles GET /v1/plans. The catalog is static, so this needs
// no auth context beyond the middleware gate.
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.catalog.Plans()})
}

// ListPackages handles GET /v1/packages.
func (h *PlanHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.catalog.Packages()})
}

// Upgrade handles POST /v1/plans/upgrade for the current actor.
func (h *PlanHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req UpgradeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	change, err := h.upgrader.Upgrade(r.Context(), actor.ID, req.Plan)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if h.mailer != nil && actor.Email != "" {
		if err := h.mailer.SendUpgradeConfirmation(r.Context(), actor.Email, *change); err != nil {
			h.logger.WarnContext(r.Context(), "upgrade confirmation email failed",
				"user_id", actor.ID, "error", err)
		}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: change})
}

// UsageSummary handles GET /v1/usage for the current actor.
func (h *PlanHandler) UsageSummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	summary, err := h.usage.Summary(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: summary})
}
