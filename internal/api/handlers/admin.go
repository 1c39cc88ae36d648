package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cvforge/internal/core"
	"cvforge/internal/types"
)

// PlanOverrider assigns any valid tier without upgrade-path rules.
type PlanOverrider interface {
	SetPlanDirect(ctx context.Context, actor types.Actor, userID string, target types.PlanTier) (*types.PlanChange, error)
}

// UsageResetter zeroes a user's usage counters.
type UsageResetter interface {
	ResetForUser(ctx context.Context, userID string) error
}

// AdminUsageReporter reads any user's usage for support inspection.
type AdminUsageReporter interface {
	Summary(ctx context.Context, userID string) ([]types.LimitStatus, error)
}

// SetPlanRequest is the body for PUT /v1/admin/users/{id}/plan.
type SetPlanRequest struct {
	Plan types.PlanTier `json:"plan" validate:"required,oneof=basic pro premium"`
}

// AdminHandler serves the operational override surface. Routes must be
// mounted behind the RequireAdmin middleware.
type AdminHandler struct {
	plans     PlanOverrider
	usage     UsageResetter
	reporter  AdminUsageReporter
	validator *core.Validator
	logger    *slog.Logger
}

func NewAdminHandler(plans PlanOverrider, usage UsageResetter, reporter AdminUsageReporter,
	v *core.Validator, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{plans: plans, usage: usage, reporter: reporter, validator: v, logger: logger}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/users/{id}", func(r chi.Router) {
		r.Put("/plan", h.SetPlan)
		r.Post("/usage/reset", h.ResetUsage)
		r.Get("/usage", h.UserUsage)
	})
}

// SetPlan handles PUT /v1/admin/users/{id}/plan, the unconditional
// plan override.
func (h *AdminHandler) SetPlan(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req SetPlanRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	userID := chi.URLParam(r, "id")
	change, err := h.plans.SetPlanDirect(r.Context(), actor, userID, req.Plan)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "admin plan override applied",
		"actor_id", actor.ID, "user_id", userID, "plan", req.Plan)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: change})
}

// ResetUsage handles POST /v1/admin/users/{id}/usage/reset.
func (h *AdminHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	userID := chi.URLParam(r, "id")
	if err := h.usage.ResetForUser(r.Context(), userID); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "admin usage reset applied",
		"actor_id", actor.ID, "user_id", userID)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"status": "usage_reset"}})
}

// UserUsage handles GET /v1/admin/users/{id}/usage.
func (h *AdminHandler) UserUsage(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reporter.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: summary})
}
