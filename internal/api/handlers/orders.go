package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cvforge/internal/core"
	"cvforge/internal/orders"
	"cvforge/internal/types"
)

// OrderService is the purchase surface the order handler drives.
type OrderService interface {
	Checkout(ctx context.Context, userID string, pkg types.PackageType, cvID string) (*orders.CheckoutResult, error)
	VerifyPayment(ctx context.Context, reference string) (*types.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (*types.Order, error)
	ListOrders(ctx context.Context, userID string, limit int) ([]types.Order, error)
}

// CheckoutRequest is the body for POST /v1/orders/checkout.
type CheckoutRequest struct {
	Package types.PackageType `json:"package" validate:"required,oneof=basic standard premium"`
	CVID    string            `json:"cv_id,omitempty" validate:"omitempty,uuid4"`
}

// VerifyPaymentRequest is the body for POST /v1/orders/verify. The
// reference is the gateway session ID from the success redirect.
type VerifyPaymentRequest struct {
	Reference string `json:"reference" validate:"required,max=200"`
}

// OrderHandler serves checkout, payment verification, and order reads.
type OrderHandler struct {
	svc       OrderService
	validator *core.Validator
	logger    *slog.Logger
}

func NewOrderHandler(svc OrderService, v *core.Validator, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{svc: svc, validator: v, logger: logger}
}

func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/checkout", h.Checkout)
		r.Post("/verify", h.Verify)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
	})
}

func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.svc.Checkout(r.Context(), actor.ID, req.Package, req.CVID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: result})
}

// Verify handles the return leg of the redirect flow. The reference
// identifies the order; ownership is not required because the webhook
// settles the same transition and the response exposes only the
// caller-visible order state after a successful match.
func (h *OrderHandler) Verify(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req VerifyPaymentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	order, err := h.svc.VerifyPayment(r.Context(), req.Reference)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	// The reference is an unguessable gateway session ID, but orders
	// still belong to their buyer.
	if order.UserID != actor.ID && !actor.IsAdmin() {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil))
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: order})
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidField,
				"limit must be an integer between 1 and 200", nil))
			return
		}
		limit = parsed
	}

	list, err := h.svc.ListOrders(r.Context(), actor.ID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: list})
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	order, err := h.svc.GetOrder(r.Context(), actor.ID, chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: order})
}
