// Package orders implements the one-time purchase lifecycle: checkout,
// payment verification, webhook settlement, and edit consumption.
//
// Order state moves pending -> processing -> completed, or
// pending -> failed; completed and failed are terminal. Entitlement
// fields on the order are stamped exactly once, from the package
// definition, at the completion transition.
//
// A not-yet-successful verification poll leaves the order pending
// rather than failing it: failed is terminal, and the gateway may still
// settle the charge via webhook retry. Only an affirmative failure
// (charge-init error, failed webhook event) marks an order failed.
package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"cvforge/internal/external"
	"cvforge/internal/types"

	"github.com/google/uuid"
)

// orderStore is the persistence surface the lifecycle needs.
type orderStore interface {
	Create(ctx context.Context, order *types.Order) error
	GetByID(ctx context.Context, id string) (*types.Order, error)
	GetByReference(ctx context.Context, reference string) (*types.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]types.Order, error)
	SetProviderDetails(ctx context.Context, orderID, reference, accessCode string) error
	Complete(ctx context.Context, orderID string, pkg types.PackageDefinition) (bool, error)
	MarkFailed(ctx context.Context, orderID string) (bool, error)
	DecrementEdits(ctx context.Context, orderID string) (int, error)
}

// packageCatalog resolves package definitions at checkout and completion.
type packageCatalog interface {
	GetPackage(pkg types.PackageType) (*types.PackageDefinition, error)
}

// userGetter resolves the buyer for checkout email and receipts.
type userGetter interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// receiptSender delivers the order receipt. Failures are logged and
// never block the money path.
type receiptSender interface {
	SendOrderReceipt(ctx context.Context, email string, order *types.Order) error
}

// auditRecorder persists audit events. Best effort.
type auditRecorder interface {
	Record(ctx context.Context, event *types.AuditEvent) error
}

// CheckoutConfig carries the redirect URLs handed to the payment
// gateway. {ORDER_ID} is replaced with the new order's ID.
type CheckoutConfig struct {
	SuccessURL string
	CancelURL  string
}

// CheckoutResult is the outcome of starting a purchase: the pending
// order and the gateway URL the customer is redirected to.
type CheckoutResult struct {
	Order            *types.Order `json:"order"`
	AuthorizationURL string       `json:"authorization_url"`
}

// Service coordinates the order lifecycle against the store, the
// payment gateway, and the supporting side channels.
type Service struct {
	orders  orderStore
	catalog packageCatalog
	users   userGetter
	gateway external.PaymentGateway
	mailer  receiptSender
	audit   auditRecorder
	cfg     CheckoutConfig
	logger  *slog.Logger
}

// NewService creates an order Service. mailer and audit may be nil, in
// which case receipts and audit records are skipped.
func NewService(
	orders orderStore,
	catalog packageCatalog,
	users userGetter,
	gateway external.PaymentGateway,
	mailer receiptSender,
	audit auditRecorder,
	cfg CheckoutConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		orders:  orders,
		catalog: catalog,
		users:   users,
		gateway: gateway,
		mailer:  mailer,
		audit:   audit,
		cfg:     cfg,
		logger:  logger,
	}
}

// Checkout creates a pending order for the package and initializes the
// charge with the gateway. Entitlement fields stay zeroed until payment
// verification completes the order.
func (s *Service) Checkout(ctx context.Context, userID string, pkgType types.PackageType, cvID string) (*CheckoutResult, error) {
	pkg, err := s.catalog.GetPackage(pkgType)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	order := &types.Order{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		CVID:        cvID,
		Package:     pkg.ID,
		AmountCents: pkg.PriceCents,
		Currency:    pkg.Currency,
		Status:      types.OrderPending,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	init, err := s.gateway.InitializeCharge(ctx, external.ChargeRequest{
		OrderID:     order.ID,
		Email:       user.Email,
		AmountCents: pkg.PriceCents,
		Currency:    pkg.Currency,
		Description: pkg.Name,
		SuccessURL:  expandOrderURL(s.cfg.SuccessURL, order.ID),
		CancelURL:   expandOrderURL(s.cfg.CancelURL, order.ID),
	})
	if err != nil {
		// No charge exists; the order can never settle.
		if _, failErr := s.orders.MarkFailed(ctx, order.ID); failErr != nil {
			s.logger.ErrorContext(ctx, "failed to mark order failed after charge init error",
				"order_id", order.ID, "error", failErr)
		}
		return nil, err
	}

	if err := s.orders.SetProviderDetails(ctx, order.ID, init.Reference, init.AccessCode); err != nil {
		return nil, err
	}
	order.ProviderReference = init.Reference
	order.AccessCode = init.AccessCode

	s.recordAudit(ctx, types.Actor{ID: userID, Type: types.ActorTypeUser},
		types.AuditActionOrderCheckout, order.ID, nil,
		map[string]any{"package": pkg.ID, "amount_cents": pkg.PriceCents})

	s.logger.InfoContext(ctx, "checkout created",
		"order_id", order.ID, "user_id", userID,
		"package", pkg.ID, "reference", init.Reference)

	return &CheckoutResult{Order: order, AuthorizationURL: init.AuthorizationURL}, nil
}

// VerifyPayment checks the charge with the gateway and, on success,
// completes the order. Re-verification of an already completed order is
// a no-op returning the order as-is. An unpaid charge is reported as
// PaymentVerificationFailed without failing the order; the customer may
// still finish paying, and the webhook settles the final outcome.
func (s *Service) VerifyPayment(ctx context.Context, reference string) (*types.Order, error) {
	order, err := s.orders.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	if order.Status == types.OrderCompleted {
		return order, nil
	}
	if order.Status == types.OrderFailed {
		return nil, types.NewAppError(types.ErrCodeConflictOrderState,
			"order has already failed", nil).
			WithDetails(map[string]any{"status": string(order.Status)})
	}

	verification, err := s.gateway.VerifyCharge(ctx, reference)
	if err != nil {
		return nil, err
	}

	if !verification.Succeeded {
		return nil, types.NewAppError(types.ErrCodePaymentVerificationFailed,
			"payment has not been confirmed by the gateway", nil).
			WithDetails(map[string]any{"reference": reference})
	}

	return s.completeOrder(ctx, order)
}

// HandleWebhookEvent settles the order referenced by a verified gateway
// webhook delivery. Unknown event types are acknowledged and ignored.
// Re-delivery is idempotent: the completion and failure transitions are
// conditional updates that no-op on replay.
func (s *Service) HandleWebhookEvent(ctx context.Context, event *external.WebhookEvent) error {
	switch event.Type {
	case external.EventCheckoutCompleted:
		if !event.Succeeded {
			// Completed session without payment settles nothing yet;
			// an async_payment_failed or expired event follows.
			return nil
		}
		order, err := s.orders.GetByReference(ctx, event.Reference)
		if err != nil {
			return err
		}
		if order.Status == types.OrderCompleted {
			return nil
		}
		_, err = s.completeOrder(ctx, order)
		return err

	case external.EventCheckoutPaymentFailed, external.EventCheckoutExpired:
		order, err := s.orders.GetByReference(ctx, event.Reference)
		if err != nil {
			return err
		}
		failed, err := s.orders.MarkFailed(ctx, order.ID)
		if err != nil {
			return err
		}
		if failed {
			s.recordAudit(ctx, types.Actor{Type: types.ActorTypeSystem},
				types.AuditActionOrderFailed, order.ID,
				map[string]any{"status": string(order.Status)},
				map[string]any{"status": string(types.OrderFailed), "event": event.Type})
			s.logger.InfoContext(ctx, "order failed from webhook",
				"order_id", order.ID, "event_type", event.Type)
		}
		return nil

	default:
		s.logger.DebugContext(ctx, "ignoring webhook event", "event_type", event.Type)
		return nil
	}
}

// completeOrder stamps the entitlement bundle from the package
// definition and fires the post-completion side channels. Safe to call
// concurrently for the same order; only the transition winner records
// audit and sends the receipt.
func (s *Service) completeOrder(ctx context.Context, order *types.Order) (*types.Order, error) {
	pkg, err := s.catalog.GetPackage(order.Package)
	if err != nil {
		return nil, err
	}

	completed, err := s.orders.Complete(ctx, order.ID, *pkg)
	if err != nil {
		return nil, err
	}

	fresh, err := s.orders.GetByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	if completed {
		s.recordAudit(ctx, types.Actor{Type: types.ActorTypeSystem},
			types.AuditActionOrderCompleted, order.ID,
			map[string]any{"status": string(order.Status)},
			map[string]any{"status": string(types.OrderCompleted), "edits_remaining": fresh.EditsRemaining})

		s.sendReceipt(ctx, fresh)

		s.logger.InfoContext(ctx, "order completed",
			"order_id", order.ID, "package", order.Package,
			"edits_remaining", fresh.EditsRemaining)
	}

	return fresh, nil
}

// ConsumeEdit spends one edit from a completed order owned by the user.
// Returns the remaining allowance. Exhausted orders are rejected before
// any downstream work happens.
func (s *Service) ConsumeEdit(ctx context.Context, userID, orderID string) (int, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return 0, err
	}
	if order.UserID != userID {
		// Foreign orders are indistinguishable from missing ones.
		return 0, types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
	}

	remaining, err := s.orders.DecrementEdits(ctx, orderID)
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "order edit consumed",
		"order_id", orderID, "user_id", userID, "edits_remaining", remaining)
	return remaining, nil
}

// GetOrder returns the order if it belongs to the user.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*types.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
	}
	return order, nil
}

// ListOrders returns the user's most recent orders.
func (s *Service) ListOrders(ctx context.Context, userID string, limit int) ([]types.Order, error) {
	return s.orders.ListByUser(ctx, userID, limit)
}

// sendReceipt emails the receipt for a completed order. Best effort.
func (s *Service) sendReceipt(ctx context.Context, order *types.Order) {
	if s.mailer == nil {
		return
	}
	user, err := s.users.GetByID(ctx, order.UserID)
	if err != nil {
		s.logger.WarnContext(ctx, "receipt skipped, user lookup failed",
			"order_id", order.ID, "error", err)
		return
	}
	if err := s.mailer.SendOrderReceipt(ctx, user.Email, order); err != nil {
		s.logger.WarnContext(ctx, "receipt delivery failed",
			"order_id", order.ID, "error", err)
	}
}

// recordAudit persists an audit event, logging failures without
// propagating them.
func (s *Service) recordAudit(ctx context.Context, actor types.Actor, action, orderID string, oldVal, newVal map[string]any) {
	if s.audit == nil {
		return
	}

	event := &types.AuditEvent{
		ID:           uuid.NewString(),
		Actor:        actor,
		Action:       action,
		ResourceID:   orderID,
		ResourceType: "order",
	}
	if oldVal != nil {
		event.OldValue, _ = json.Marshal(oldVal)
	}
	if newVal != nil {
		event.NewValue, _ = json.Marshal(newVal)
	}

	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit record failed",
			"action", action, "order_id", orderID, "error", err)
	}
}

// expandOrderURL substitutes the order ID placeholder, or appends the
// ID as a query parameter when the template carries no placeholder.
func expandOrderURL(template, orderID string) string {
	if strings.Contains(template, "{ORDER_ID}") {
		return strings.ReplaceAll(template, "{ORDER_ID}", orderID)
	}
	sep := "?"
	if strings.Contains(template, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sorder_id=%s", template, sep, orderID)
}
