package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cvforge/internal/core"
	"cvforge/internal/external"
	"cvforge/internal/types"
)

// maxWebhookBodySize caps webhook payloads at 64 KB. Checkout session
// events are a few KB; anything larger is not ours.
const maxWebhookBodySize = 64 << 10

// WebhookVerifier authenticates a raw delivery and reduces it to the
// event the order lifecycle consumes.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (*external.WebhookEvent, error)
}

// WebhookProcessor settles verified gateway events.
type WebhookProcessor interface {
	HandleWebhookEvent(ctx context.Context, event *external.WebhookEvent) error
}

// PaymentWebhookHandler receives gateway deliveries on the public
// surface. Authentication is the signature, not a session.
type PaymentWebhookHandler struct {
	verifier  WebhookVerifier
	processor WebhookProcessor
	logger    *slog.Logger
}

func NewPaymentWebhookHandler(verifier WebhookVerifier, processor WebhookProcessor, logger *slog.Logger) *PaymentWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentWebhookHandler{verifier: verifier, processor: processor, logger: logger}
}

func (h *PaymentWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payment", h.Receive)
}

// Receive handles POST /webhooks/payment.
//
// An unverifiable delivery gets 400 so the gateway stops resending it.
// A verified delivery that fails processing gets 500 so the gateway
// retries; the completion transition is idempotent, so re-delivery of
// an already-settled event is a 200 no-op.
func (h *PaymentWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidField,
			"unreadable webhook payload", err))
		return
	}

	event, err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.WarnContext(r.Context(), "webhook delivery rejected", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidField,
			"webhook verification failed", err))
		return
	}

	if err := h.processor.HandleWebhookEvent(r.Context(), event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook processing failed",
			"event_type", event.Type, "reference", event.Reference, "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected,
			"webhook processing failed", err))
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"received": "true"}})
}
