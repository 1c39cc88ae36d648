package external

import (
	"encoding/json"

	"cvforge/internal/types"

	"github.com/stripe/stripe-go/v82/webhook"
)

// Gateway webhook event types the order lifecycle reacts to. Everything
// else is acknowledged and ignored.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventCheckoutPaymentFailed = "checkout.session.async_payment_failed"
	EventCheckoutExpired       = "checkout.session.expired"
)

// StripeWebhookVerifier implements WebhookVerifier using stripe-go's
// signature verification (HMAC-SHA256 with timestamp tolerance) and
// reduces the event payload to the fields the domain reacts to.
type StripeWebhookVerifier struct {
	secret string
}

var _ WebhookVerifier = (*StripeWebhookVerifier)(nil)

// NewStripeWebhookVerifier creates a verifier bound to the endpoint's
// signing secret.
func NewStripeWebhookVerifier(secret string) *StripeWebhookVerifier {
	return &StripeWebhookVerifier{secret: secret}
}

// webhookSession is the subset of the event's session object needed to
// correlate the delivery with an order.
type webhookSession struct {
	ID            string `json:"id"`
	PaymentStatus string `json:"payment_status"`
}

// Verify checks the signature header against the signing secret and
// extracts the charge reference. An invalid signature is an
// AuthTokenInvalid error; the handler rejects the delivery outright.
func (v *StripeWebhookVerifier) Verify(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	// The endpoint may be pinned to an older API version than the one
	// stripe-go ships with; the fields read here exist in all of them.
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid,
			"webhook signature verification failed", err)
	}

	var session webhookSession
	if len(event.Data.Raw) > 0 {
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidField,
				"invalid webhook event payload", err)
		}
	}

	return &WebhookEvent{
		Type:      string(event.Type),
		Reference: session.ID,
		Succeeded: string(event.Type) == EventCheckoutCompleted && session.PaymentStatus == "paid",
	}, nil
}
