package external

import (
	"context"
	"encoding/json"

	"cvforge/internal/types"
)

// ChargeRequest carries everything the gateway needs to start a payment.
type ChargeRequest struct {
	OrderID     string
	Email       string
	AmountCents int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
}

// PaymentGateway is the reduced payment-provider surface the order
// lifecycle depends on. The domain only ever sees ChargeInit and
// ChargeVerification; provider payload shapes stay inside this package.
type PaymentGateway interface {
	InitializeCharge(ctx context.Context, req ChargeRequest) (*types.ChargeInit, error)
	VerifyCharge(ctx context.Context, reference string) (*types.ChargeVerification, error)
}

// WebhookVerifier authenticates an inbound gateway webhook delivery and
// extracts the charge reference and outcome it reports.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (*WebhookEvent, error)
}

// WebhookEvent is the reduced webhook payload after signature
// verification.
type WebhookEvent struct {
	Type      string
	Reference string
	Succeeded bool
}

// AIService is the text-generation surface behind CV enhancement, cover
// letters, ATS analysis, and LinkedIn optimization.
type AIService interface {
	EnhanceCV(ctx context.Context, cvData json.RawMessage) (json.RawMessage, error)
	GenerateCoverLetter(ctx context.Context, req types.CoverLetterRequest, cvData json.RawMessage) (string, error)
	AnalyzeATS(ctx context.Context, cvData json.RawMessage) (*types.AtsReport, error)
	OptimizeLinkedIn(ctx context.Context, cvData json.RawMessage) (string, error)
}

// Renderer turns CV content plus a template into a PDF document.
type Renderer interface {
	RenderPDF(ctx context.Context, templateID string, cvData json.RawMessage) ([]byte, error)
}
