package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cvforge/internal/types"
)

// paymentAPIBase is the default Stripe API base URL.
// Overridable in tests via PaymentClientConfig.BaseURL.
const paymentAPIBase = "https://api.stripe.com"

// PaymentClientConfig holds the configuration for creating a PaymentClient.
type PaymentClientConfig struct {
	SecretKey string
	BaseURL   string // Override for testing; defaults to paymentAPIBase
	Logger    *slog.Logger
}

// PaymentClient implements PaymentGateway by making direct HTTP calls to
// the Stripe REST API through BaseClient. Checkout Sessions back the
// charge flow: the session URL is the authorization URL the customer is
// redirected to, and the session ID doubles as access code and charge
// reference.
type PaymentClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

var _ PaymentGateway = (*PaymentClient)(nil)

// NewPaymentClient creates a new PaymentClient.
func NewPaymentClient(httpClient *http.Client, cfg PaymentClientConfig) *PaymentClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = paymentAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"payment",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"CVForge/1.0",
		WithUnavailableCode(types.ErrCodeUpstreamPayment),
	)

	return &PaymentClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// NewPaymentClientWithBase creates a PaymentClient with a pre-configured
// BaseClient. Useful for testing when the BaseClient configuration needs
// to be controlled.
func NewPaymentClientWithBase(base *BaseClient, cfg PaymentClientConfig) *PaymentClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = paymentAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PaymentClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// checkoutSession is the subset of the Stripe Checkout Session object the
// client reads.
type checkoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// InitializeCharge creates a Checkout Session for the order and returns
// the reduced ChargeInit the domain layer stores on the order.
func (p *PaymentClient) InitializeCharge(ctx context.Context, req ChargeRequest) (*types.ChargeInit, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.OrderID)
	form.Set("customer_email", req.Email)
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("metadata[order_id]", req.OrderID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", req.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)

	resp, err := p.doPost(ctx, "/v1/checkout/sessions", form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.handleErrorResponse(resp, "InitializeCharge")
	}

	var session checkoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode checkout session response",
			err,
		)
	}

	p.logger.InfoContext(ctx, "charge initialized",
		"order_id", req.OrderID, "reference", session.ID)

	return &types.ChargeInit{
		AuthorizationURL: session.URL,
		AccessCode:       session.ID,
		Reference:        session.ID,
	}, nil
}

// VerifyCharge retrieves the session and reduces its payment status to a
// ChargeVerification. Only payment_status "paid" counts as success;
// every other status (unpaid, no_payment_required edge states) reports
// Succeeded=false and lets the order lifecycle decide.
func (p *PaymentClient) VerifyCharge(ctx context.Context, reference string) (*types.ChargeVerification, error) {
	resp, err := p.doGet(ctx, "/v1/checkout/sessions/"+url.PathEscape(reference))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.handleErrorResponse(resp, "VerifyCharge")
	}

	var session checkoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode checkout session response",
			err,
		)
	}

	return &types.ChargeVerification{
		Succeeded:   session.PaymentStatus == "paid",
		Reference:   session.ID,
		AmountCents: session.AmountTotal,
		Currency:    session.Currency,
		Metadata:    session.Metadata,
	}, nil
}

// doPost issues an authenticated form-encoded POST through the BaseClient.
func (p *PaymentClient) doPost(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build payment request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.base.Do(req)
}

// doGet issues an authenticated GET through the BaseClient.
func (p *PaymentClient) doGet(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build payment request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	return p.base.Do(req)
}

// handleErrorResponse maps a non-200 gateway response to an AppError,
// reading the error body for the log without leaking it to clients.
func (p *PaymentClient) handleErrorResponse(resp *http.Response, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	p.logger.Warn("payment gateway error",
		"op", op, "status", resp.StatusCode, "body", string(body))

	if resp.StatusCode == http.StatusNotFound {
		return types.NewAppError(types.ErrCodeNotFoundOrder,
			"charge reference not found at gateway", nil)
	}
	return types.NewAppError(
		types.ErrCodeUpstreamPayment,
		fmt.Sprintf("payment gateway returned %d during %s", resp.StatusCode, op),
		nil,
	)
}
