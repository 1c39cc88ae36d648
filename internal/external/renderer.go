package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cvforge/internal/types"
)

// RendererClientConfig holds the configuration for creating a RendererClient.
type RendererClientConfig struct {
	BaseURL string
	APIKey  string
	Logger  *slog.Logger
}

// RendererClient implements Renderer against the internal render service,
// which accepts CV content plus a template ID and returns the finished
// PDF bytes.
type RendererClient struct {
	base    *BaseClient
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

var _ Renderer = (*RendererClient)(nil)

// NewRendererClient creates a new RendererClient.
func NewRendererClient(httpClient *http.Client, cfg RendererClientConfig) *RendererClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"renderer",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"CVForge/1.0",
		WithUnavailableCode(types.ErrCodeUpstreamRenderer),
	)

	return &RendererClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// renderRequest is the request body for the render endpoint.
type renderRequest struct {
	TemplateID string          `json:"template_id"`
	Data       json.RawMessage `json:"data"`
}

// RenderPDF renders the CV content with the given template and returns
// the PDF bytes.
func (r *RendererClient) RenderPDF(ctx context.Context, templateID string, cvData json.RawMessage) ([]byte, error) {
	body, err := json.Marshal(renderRequest{TemplateID: templateID, Data: cvData})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode render request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build render request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		r.logger.Warn("renderer error",
			"template_id", templateID, "status", resp.StatusCode, "body", string(errBody))
		if resp.StatusCode == http.StatusUnprocessableEntity {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidField,
				"renderer rejected cv content", nil)
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamRenderer,
			fmt.Sprintf("renderer returned %d", resp.StatusCode), nil)
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamRenderer,
			"failed to read rendered document", err)
	}
	if len(pdf) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamRenderer,
			"renderer returned an empty document", nil)
	}
	return pdf, nil
}
