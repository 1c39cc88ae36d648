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

// AIClientConfig holds the configuration for creating an AIClient.
type AIClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing
	Model   string
	Logger  *slog.Logger
}

// AIClient implements AIService against an OpenAI-compatible chat
// completions endpoint through BaseClient. Prompt content stays minimal;
// the product treats the model as a text transformer, not a knowledge
// source.
type AIClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	model   string
	logger  *slog.Logger
}

var _ AIService = (*AIClient)(nil)

// NewAIClient creates a new AIClient.
func NewAIClient(httpClient *http.Client, cfg AIClientConfig) *AIClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"ai",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    time.Second,
			MaxWait:    15 * time.Second,
		},
		"CVForge/1.0",
		WithUnavailableCode(types.ErrCodeUpstreamAI),
	)

	return &AIClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		logger:  logger,
	}
}

// chatRequest is the request body for the chat completions endpoint.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the subset of the completion response the client reads.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// EnhanceCV rewrites the CV content for clarity and impact, returning
// the revised document in the same JSON shape it was given.
func (a *AIClient) EnhanceCV(ctx context.Context, cvData json.RawMessage) (json.RawMessage, error) {
	content, err := a.complete(ctx,
		"You improve CV content. Return the revised CV as JSON in the exact structure you received, with stronger wording. Return only JSON.",
		string(cvData))
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(content)) {
		return nil, types.NewAppError(types.ErrCodeUpstreamAI,
			"ai service returned malformed cv content", nil)
	}
	return json.RawMessage(content), nil
}

// GenerateCoverLetter produces a cover letter targeting the given role.
func (a *AIClient) GenerateCoverLetter(ctx context.Context, req types.CoverLetterRequest, cvData json.RawMessage) (string, error) {
	prompt := fmt.Sprintf("Write a cover letter for the role %q at %q based on this CV: %s",
		req.JobTitle, req.Company, string(cvData))
	if req.Description != "" {
		prompt += "\nJob description: " + req.Description
	}
	return a.complete(ctx, "You write concise, specific cover letters.", prompt)
}

// AnalyzeATS scores the CV for applicant-tracking-system compatibility.
func (a *AIClient) AnalyzeATS(ctx context.Context, cvData json.RawMessage) (*types.AtsReport, error) {
	content, err := a.complete(ctx,
		`You analyze CVs for ATS compatibility. Respond with JSON only: {"score":0-100,"strengths":[],"weaknesses":[],"recommendations":[]}`,
		string(cvData))
	if err != nil {
		return nil, err
	}

	var report types.AtsReport
	if err := json.Unmarshal([]byte(content), &report); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAI,
			"ai service returned malformed ats report", err)
	}
	return &report, nil
}

// OptimizeLinkedIn produces LinkedIn profile copy from the CV content.
func (a *AIClient) OptimizeLinkedIn(ctx context.Context, cvData json.RawMessage) (string, error) {
	return a.complete(ctx,
		"You write LinkedIn headlines and about sections. Produce an optimized profile text based on the CV.",
		string(cvData))
}

// complete runs one chat completion and returns the first choice's text.
func (a *AIClient) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode ai request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build ai request", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		a.logger.Warn("ai service error", "status", resp.StatusCode, "body", string(errBody))
		return "", types.NewAppError(types.ErrCodeUpstreamAI,
			fmt.Sprintf("ai service returned %d", resp.StatusCode), nil)
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamAI,
			"failed to decode ai response", err)
	}
	if len(completion.Choices) == 0 {
		return "", types.NewAppError(types.ErrCodeUpstreamAI,
			"ai response contained no choices", nil)
	}
	return completion.Choices[0].Message.Content, nil
}
