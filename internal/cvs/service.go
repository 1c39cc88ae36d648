// Package cvs implements the gated CV actions. Every metered operation
// follows check-then-act-then-record: the entitlement gate runs first,
// the delegated action second, and the usage ledger is touched only
// after the action succeeded. Failed actions are never counted.
package cvs

import (
	"context"
	"encoding/json"
	"log/slog"

	"cvforge/internal/billing"
	"cvforge/internal/external"
	"cvforge/internal/types"

	"github.com/google/uuid"
)

// DefaultTemplateID is assigned when a CV is created without an explicit
// template choice.
const DefaultTemplateID = "classic"

// premiumTemplates lists the template IDs gated behind the premium
// template capability. Everything else is open to all tiers.
var premiumTemplates = map[string]bool{
	"executive": true,
	"designer":  true,
	"headline":  true,
}

// IsPremiumTemplate reports whether the template requires the premium
// template capability.
func IsPremiumTemplate(templateID string) bool {
	return premiumTemplates[templateID]
}

// cvStore is the persistence surface for CV documents.
type cvStore interface {
	Create(ctx context.Context, cv *types.CV) error
	GetByID(ctx context.Context, id string, userID string) (*types.CV, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]types.CV, error)
	Update(ctx context.Context, cv *types.CV) error
	Delete(ctx context.Context, id string, userID string) error
}

// gatekeeper answers entitlement questions before any work happens.
type gatekeeper interface {
	CheckLimit(ctx context.Context, userID string, feature types.Feature) (*types.LimitStatus, error)
	CheckAccess(ctx context.Context, userID string, cap types.Capability) error
}

// usageMeter records consumption after a gated action succeeds.
type usageMeter interface {
	RecordWithinCap(ctx context.Context, userID string, feature types.Feature) (bool, error)
}

// editConsumer spends an edit from a completed order.
type editConsumer interface {
	ConsumeEdit(ctx context.Context, userID, orderID string) (int, error)
}

// fileStore persists rendered documents and returns their IDs.
type fileStore interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// auditRecorder persists audit events. Best effort.
type auditRecorder interface {
	Record(ctx context.Context, event *types.AuditEvent) error
}

// Service wires the gates, the AI and render upstreams, and the CV store
// into the user-facing CV operations.
type Service struct {
	cvs      cvStore
	gate     gatekeeper
	meter    usageMeter
	ai       external.AIService
	renderer external.Renderer
	files    fileStore
	orders   editConsumer
	audit    auditRecorder
	logger   *slog.Logger
}

// NewService creates a CV Service. files, orders, and audit may be nil
// when the corresponding surface is not wired (the operational CLI does
// this); the dependent operations then fail with an internal error.
func NewService(
	cvs cvStore,
	gate gatekeeper,
	meter usageMeter,
	ai external.AIService,
	renderer external.Renderer,
	files fileStore,
	orders editConsumer,
	audit auditRecorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		cvs:      cvs,
		gate:     gate,
		meter:    meter,
		ai:       ai,
		renderer: renderer,
		files:    files,
		orders:   orders,
		audit:    audit,
		logger:   logger,
	}
}

// CreateCV creates a CV for the user, gated on the monthly CV generation
// limit. The capability gate runs before the count gate so users on the
// wrong tier see "plan required", not "limit reached".
func (s *Service) CreateCV(ctx context.Context, userID, title, templateID string, data json.RawMessage) (*types.CV, error) {
	if templateID == "" {
		templateID = DefaultTemplateID
	}
	if IsPremiumTemplate(templateID) {
		if err := s.gate.CheckAccess(ctx, userID, types.CapabilityPremiumTemplates); err != nil {
			return nil, err
		}
	}

	if err := s.checkCount(ctx, userID, types.FeatureCVGenerations); err != nil {
		return nil, err
	}

	cv := &types.CV{
		ID:         uuid.NewString(),
		UserID:     userID,
		Title:      title,
		TemplateID: templateID,
		Data:       data,
	}
	if err := s.cvs.Create(ctx, cv); err != nil {
		return nil, err
	}

	s.record(ctx, userID, types.FeatureCVGenerations)
	s.recordAudit(ctx, userID, types.AuditActionCVCreated, cv.ID, nil,
		map[string]any{"template_id": templateID})

	s.logger.InfoContext(ctx, "cv created",
		"cv_id", cv.ID, "user_id", userID, "template_id", templateID)
	return cv, nil
}

// GetCV returns the CV if it belongs to the user.
func (s *Service) GetCV(ctx context.Context, userID, cvID string) (*types.CV, error) {
	return s.cvs.GetByID(ctx, cvID, userID)
}

// ListCVs returns the user's CVs, newest first.
func (s *Service) ListCVs(ctx context.Context, userID string, limit int) ([]types.CV, error) {
	return s.cvs.ListByUser(ctx, userID, limit)
}

// UpdateCV replaces the CV's title, template, and content. Not metered;
// editing an existing document is free on every tier.
func (s *Service) UpdateCV(ctx context.Context, userID, cvID, title, templateID string, data json.RawMessage) (*types.CV, error) {
	cv, err := s.cvs.GetByID(ctx, cvID, userID)
	if err != nil {
		return nil, err
	}

	if templateID != "" && templateID != cv.TemplateID && IsPremiumTemplate(templateID) {
		if err := s.gate.CheckAccess(ctx, userID, types.CapabilityPremiumTemplates); err != nil {
			return nil, err
		}
	}

	if title != "" {
		cv.Title = title
	}
	if templateID != "" {
		cv.TemplateID = templateID
	}
	if data != nil {
		cv.Data = data
	}
	if err := s.cvs.Update(ctx, cv); err != nil {
		return nil, err
	}
	return cv, nil
}

// DeleteCV removes the user's CV.
func (s *Service) DeleteCV(ctx context.Context, userID, cvID string) error {
	return s.cvs.Delete(ctx, cvID, userID)
}

// EnhanceCV runs the AI rewrite over the CV content and persists the
// result. Gated on the monthly AI-run limit; the counter moves only
// after the upstream call and the save both succeed.
func (s *Service) EnhanceCV(ctx context.Context, userID, cvID string) (*types.CV, error) {
	if err := s.checkCount(ctx, userID, types.FeatureAIRuns); err != nil {
		return nil, err
	}

	cv, err := s.cvs.GetByID(ctx, cvID, userID)
	if err != nil {
		return nil, err
	}

	enhanced, err := s.ai.EnhanceCV(ctx, cv.Data)
	if err != nil {
		return nil, err
	}

	cv.Data = enhanced
	if err := s.cvs.Update(ctx, cv); err != nil {
		return nil, err
	}

	s.record(ctx, userID, types.FeatureAIRuns)
	s.logger.InfoContext(ctx, "cv enhanced", "cv_id", cvID, "user_id", userID)
	return cv, nil
}

// AnalyzeATS produces an ATS compatibility report for the CV. Gated on
// the monthly AI-run limit.
func (s *Service) AnalyzeATS(ctx context.Context, userID, cvID string) (*types.AtsReport, error) {
	if err := s.checkCount(ctx, userID, types.FeatureAIRuns); err != nil {
		return nil, err
	}

	cv, err := s.cvs.GetByID(ctx, cvID, userID)
	if err != nil {
		return nil, err
	}

	report, err := s.ai.AnalyzeATS(ctx, cv.Data)
	if err != nil {
		return nil, err
	}

	s.record(ctx, userID, types.FeatureAIRuns)
	return report, nil
}

// OptimizeLinkedIn produces LinkedIn profile copy from the CV. The
// capability gate runs before the count gate so users on the wrong tier
// see "plan required", not "limit reached".
func (s *Service) OptimizeLinkedIn(ctx context.Context, userID, cvID string) (string, error) {
	if err := s.gate.CheckAccess(ctx, userID, types.CapabilityLinkedInOptimize); err != nil {
		return "", err
	}
	if err := s.checkCount(ctx, userID, types.FeatureAIRuns); err != nil {
		return "", err
	}

	cv, err := s.cvs.GetByID(ctx, cvID, userID)
	if err != nil {
		return "", err
	}

	text, err := s.ai.OptimizeLinkedIn(ctx, cv.Data)
	if err != nil {
		return "", err
	}

	s.record(ctx, userID, types.FeatureAIRuns)
	return text, nil
}

// GenerateCoverLetter produces a cover letter targeting the request's
// role. Gated on the monthly cover-letter limit; the basic tier's limit
// of zero denies the feature outright.
func (s *Service) GenerateCoverLetter(ctx context.Context, userID string, req types.CoverLetterRequest) (string, error) {
	if err := s.checkCount(ctx, userID, types.FeatureCoverLetters); err != nil {
		return "", err
	}

	cv, err := s.cvs.GetByID(ctx, req.CVID, userID)
	if err != nil {
		return "", err
	}

	letter, err := s.ai.GenerateCoverLetter(ctx, req, cv.Data)
	if err != nil {
		return "", err
	}

	s.record(ctx, userID, types.FeatureCoverLetters)
	return letter, nil
}

// RenderResult is the outcome of a PDF render: the document bytes and
// the stored file ID for later retrieval.
type RenderResult struct {
	FileID string `json:"file_id"`
	PDF    []byte `json:"-"`
}

// RenderPDF renders the CV with the given template (the CV's own
// template when empty) and stores the document. Premium templates are
// capability-gated; rendering itself is not metered.
func (s *Service) RenderPDF(ctx context.Context, userID, cvID, templateID string) (*RenderResult, error) {
	cv, err := s.cvs.GetByID(ctx, cvID, userID)
	if err != nil {
		return nil, err
	}

	if templateID == "" {
		templateID = cv.TemplateID
	}
	if IsPremiumTemplate(templateID) {
		if err := s.gate.CheckAccess(ctx, userID, types.CapabilityPremiumTemplates); err != nil {
			return nil, err
		}
	}

	pdf, err := s.renderer.RenderPDF(ctx, templateID, cv.Data)
	if err != nil {
		return nil, err
	}

	fileID, err := s.files.Put(ctx, pdf)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cv rendered",
		"cv_id", cvID, "user_id", userID, "template_id", templateID, "file_id", fileID)
	return &RenderResult{FileID: fileID, PDF: pdf}, nil
}

// ApplyOrderEdit spends one edit from the order, then applies the CV
// mutation. The edit is consumed first so an exhausted order rejects the
// request before any content changes.
func (s *Service) ApplyOrderEdit(ctx context.Context, userID, orderID, cvID string, data json.RawMessage) (*types.CV, int, error) {
	cv, err := s.cvs.GetByID(ctx, cvID, userID)
	if err != nil {
		return nil, 0, err
	}

	remaining, err := s.orders.ConsumeEdit(ctx, userID, orderID)
	if err != nil {
		return nil, 0, err
	}

	cv.Data = data
	if err := s.cvs.Update(ctx, cv); err != nil {
		return nil, remaining, err
	}

	s.recordAudit(ctx, userID, types.AuditActionCVEdited, cv.ID, nil,
		map[string]any{"order_id": orderID, "edits_remaining": remaining})
	return cv, remaining, nil
}

// checkCount runs a count gate and converts a reached limit into the
// structured denial.
func (s *Service) checkCount(ctx context.Context, userID string, feature types.Feature) error {
	status, err := s.gate.CheckLimit(ctx, userID, feature)
	if err != nil {
		return err
	}
	if status.Reached {
		return billing.DenyLimit(status)
	}
	return nil
}

// record moves the usage counter after a successful gated action. The
// capped upsert refuses to move past the cap when concurrent requests
// raced through the same gate; the action already happened, so the
// refusal is logged and swallowed.
func (s *Service) record(ctx context.Context, userID string, feature types.Feature) {
	if _, err := s.meter.RecordWithinCap(ctx, userID, feature); err != nil {
		s.logger.WarnContext(ctx, "usage record failed",
			"user_id", userID, "feature", feature, "error", err)
	}
}

// recordAudit persists an audit event, logging failures without
// propagating them.
func (s *Service) recordAudit(ctx context.Context, userID, action, cvID string, oldVal, newVal map[string]any) {
	if s.audit == nil {
		return
	}

	event := &types.AuditEvent{
		ID:           uuid.NewString(),
		Actor:        types.Actor{ID: userID, Type: types.ActorTypeUser},
		Action:       action,
		ResourceID:   cvID,
		ResourceType: "cv",
	}
	if oldVal != nil {
		event.OldValue, _ = json.Marshal(oldVal)
	}
	if newVal != nil {
		event.NewValue, _ = json.Marshal(newVal)
	}

	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit record failed",
			"action", action, "cv_id", cvID, "error", err)
	}
}
