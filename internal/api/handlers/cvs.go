package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cvforge/internal/core"
	"cvforge/internal/cvs"
	"cvforge/internal/types"
)

// CVService is the gated CV surface the handler drives. All operations
// take the owning user's ID; ownership failures surface as not-found.
type CVService interface {
	CreateCV(ctx context.Context, userID, title, templateID string, data json.RawMessage) (*types.CV, error)
	GetCV(ctx context.Context, userID, cvID string) (*types.CV, error)
	ListCVs(ctx context.Context, userID string, limit int) ([]types.CV, error)
	UpdateCV(ctx context.Context, userID, cvID, title, templateID string, data json.RawMessage) (*types.CV, error)
	DeleteCV(ctx context.Context, userID, cvID string) error
	EnhanceCV(ctx context.Context, userID, cvID string) (*types.CV, error)
	AnalyzeATS(ctx context.Context, userID, cvID string) (*types.AtsReport, error)
	OptimizeLinkedIn(ctx context.Context, userID, cvID string) (string, error)
	GenerateCoverLetter(ctx context.Context, userID string, req types.CoverLetterRequest) (string, error)
	RenderPDF(ctx context.Context, userID, cvID, templateID string) (*cvs.RenderResult, error)
	ApplyOrderEdit(ctx context.Context, userID, orderID, cvID string, data json.RawMessage) (*types.CV, int, error)
}

// DocumentStore serves previously rendered documents.
type DocumentStore interface {
	Get(ctx context.Context, id string) ([]byte, error)
}

// defaultListLimit bounds unpaginated list endpoints.
const defaultListLimit = 50

// CreateCVRequest is the body for POST /v1/cvs.
type CreateCVRequest struct {
	Title      string          `json:"title" validate:"required,max=200"`
	TemplateID string          `json:"template_id,omitempty" validate:"max=50"`
	Data       json.RawMessage `json:"data" validate:"required"`
}

// UpdateCVRequest is the body for PUT /v1/cvs/{id}. Empty fields keep
// their current values.
type UpdateCVRequest struct {
	Title      string          `json:"title,omitempty" validate:"max=200"`
	TemplateID string          `json:"template_id,omitempty" validate:"max=50"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// RenderRequest is the body for POST /v1/cvs/{id}/render.
type RenderRequest struct {
	TemplateID string `json:"template_id,omitempty" validate:"max=50"`
}

// OrderEditRequest is the body for POST /v1/cvs/{id}/order-edit.
type OrderEditRequest struct {
	OrderID string          `json:"order_id" validate:"required,uuid4"`
	Data    json.RawMessage `json:"data" validate:"required"`
}

// CVHandler serves CV CRUD and the gated premium actions.
type CVHandler struct {
	svc       CVService
	docs      DocumentStore
	validator *core.Validator
	logger    *slog.Logger
}

func NewCVHandler(svc CVService, docs DocumentStore, v *core.Validator, logger *slog.Logger) *CVHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CVHandler{svc: svc, docs: docs, validator: v, logger: logger}
}

// RegisterRoutes mounts the CV routes on the authenticated router.
func (h *CVHandler) RegisterRoutes(r chi.Router) {
	r.Route("/cvs", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/enhance", h.Enhance)
			r.Post("/ats", h.AnalyzeATS)
			r.Post("/linkedin", h.OptimizeLinkedIn)
			r.Post("/render", h.Render)
			r.Post("/order-edit", h.ApplyOrderEdit)
		})
	})

	r.Post("/cover-letters", h.GenerateCoverLetter)
	r.Get("/documents/{id}", h.DownloadDocument)
}

func (h *CVHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req CreateCVRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	cv, err := h.svc.CreateCV(r.Context(), actor.ID, req.Title, req.TemplateID, req.Data)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: cv})
}

func (h *CVHandler) List(w http.ResponseWriter, r *http.Request) {
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

	list, err := h.svc.ListCVs(r.Context(), actor.ID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: list})
}

func (h *CVHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	cv, err := h.svc.GetCV(r.Context(), actor.ID, chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cv})
}

func (h *CVHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req UpdateCVRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	cv, err := h.svc.UpdateCV(r.Context(), actor.ID, chi.URLParam(r, "id"),
		req.Title, req.TemplateID, req.Data)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cv})
}

func (h *CVHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	if err := h.svc.DeleteCV(r.Context(), actor.ID, chi.URLParam(r, "id")); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CVHandler) Enhance(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	cv, err := h.svc.EnhanceCV(r.Context(), actor.ID, chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cv})
}

func (h *CVHandler) AnalyzeATS(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	report, err := h.svc.AnalyzeATS(r.Context(), actor.ID, chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}

func (h *CVHandler) OptimizeLinkedIn(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	suggestions, err := h.svc.OptimizeLinkedIn(r.Context(), actor.ID, chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"suggestions": suggestions}})
}

func (h *CVHandler) GenerateCoverLetter(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req types.CoverLetterRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	letter, err := h.svc.GenerateCoverLetter(r.Context(), actor.ID, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: map[string]string{"cover_letter": letter}})
}

func (h *CVHandler) Render(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req RenderRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.svc.RenderPDF(r.Context(), actor.ID, chi.URLParam(r, "id"), req.TemplateID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: result})
}

// DownloadDocument streams a rendered PDF back to its owner.
func (h *CVHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	if _, ok := types.GetActor(r.Context()); !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	doc, err := h.docs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *CVHandler) ApplyOrderEdit(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req OrderEditRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	cv, remaining, err := h.svc.ApplyOrderEdit(r.Context(), actor.ID, req.OrderID,
		chi.URLParam(r, "id"), req.Data)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"cv":              cv,
		"edits_remaining": remaining,
	}})
}
