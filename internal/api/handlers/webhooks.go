package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/formloom/formloom/internal/api/dto"
	"github.com/formloom/formloom/internal/api/middleware"
	"github.com/formloom/formloom/internal/webhooks"
)

type WebhookHandler struct {
	webhooks *webhooks.Service
}

func NewWebhookHandler(webhookService *webhooks.Service) *WebhookHandler {
	return &WebhookHandler{webhooks: webhookService}
}

// Create handles POST /api/v1/forms/{formID}/webhooks. The response is
// the only time the caller ever sees the plaintext signing secret.
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return
	}

	var req dto.CreateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	hook, secret, err := h.webhooks.Create(r.Context(), workspaceID, formID, req.URL)
	if err != nil {
		switch err {
		case webhooks.ErrFormNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create webhook"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, dto.CreateWebhookResponse{
		WebhookResponse: dto.NewWebhookResponse(hook),
		Secret:          secret,
	})
}

// List handles GET /api/v1/forms/{formID}/webhooks
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return
	}

	hooks, err := h.webhooks.List(r.Context(), workspaceID, formID)
	if err != nil {
		switch err {
		case webhooks.ErrFormNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list webhooks"})
		}
		return
	}

	responses := make([]dto.WebhookResponse, len(hooks))
	for i := range hooks {
		responses[i] = dto.NewWebhookResponse(&hooks[i])
	}

	writeJSON(w, http.StatusOK, responses)
}

// Get handles GET /api/v1/forms/{formID}/webhooks/{webhookID}
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	formID, webhookID, ok := webhookParams(w, r)
	if !ok {
		return
	}

	hook, err := h.webhooks.Get(r.Context(), workspaceID, formID, webhookID)
	if err != nil {
		writeWebhookError(w, err, "Failed to get webhook")
		return
	}

	writeJSON(w, http.StatusOK, dto.NewWebhookResponse(hook))
}

// Update handles PATCH /api/v1/forms/{formID}/webhooks/{webhookID}
func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	formID, webhookID, ok := webhookParams(w, r)
	if !ok {
		return
	}

	var req dto.UpdateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	hook, err := h.webhooks.Update(r.Context(), workspaceID, formID, webhookID, webhooks.UpdateInput{
		URL:      req.URL,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeWebhookError(w, err, "Failed to update webhook")
		return
	}

	writeJSON(w, http.StatusOK, dto.NewWebhookResponse(hook))
}

// Delete handles DELETE /api/v1/forms/{formID}/webhooks/{webhookID}
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	formID, webhookID, ok := webhookParams(w, r)
	if !ok {
		return
	}

	if err := h.webhooks.Delete(r.Context(), workspaceID, formID, webhookID); err != nil {
		writeWebhookError(w, err, "Failed to delete webhook")
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Webhook deleted"})
}

func webhookParams(w http.ResponseWriter, r *http.Request) (formID, webhookID uuid.UUID, ok bool) {
	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return uuid.Nil, uuid.Nil, false
	}
	webhookID, err = uuid.Parse(chi.URLParam(r, "webhookID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid webhook ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return formID, webhookID, true
}

func writeWebhookError(w http.ResponseWriter, err error, fallback string) {
	switch err {
	case webhooks.ErrFormNotFound:
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
	case webhooks.ErrWebhookNotFound:
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Webhook not found"})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: fallback})
	}
}
