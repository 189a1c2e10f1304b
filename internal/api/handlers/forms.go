package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/formloom/formloom/internal/api/dto"
	"github.com/formloom/formloom/internal/api/middleware"
	"github.com/formloom/formloom/internal/database/models"
	"github.com/formloom/formloom/internal/forms"
)

type FormHandler struct {
	forms *forms.Service
}

func NewFormHandler(formService *forms.Service) *FormHandler {
	return &FormHandler{forms: formService}
}

// List handles GET /api/v1/forms
func (h *FormHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	results, total, err := h.forms.List(r.Context(), workspaceID, forms.ListParams{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
		Limit:  pagination.PerPage,
		Offset: pagination.Offset(),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list forms"})
		return
	}

	response := make([]dto.FormResponse, len(results))
	for i := range results {
		response[i] = dto.NewFormResponse(&results[i])
	}

	totalPages := int(total) / pagination.PerPage
	if int(total)%pagination.PerPage > 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       response,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: totalPages,
	})
}

// Create handles POST /api/v1/forms
func (h *FormHandler) Create(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	var req dto.CreateFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	if len(req.Fields) > 0 {
		if errors := forms.ValidateSchema(models.JSON(req.Fields)); len(errors) > 0 {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid field schema", Details: errors})
			return
		}
	}

	form, err := h.forms.Create(r.Context(), workspaceID, forms.CreateInput{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
		Fields:      models.JSON(req.Fields),
		NotifyEmail: req.NotifyEmail,
	})
	if err != nil {
		switch err {
		case forms.ErrSlugTaken:
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Slug is already in use"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create form"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, dto.NewFormResponse(form))
}

// Get handles GET /api/v1/forms/{formID}
func (h *FormHandler) Get(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return
	}

	form, err := h.forms.Get(r.Context(), workspaceID, formID)
	if err != nil {
		switch err {
		case forms.ErrFormNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get form"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.NewFormResponse(form))
}

// Update handles PUT /api/v1/forms/{formID}
func (h *FormHandler) Update(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return
	}

	var req dto.UpdateFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	if len(req.Fields) > 0 {
		if errors := forms.ValidateSchema(models.JSON(req.Fields)); len(errors) > 0 {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid field schema", Details: errors})
			return
		}
	}

	form, err := h.forms.Update(r.Context(), workspaceID, formID, forms.UpdateInput{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
		Fields:      models.JSON(req.Fields),
		NotifyEmail: req.NotifyEmail,
	})
	if err != nil {
		switch err {
		case forms.ErrFormNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
		case forms.ErrSlugTaken:
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Slug is already in use"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update form"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.NewFormResponse(form))
}

// Publish handles POST /api/v1/forms/{formID}/publish
func (h *FormHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.forms.Publish)
}

// Archive handles POST /api/v1/forms/{formID}/archive
func (h *FormHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.forms.Archive)
}

func (h *FormHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, workspaceID, formID uuid.UUID) (*models.Form, error)) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return
	}

	form, err := op(r.Context(), workspaceID, formID)
	if err != nil {
		switch err {
		case forms.ErrFormNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update form status"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.NewFormResponse(form))
}

// Delete handles DELETE /api/v1/forms/{formID}
func (h *FormHandler) Delete(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return
	}

	if err := h.forms.Delete(r.Context(), workspaceID, formID); err != nil {
		switch err {
		case forms.ErrFormNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete form"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Form deleted"})
}
