package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/formloom/formloom/internal/api/dto"
	"github.com/formloom/formloom/internal/api/middleware"
	"github.com/formloom/formloom/internal/forms"
	"github.com/formloom/formloom/internal/storage"
)

// UploadHandler presigns S3 requests for file fields. Submitters get
// upload slots through the public surface; workspace members fetch
// download links through the authenticated one.
type UploadHandler struct {
	uploader *storage.Uploader
	forms    *forms.Service
}

func NewUploadHandler(uploader *storage.Uploader, formService *forms.Service) *UploadHandler {
	return &UploadHandler{uploader: uploader, forms: formService}
}

// PresignUpload handles POST /api/v1/public/forms/{formID}/uploads
func (h *UploadHandler) PresignUpload(w http.ResponseWriter, r *http.Request) {
	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return
	}

	var req dto.PresignUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	// Uploads are only offered for forms that are actually taking
	// submissions, same as the ingest endpoint.
	form, err := h.forms.GetPublic(r.Context(), formID)
	if err != nil {
		switch err {
		case forms.ErrFormNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to presign upload"})
		}
		return
	}
	if !form.AcceptsSubmissions() {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Form is not accepting submissions"})
		return
	}
	if !forms.HasFileField(form.Fields) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Form has no file upload field"})
		return
	}

	upload, err := h.uploader.PresignUpload(r.Context(), form.ID, req.Filename, req.ContentType, req.Size)
	if err != nil {
		switch err {
		case storage.ErrFileTooLarge:
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "File exceeds the upload size limit"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to presign upload"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, dto.PresignUploadResponse{
		Key:       upload.Key,
		URL:       upload.URL,
		Method:    upload.Method,
		ExpiresAt: upload.ExpiresAt,
	})
}

// PresignDownload handles GET /api/v1/forms/{formID}/uploads?key=...
// The key must sit under the requested form's prefix so one workspace
// cannot mint links into another's uploads.
func (h *UploadHandler) PresignDownload(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Missing key parameter"})
		return
	}
	if !strings.HasPrefix(key, "forms/"+formID.String()+"/") {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Key does not belong to this form"})
		return
	}

	if _, err := h.forms.Get(r.Context(), workspaceID, formID); err != nil {
		switch err {
		case forms.ErrFormNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to presign download"})
		}
		return
	}

	url, err := h.uploader.PresignDownload(r.Context(), key)
	if err != nil {
		switch err {
		case storage.ErrInvalidKey:
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid storage key"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to presign download"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.PresignDownloadResponse{
		URL:       url,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	})
}
