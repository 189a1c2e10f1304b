package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/formloom/formloom/internal/api/dto"
	"github.com/formloom/formloom/internal/forms"
	"github.com/formloom/formloom/internal/ratelimit"
	"github.com/formloom/formloom/internal/submissions"
)

// maxIngestBody caps unauthenticated submission payloads at 1 MiB.
const maxIngestBody = 1 << 20

var ingestCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "submissions_ingested_total",
		Help: "Submissions accepted through the public ingest endpoint",
	},
	[]string{"form_id"},
)

func init() {
	prometheus.MustRegister(ingestCounter)
}

// PublicHandler serves the unauthenticated endpoints that embedded
// forms talk to.
type PublicHandler struct {
	forms       *forms.Service
	submissions *submissions.Service
}

func NewPublicHandler(formService *forms.Service, submissionService *submissions.Service) *PublicHandler {
	return &PublicHandler{forms: formService, submissions: submissionService}
}

// GetForm handles GET /api/v1/public/forms/{formID}
func (h *PublicHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return
	}

	form, err := h.forms.GetPublic(r.Context(), formID)
	if err != nil {
		switch err {
		case forms.ErrFormNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get form"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.NewPublicFormResponse(form))
}

// Ingest handles POST /api/v1/public/forms/{formID}/submissions
func (h *PublicHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBody)

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	submission, err := h.submissions.Ingest(r.Context(), formID, submissions.IngestInput{
		Payload:   payload,
		IPAddress: ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	})
	if err != nil {
		var verr *submissions.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: verr.Fields})
		case err == submissions.ErrFormNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
		case err == submissions.ErrFormClosed:
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Form is not accepting submissions"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to accept submission"})
		}
		return
	}

	ingestCounter.WithLabelValues(formID.String()).Inc()

	writeJSON(w, http.StatusCreated, dto.NewIngestResponse(submission))
}
