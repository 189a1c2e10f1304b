package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/formloom/formloom/internal/api/dto"
	"github.com/formloom/formloom/internal/api/middleware"
	"github.com/formloom/formloom/internal/submissions"
)

type SubmissionHandler struct {
	submissions *submissions.Service
}

func NewSubmissionHandler(submissionService *submissions.Service) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissionService}
}

// List handles GET /api/v1/forms/{formID}/submissions
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return
	}

	params, errs := listParamsFromQuery(r)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	page, err := h.submissions.List(r.Context(), workspaceID, formID, params)
	if err != nil {
		switch err {
		case submissions.ErrFormNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list submissions"})
		}
		return
	}

	items := make([]dto.SubmissionResponse, len(page.Items))
	for i := range page.Items {
		items[i] = dto.NewSubmissionResponse(&page.Items[i])
	}

	writeJSON(w, http.StatusOK, dto.CursorPage{
		Data:        items,
		HasNextPage: page.HasNextPage,
		NextCursor:  page.NextCursor,
		Total:       page.Total,
	})
}

// Get handles GET /api/v1/forms/{formID}/submissions/{submissionID}
func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return
	}
	submissionID, err := uuid.Parse(chi.URLParam(r, "submissionID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid submission ID"})
		return
	}

	submission, err := h.submissions.Get(r.Context(), workspaceID, formID, submissionID)
	if err != nil {
		switch err {
		case submissions.ErrFormNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
		case submissions.ErrSubmissionNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Submission not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get submission"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.NewSubmissionResponse(submission))
}

// Export handles GET /api/v1/forms/{formID}/submissions/export and
// streams the result as a CSV download.
func (h *SubmissionHandler) Export(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid form ID"})
		return
	}

	params, errs := listParamsFromQuery(r)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="submissions-%s.csv"`, formID))

	// Nothing is written until the form check inside Export passes, so
	// failures here can still downgrade to a JSON error.
	if err := h.submissions.Export(r.Context(), workspaceID, formID, params, w); err != nil {
		if err == submissions.ErrFormNotFound {
			w.Header().Del("Content-Disposition")
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Form not found"})
			return
		}
		// Mid-stream failures cannot change the status line anymore.
		return
	}
}

func listParamsFromQuery(r *http.Request) (submissions.ListParams, map[string]string) {
	errs := make(map[string]string)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	params := submissions.ListParams{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
		Search: r.URL.Query().Get("search"),
	}

	if raw := r.URL.Query().Get("date_from"); raw != "" {
		t, err := parseMillisParam(raw)
		if err != nil {
			errs["date_from"] = "Must be an epoch-milliseconds integer"
		} else {
			params.DateFrom = &t
		}
	}
	if raw := r.URL.Query().Get("date_to"); raw != "" {
		t, err := parseMillisParam(raw)
		if err != nil {
			errs["date_to"] = "Must be an epoch-milliseconds integer"
		} else {
			params.DateTo = &t
		}
	}

	return params, errs
}

// Date filters arrive as epoch milliseconds, matching the precision
// submissions are stored and cursored at.
func parseMillisParam(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
