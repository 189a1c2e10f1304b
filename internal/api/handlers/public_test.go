package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formloom/formloom/internal/api/dto"
	"github.com/formloom/formloom/internal/api/handlers"
	"github.com/formloom/formloom/internal/database/models"
	"github.com/formloom/formloom/internal/forms"
	"github.com/formloom/formloom/internal/submissions"
	"github.com/formloom/formloom/internal/testutil"
)

func setupPublicTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	handler := handlers.NewPublicHandler(
		forms.NewService(tc.DB),
		submissions.NewService(tc.DB, nil, testutil.SilentLogger()),
	)

	// No auth middleware: these routes serve embedded forms.
	r := chi.NewRouter()
	r.Get("/api/v1/public/forms/{formID}", handler.GetForm)
	r.Post("/api/v1/public/forms/{formID}/submissions", handler.Ingest)

	return r, tc
}

func ingestRequest(t *testing.T, router *chi.Mux, formID string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	path := fmt.Sprintf("/api/v1/public/forms/%s/submissions", formID)
	req := testutil.AuthenticatedRequest(t, "POST", path, payload, "")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestPublicHandler_GetForm(t *testing.T) {
	router, tc := setupPublicTestRouter(t)

	t.Run("published form is visible", func(t *testing.T) {
		form := testutil.CreateTestForm(t, tc.DB, tc.Workspace.ID, models.FormStatusPublished)
		require.NoError(t, tc.DB.Model(form).Update("notify_email", "ops@example.com").Error)

		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/public/forms/"+form.ID.String(), nil, "")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp dto.PublicFormResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, form.ID.String(), resp.ID)
		assert.Equal(t, form.Title, resp.Title)

		var fields []map[string]any
		require.NoError(t, json.Unmarshal(resp.Fields, &fields))
		assert.Len(t, fields, 3)

		// The public view must not leak workspace configuration.
		assert.NotContains(t, rr.Body.String(), "notify_email")
		assert.NotContains(t, rr.Body.String(), "ops@example.com")
	})

	t.Run("draft form is hidden", func(t *testing.T) {
		form := testutil.CreateTestForm(t, tc.DB, tc.Workspace.ID, models.FormStatusDraft)

		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/public/forms/"+form.ID.String(), nil, "")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("archived form is hidden", func(t *testing.T) {
		form := testutil.CreateTestForm(t, tc.DB, tc.Workspace.ID, models.FormStatusArchived)

		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/public/forms/"+form.ID.String(), nil, "")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("unknown form", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/public/forms/"+uuid.NewString(), nil, "")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("invalid form id", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/public/forms/not-a-uuid", nil, "")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestPublicHandler_Ingest(t *testing.T) {
	router, tc := setupPublicTestRouter(t)
	form := testutil.CreateTestForm(t, tc.DB, tc.Workspace.ID, models.FormStatusPublished)

	t.Run("accepts a submission and records provenance", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/public/forms/%s/submissions", form.ID)
		req := testutil.AuthenticatedRequest(t, "POST", path, map[string]any{
			"name":    "Ada Lovelace",
			"email":   "ada@example.com",
			"message": "hello from the embed",
		}, "")
		req.Header.Set("User-Agent", "embed-widget/1.2")
		req.Header.Set("Referer", "https://customer.example.com/contact")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var resp dto.IngestResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		id, err := uuid.Parse(resp.ID)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now(), resp.SubmittedAt, time.Minute)

		var stored models.Submission
		require.NoError(t, tc.DB.First(&stored, "id = ?", id).Error)
		assert.Equal(t, form.ID, stored.FormID)
		assert.Equal(t, "192.0.2.1", stored.IPAddress)
		assert.Equal(t, "embed-widget/1.2", stored.UserAgent)
		assert.Equal(t, "https://customer.example.com/contact", stored.Referer)
	})

	t.Run("unknown keys are dropped", func(t *testing.T) {
		rr := ingestRequest(t, router, form.ID.String(), map[string]any{
			"name":  "Ada",
			"email": "ada@example.com",
			"admin": true,
			"role":  "owner",
		})

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var resp dto.IngestResponse
		testutil.ParseJSONResponse(t, rr, &resp)

		var stored models.Submission
		require.NoError(t, tc.DB.First(&stored, "id = ?", uuid.MustParse(resp.ID)).Error)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(stored.Payload, &payload))
		assert.Equal(t, "Ada", payload["name"])
		assert.NotContains(t, payload, "admin")
		assert.NotContains(t, payload, "role")
	})

	t.Run("missing required field", func(t *testing.T) {
		rr := ingestRequest(t, router, form.ID.String(), map[string]any{
			"name": "Ada",
		})

		require.Equal(t, http.StatusBadRequest, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "is required", resp.Details["email"])
	})

	t.Run("whitespace counts as missing", func(t *testing.T) {
		rr := ingestRequest(t, router, form.ID.String(), map[string]any{
			"name":  "   ",
			"email": "ada@example.com",
		})

		require.Equal(t, http.StatusBadRequest, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "is required", resp.Details["name"])
	})

	t.Run("invalid email value", func(t *testing.T) {
		rr := ingestRequest(t, router, form.ID.String(), map[string]any{
			"name":  "Ada",
			"email": "not-an-email",
		})

		require.Equal(t, http.StatusBadRequest, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "must be a valid email address", resp.Details["email"])
	})

	t.Run("draft form is closed", func(t *testing.T) {
		draft := testutil.CreateTestForm(t, tc.DB, tc.Workspace.ID, models.FormStatusDraft)

		rr := ingestRequest(t, router, draft.ID.String(), map[string]any{
			"name":  "Ada",
			"email": "ada@example.com",
		})

		require.Equal(t, http.StatusForbidden, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Form is not accepting submissions", resp.Error)
	})

	t.Run("archived form is closed", func(t *testing.T) {
		archived := testutil.CreateTestForm(t, tc.DB, tc.Workspace.ID, models.FormStatusArchived)

		rr := ingestRequest(t, router, archived.ID.String(), map[string]any{
			"name":  "Ada",
			"email": "ada@example.com",
		})

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("unknown form", func(t *testing.T) {
		rr := ingestRequest(t, router, uuid.NewString(), map[string]any{
			"name":  "Ada",
			"email": "ada@example.com",
		})

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/public/forms/%s/submissions", form.ID)
		req := httptest.NewRequest("POST", path, strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
