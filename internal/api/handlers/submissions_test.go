package handlers_test

import (
	"encoding/csv"
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
	"github.com/formloom/formloom/internal/api/middleware"
	"github.com/formloom/formloom/internal/database/models"
	"github.com/formloom/formloom/internal/submissions"
	"github.com/formloom/formloom/internal/testutil"
)

// submissionPage mirrors dto.CursorPage with a concrete Data type.
type submissionPage struct {
	Data        []dto.SubmissionResponse `json:"data"`
	HasNextPage bool                     `json:"has_next_page"`
	NextCursor  string                   `json:"next_cursor"`
	Total       int64                    `json:"total"`
}

func setupSubmissionTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	service := submissions.NewService(tc.DB, nil, testutil.SilentLogger())
	handler := handlers.NewSubmissionHandler(service)

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))
	r.Route("/api/v1/forms/{formID}/submissions", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Get("/export", handler.Export)
		r.Get("/{submissionID}", handler.Get)
	})

	return r, tc
}

// seedSubmissions creates n submissions one second apart and returns
// them newest first, the order the API lists them in.
func seedSubmissions(t *testing.T, tc *testutil.TestSetup, formID uuid.UUID, n int) []*models.Submission {
	t.Helper()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC).UnixMilli()
	out := make([]*models.Submission, n)
	for i := 0; i < n; i++ {
		sub := testutil.CreateTestSubmission(t, tc.DB, formID, base+int64(i)*1000)
		out[n-1-i] = sub
	}
	return out
}

func listSubmissions(t *testing.T, router *chi.Mux, token string, formID uuid.UUID, query string) (*httptest.ResponseRecorder, *submissionPage) {
	t.Helper()

	path := fmt.Sprintf("/api/v1/forms/%s/submissions", formID)
	if query != "" {
		path += "?" + query
	}
	req := testutil.AuthenticatedRequest(t, "GET", path, nil, token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		return rr, nil
	}
	var page submissionPage
	testutil.ParseJSONResponse(t, rr, &page)
	return rr, &page
}

func TestSubmissionHandler_List(t *testing.T) {
	router, tc := setupSubmissionTestRouter(t)
	form := testutil.CreateTestForm(t, tc.DB, tc.Workspace.ID, models.FormStatusPublished)
	seeded := seedSubmissions(t, tc, form.ID, 5)

	t.Run("first page is newest first", func(t *testing.T) {
		rr, page := listSubmissions(t, router, tc.Token, form.ID, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		require.Len(t, page.Data, 5)
		assert.Equal(t, int64(5), page.Total)
		assert.False(t, page.HasNextPage)
		assert.Empty(t, page.NextCursor)
		for i, sub := range seeded {
			assert.Equal(t, sub.ID.String(), page.Data[i].ID)
		}
	})

	t.Run("cursor walks every page without gaps or duplicates", func(t *testing.T) {
		seen := make(map[string]bool)
		var got []string

		cursor := ""
		pages := 0
		for {
			query := "limit=2"
			if cursor != "" {
				query += "&cursor=" + cursor
			}
			rr, page := listSubmissions(t, router, tc.Token, form.ID, query)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			require.LessOrEqual(t, len(page.Data), 2)
			assert.Equal(t, int64(5), page.Total)
			assert.Equal(t, page.HasNextPage, page.NextCursor != "")

			for _, item := range page.Data {
				require.False(t, seen[item.ID], "submission %s repeated", item.ID)
				seen[item.ID] = true
				got = append(got, item.ID)
			}

			pages++
			if !page.HasNextPage {
				break
			}
			cursor = page.NextCursor
		}

		assert.Equal(t, 3, pages)
		require.Len(t, got, 5)
		for i, sub := range seeded {
			assert.Equal(t, sub.ID.String(), got[i])
		}
	})

	t.Run("rows inserted mid walk do not disturb later pages", func(t *testing.T) {
		fresh := testutil.CreateTestForm(t, tc.DB, tc.Workspace.ID, models.FormStatusPublished)
		older := seedSubmissions(t, tc, fresh.ID, 4)

		rr, first := listSubmissions(t, router, tc.Token, fresh.ID, "limit=2")
		require.Equal(t, http.StatusOK, rr.Code)
		require.True(t, first.HasNextPage)
		require.NotEmpty(t, first.NextCursor)

		// A submission newer than everything on page one.
		testutil.CreateTestSubmission(t, tc.DB, fresh.ID, time.Now().UnixMilli())

		rr, second := listSubmissions(t, router, tc.Token, fresh.ID, "limit=2&cursor="+first.NextCursor)
		require.Equal(t, http.StatusOK, rr.Code)
		require.Len(t, second.Data, 2)
		assert.Equal(t, older[2].ID.String(), second.Data[0].ID)
		assert.Equal(t, older[3].ID.String(), second.Data[1].ID)
	})

	t.Run("undecodable cursor restarts from page one", func(t *testing.T) {
		rr, page := listSubmissions(t, router, tc.Token, form.ID, "limit=2&cursor=not-a-cursor")
		require.Equal(t, http.StatusOK, rr.Code)

		require.Len(t, page.Data, 2)
		assert.Equal(t, seeded[0].ID.String(), page.Data[0].ID)
	})

	t.Run("date range filters", func(t *testing.T) {
		// Seeded rows run 12:00:00 through 12:00:04 UTC, one second
		// apart. Bounds are epoch millis, inclusive on both ends.
		base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC).UnixMilli()
		rr, page := listSubmissions(t, router, tc.Token, form.ID,
			fmt.Sprintf("date_from=%d&date_to=%d", base+1000, base+3000))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		assert.Equal(t, int64(3), page.Total)
		require.Len(t, page.Data, 3)
		assert.Equal(t, seeded[1].ID.String(), page.Data[0].ID)
	})

	t.Run("search matches payload text", func(t *testing.T) {
		distinctive := &models.Submission{
			ID:          uuid.New(),
			FormID:      form.ID,
			Payload:     models.JSON(`{"name":"Grace Hopper","email":"grace@example.com"}`),
			SubmittedAt: time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC).UnixMilli(),
		}
		require.NoError(t, tc.DB.Create(distinctive).Error)

		rr, page := listSubmissions(t, router, tc.Token, form.ID, "search=hopper")
		require.Equal(t, http.StatusOK, rr.Code)

		require.Len(t, page.Data, 1)
		assert.Equal(t, distinctive.ID.String(), page.Data[0].ID)
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("invalid date parameter", func(t *testing.T) {
		rr, _ := listSubmissions(t, router, tc.Token, form.ID, "date_from=10%2F03%2F2026")
		require.Equal(t, http.StatusBadRequest, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Contains(t, resp.Details, "date_from")
	})

	t.Run("unknown form", func(t *testing.T) {
		rr, _ := listSubmissions(t, router, tc.Token, uuid.New(), "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("form in another workspace is invisible", func(t *testing.T) {
		other := testutil.CreateTestWorkspace(t, tc.DB)
		foreign := testutil.CreateTestForm(t, tc.DB, other.ID, models.FormStatusPublished)
		testutil.CreateTestSubmission(t, tc.DB, foreign.ID, time.Now().UnixMilli())

		rr, _ := listSubmissions(t, router, tc.Token, foreign.ID, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestSubmissionHandler_Get(t *testing.T) {
	router, tc := setupSubmissionTestRouter(t)
	form := testutil.CreateTestForm(t, tc.DB, tc.Workspace.ID, models.FormStatusPublished)
	sub := testutil.CreateTestSubmission(t, tc.DB, form.ID, time.Now().UnixMilli())

	t.Run("returns payload and provenance", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/forms/%s/submissions/%s", form.ID, sub.ID)
		req := testutil.AuthenticatedRequest(t, "GET", path, nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp dto.SubmissionResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, sub.ID.String(), resp.ID)
		assert.Equal(t, form.ID.String(), resp.FormID)
		assert.Equal(t, sub.SubmittedAt, resp.SubmittedAt)
		assert.Equal(t, "203.0.113.7", resp.IPAddress)
		assert.Contains(t, string(resp.Payload), "ada@example.com")
	})

	t.Run("unknown submission", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/forms/%s/submissions/%s", form.ID, uuid.New())
		req := testutil.AuthenticatedRequest(t, "GET", path, nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("submission belonging to another form", func(t *testing.T) {
		otherForm := testutil.CreateTestForm(t, tc.DB, tc.Workspace.ID, models.FormStatusPublished)

		path := fmt.Sprintf("/api/v1/forms/%s/submissions/%s", otherForm.ID, sub.ID)
		req := testutil.AuthenticatedRequest(t, "GET", path, nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("invalid submission id", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/forms/%s/submissions/not-a-uuid", form.ID)
		req := testutil.AuthenticatedRequest(t, "GET", path, nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestSubmissionHandler_Export(t *testing.T) {
	router, tc := setupSubmissionTestRouter(t)
	form := testutil.CreateTestForm(t, tc.DB, tc.Workspace.ID, models.FormStatusPublished)
	seeded := seedSubmissions(t, tc, form.ID, 3)

	t.Run("streams CSV in list order", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/forms/%s/submissions/export", form.ID)
		req := testutil.AuthenticatedRequest(t, "GET", path, nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
		assert.Contains(t, rr.Header().Get("Content-Disposition"),
			fmt.Sprintf("submissions-%s.csv", form.ID))

		records, err := csv.NewReader(rr.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 4)

		assert.Equal(t,
			[]string{"id", "submitted_at", "name", "email", "message", "ip_address", "user_agent"},
			records[0])
		for i, sub := range seeded {
			row := records[i+1]
			assert.Equal(t, sub.ID.String(), row[0])
			assert.Equal(t, "Ada", row[2])
			assert.Equal(t, "ada@example.com", row[3])
			assert.Equal(t, "203.0.113.7", row[5])
		}
	})

	t.Run("respects list filters", func(t *testing.T) {
		// Drop the oldest of the three seeded rows.
		path := fmt.Sprintf("/api/v1/forms/%s/submissions/export?date_from=%d", form.ID, seeded[1].SubmittedAt)
		req := testutil.AuthenticatedRequest(t, "GET", path, nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		records, err := csv.NewReader(rr.Body).ReadAll()
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})

	t.Run("unknown form gets a JSON 404, not a download", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/forms/%s/submissions/export", uuid.New())
		req := testutil.AuthenticatedRequest(t, "GET", path, nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusNotFound, rr.Code)
		assert.Empty(t, rr.Header().Get("Content-Disposition"))
		assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json"))
	})
}
