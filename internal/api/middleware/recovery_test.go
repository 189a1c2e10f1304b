package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func panicky() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("database exploded")
	})
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecovery_HidesDetailByDefault(t *testing.T) {
	handler := Recovery(silentLogger(), false)(panicky())

	req := httptest.NewRequest("GET", "/api/v1/forms", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.NotContains(t, rec.Body.String(), "database exploded")
}

func TestRecovery_ExposesMessageWhenEnabled(t *testing.T) {
	handler := Recovery(silentLogger(), true)(panicky())

	req := httptest.NewRequest("GET", "/api/v1/forms", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "database exploded")
	// The stack stays in the log either way.
	assert.NotContains(t, rec.Body.String(), "goroutine")
}

func TestRecovery_PassesThroughWithoutPanic(t *testing.T) {
	handler := Recovery(silentLogger(), false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
