package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/formloom/formloom/internal/api/dto"
)

// Recovery turns handler panics into 500s instead of dropped
// connections. The stack goes to the log, never to the client; with
// exposeErrors set (non-production) the body carries the panic message
// instead of the generic one.
func Recovery(logger *slog.Logger, exposeErrors bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", rec,
						"stack", string(debug.Stack()),
					)

					message := "internal server error"
					if exposeErrors {
						message = fmt.Sprintf("%v", rec)
					}

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(dto.ErrorResponse{Error: message})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
