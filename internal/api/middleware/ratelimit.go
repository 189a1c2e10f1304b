package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/formloom/formloom/internal/api/dto"
	"github.com/formloom/formloom/internal/ratelimit"
)

// RateLimit applies a per-IP request budget to a route group. Counters
// live in the shared cache, so all instances enforce one budget.
func RateLimit(limiter *ratelimit.Limiter, routeKey string, policy ratelimit.Policy) func(http.Handler) http.Handler {
	return rateLimitWith(limiter, routeKey, policy, func(r *http.Request) string {
		return ratelimit.ClientIP(r)
	})
}

// RateLimitByUser budgets authenticated traffic per user, falling back
// to the client IP when no user is on the context.
func RateLimitByUser(limiter *ratelimit.Limiter, routeKey string, policy ratelimit.Policy) func(http.Handler) http.Handler {
	return rateLimitWith(limiter, routeKey, policy, func(r *http.Request) string {
		if userID := GetUserID(r.Context()); userID != uuid.Nil {
			return "user:" + userID.String()
		}
		return ratelimit.ClientIP(r)
	})
}

func rateLimitWith(limiter *ratelimit.Limiter, routeKey string, policy ratelimit.Policy, identity func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := limiter.Allow(r.Context(), identity(r), routeKey, policy)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(decision.RetryAfter.Seconds())+1, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(dto.ErrorResponse{Error: "rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
