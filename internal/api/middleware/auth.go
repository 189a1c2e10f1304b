package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/formloom/formloom/internal/api/dto"
	"github.com/formloom/formloom/internal/auth"
	"github.com/formloom/formloom/internal/database/models"
)

type contextKey string

const (
	UserIDKey      contextKey = "user_id"
	WorkspaceIDKey contextKey = "workspace_id"
	UserEmailKey   contextKey = "user_email"
	UserRoleKey    contextKey = "user_role"
)

// Auth authenticates API requests. Only bearer tokens are accepted;
// refresh tokens are rejected here so they cannot double as access
// tokens.
func Auth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeUnauthorized(w, "missing authorization header")
				return
			}
			if !strings.HasPrefix(header, "Bearer ") {
				writeUnauthorized(w, "invalid authorization format")
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")

			claims, err := jwtService.ValidateToken(token, auth.TokenKindAccess)
			if err != nil {
				if errors.Is(err, auth.ErrWrongTokenKind) {
					writeUnauthorized(w, "invalid token type")
					return
				}
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches identity context when a valid access token is
// present and otherwise lets the request through unauthenticated. It
// never rejects, so public endpoints serve visitors and logged-in
// builders through the same code path.
func OptionalAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")

			claims, err := jwtService.ValidateToken(token, auth.TokenKindAccess)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
	ctx = context.WithValue(ctx, WorkspaceIDKey, claims.WorkspaceID)
	ctx = context.WithValue(ctx, UserEmailKey, claims.Email)
	ctx = context.WithValue(ctx, UserRoleKey, claims.Role)
	return ctx
}

func writeUnauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(dto.ErrorResponse{Error: reason})
}

// Helper functions to extract values from context
func GetUserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(UserIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func GetWorkspaceID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(WorkspaceIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func GetUserEmail(ctx context.Context) string {
	if email, ok := ctx.Value(UserEmailKey).(string); ok {
		return email
	}
	return ""
}

func GetUserRole(ctx context.Context) string {
	if role, ok := ctx.Value(UserRoleKey).(string); ok {
		return role
	}
	return ""
}

// RequireRole gates a route on workspace role. Roles rank
// owner > admin > editor > viewer, so requiring "editor" also admits
// admins and owners.
func RequireRole(minimum string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetUserRole(r.Context())

			if models.RoleRank(role) < models.RoleRank(minimum) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(dto.ErrorResponse{Error: "insufficient role"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
