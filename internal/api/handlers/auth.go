package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/formloom/formloom/internal/api/dto"
	"github.com/formloom/formloom/internal/api/middleware"
	"github.com/formloom/formloom/internal/auth"
)

type AuthHandler struct {
	authService *auth.Service
}

func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	resp, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Email:         req.Email,
		Password:      req.Password,
		Name:          req.Name,
		WorkspaceName: req.WorkspaceName,
	})

	if err != nil {
		switch err {
		case auth.ErrUserExists:
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "User already exists"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Registration failed"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, authResponseDTO(resp))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	resp, err := h.authService.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})

	if err != nil {
		switch err {
		case auth.ErrInvalidCredentials:
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid credentials"})
		case auth.ErrInactiveUser:
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Account is inactive"})
		case auth.ErrNoWorkspace:
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Account has no workspace"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Login failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, authResponseDTO(resp))
}

// Refresh exchanges a refresh token for a fresh pair. The presented
// token is retired in the process.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	pair, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch err {
		case auth.ErrInvalidToken, auth.ErrExpiredToken, auth.ErrWrongTokenKind,
			auth.ErrSessionRevoked, auth.ErrUserNotFound:
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid refresh token"})
		case auth.ErrInactiveUser:
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Account is inactive"})
		case auth.ErrNotMember:
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "No longer a member of this workspace"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Refresh failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.authService.Logout(r.Context(), userID); err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Logout failed"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out"})
}

// Me returns the calling user together with their active workspace
// scope, straight from the token claims.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	user, err := h.authService.GetUserByID(ctx, userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "User not found"})
		return
	}

	writeJSON(w, http.StatusOK, dto.NewUserDTO(user,
		middleware.GetWorkspaceID(ctx).String(), "", middleware.GetUserRole(ctx)))
}

func (h *AuthHandler) SwitchWorkspace(w http.ResponseWriter, r *http.Request) {
	var req dto.SwitchWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	workspaceID, _ := uuid.Parse(req.WorkspaceID)
	resp, err := h.authService.SwitchWorkspace(r.Context(), middleware.GetUserID(r.Context()), workspaceID)
	if err != nil {
		switch err {
		case auth.ErrNotMember:
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Not a member of this workspace"})
		case auth.ErrUserNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "User not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Workspace switch failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, authResponseDTO(resp))
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	if err := h.authService.VerifyEmail(r.Context(), req.Token); err != nil {
		switch err {
		case auth.ErrTokenNotFound:
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid or expired token"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Verification failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Email verified"})
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.authService.ResendVerification(r.Context(), userID); err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to resend verification"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Verification email sent"})
}

// ForgotPassword always answers 200 so the endpoint cannot be used to
// probe which addresses have accounts.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req.Email); err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Request failed"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "If the address exists, a reset email is on its way"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		switch err {
		case auth.ErrTokenNotFound:
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid or expired token"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Password reset failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Password updated"})
}

func authResponseDTO(resp *auth.AuthResponse) dto.AuthResponse {
	workspaceID := ""
	workspaceName := ""
	if resp.Workspace != nil {
		workspaceID = resp.Workspace.ID.String()
		workspaceName = resp.Workspace.Name
	}

	return dto.AuthResponse{
		AccessToken:  resp.Tokens.AccessToken,
		RefreshToken: resp.Tokens.RefreshToken,
		ExpiresIn:    resp.Tokens.ExpiresIn,
		User:         dto.NewUserDTO(resp.User, workspaceID, workspaceName, resp.Role),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
