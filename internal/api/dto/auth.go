package dto

import (
	"strings"

	"github.com/formloom/formloom/internal/api/validation"
	"github.com/formloom/formloom/internal/database/models"
)

type RegisterRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Name          string `json:"name"`
	WorkspaceName string `json:"workspace_name,omitempty"`
}

func (r RegisterRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(r.Email) {
		errors["email"] = "Email is not a valid address"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	} else if ok, msg := validation.IsValidPassword(r.Password); !ok {
		errors["password"] = msg
	}
	if strings.TrimSpace(r.Name) == "" {
		errors["name"] = "Name is required"
	}

	return errors
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r RefreshRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.RefreshToken == "" {
		errors["refresh_token"] = "Refresh token is required"
	}

	return errors
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

func (r VerifyEmailRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Token == "" {
		errors["token"] = "Token is required"
	}

	return errors
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r ForgotPasswordRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}

	return errors
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r ResetPasswordRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Token == "" {
		errors["token"] = "Token is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	} else if ok, msg := validation.IsValidPassword(r.Password); !ok {
		errors["password"] = msg
	}

	return errors
}

type SwitchWorkspaceRequest struct {
	WorkspaceID string `json:"workspace_id"`
}

func (r SwitchWorkspaceRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.WorkspaceID == "" {
		errors["workspace_id"] = "Workspace ID is required"
	} else if !validation.IsValidUUID(r.WorkspaceID) {
		errors["workspace_id"] = "Workspace ID must be a UUID"
	}

	return errors
}

// AuthResponse carries a fresh token pair. Issued on signup, login,
// refresh, and workspace switch.
type AuthResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    int64   `json:"expires_in"`
	User         UserDTO `json:"user"`
}

type UserDTO struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
	WorkspaceID   string `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name,omitempty"`
	Role          string `json:"role"`
}

// NewUserDTO flattens a user plus their active workspace context.
func NewUserDTO(user *models.User, workspaceID, workspaceName, role string) UserDTO {
	return UserDTO{
		ID:            user.ID.String(),
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
		WorkspaceID:   workspaceID,
		WorkspaceName: workspaceName,
		Role:          role,
	}
}
