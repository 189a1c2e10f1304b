package dto

import (
	"strings"
	"time"

	"github.com/formloom/formloom/internal/api/validation"
	"github.com/formloom/formloom/internal/database/models"
)

type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

func (r CreateWorkspaceRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.Name) == "" {
		errors["name"] = "Name is required"
	} else if len(r.Name) > 100 {
		errors["name"] = "Name must be at most 100 characters"
	}

	return errors
}

type UpdateWorkspaceRequest struct {
	Name string `json:"name"`
}

func (r UpdateWorkspaceRequest) Validate() map[string]string {
	return CreateWorkspaceRequest(r).Validate()
}

type AddMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (r AddMemberRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(r.Email) {
		errors["email"] = "Email is not a valid address"
	}
	if r.Role == "" {
		errors["role"] = "Role is required"
	} else if !models.ValidRole(r.Role) {
		errors["role"] = "Role must be one of: owner, admin, editor, viewer"
	}

	return errors
}

type UpdateMemberRequest struct {
	Role string `json:"role"`
}

func (r UpdateMemberRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Role == "" {
		errors["role"] = "Role is required"
	} else if !models.ValidRole(r.Role) {
		errors["role"] = "Role must be one of: owner, admin, editor, viewer"
	}

	return errors
}

type WorkspaceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Plan      string    `json:"plan"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewWorkspaceResponse(ws *models.Workspace, role string) WorkspaceResponse {
	return WorkspaceResponse{
		ID:        ws.ID.String(),
		Name:      ws.Name,
		Slug:      ws.Slug,
		Plan:      ws.Plan,
		Role:      role,
		CreatedAt: ws.CreatedAt,
	}
}

type MemberResponse struct {
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func NewMemberResponse(member *models.WorkspaceMember) MemberResponse {
	resp := MemberResponse{
		UserID:   member.UserID.String(),
		Role:     member.Role,
		JoinedAt: member.CreatedAt,
	}
	if member.User != nil {
		resp.Email = member.User.Email
		resp.Name = member.User.Name
	}
	return resp
}
