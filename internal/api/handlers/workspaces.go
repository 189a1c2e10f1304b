package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/formloom/formloom/internal/api/dto"
	"github.com/formloom/formloom/internal/api/middleware"
	"github.com/formloom/formloom/internal/database/models"
	"github.com/formloom/formloom/internal/workspaces"
)

type WorkspaceHandler struct {
	workspaces *workspaces.Service
}

func NewWorkspaceHandler(workspaceService *workspaces.Service) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaceService}
}

// List handles GET /api/v1/workspaces and returns every workspace the
// caller belongs to, not just the one their token is scoped to.
func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	memberships, err := h.workspaces.ListForUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list workspaces"})
		return
	}

	responses := make([]dto.WorkspaceResponse, len(memberships))
	for i, m := range memberships {
		responses[i] = dto.NewWorkspaceResponse(&m.Workspace, m.Role)
	}

	writeJSON(w, http.StatusOK, responses)
}

// Create handles POST /api/v1/workspaces
func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req dto.CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	workspace, err := h.workspaces.Create(r.Context(), userID, req.Name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create workspace"})
		return
	}

	writeJSON(w, http.StatusCreated, dto.NewWorkspaceResponse(workspace, models.RoleOwner))
}

// Current handles GET /api/v1/workspaces/current
func (h *WorkspaceHandler) Current(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	workspace, err := h.workspaces.Get(r.Context(), workspaceID)
	if err != nil {
		switch err {
		case workspaces.ErrWorkspaceNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Workspace not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get workspace"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.NewWorkspaceResponse(workspace, middleware.GetUserRole(r.Context())))
}

// Update handles PATCH /api/v1/workspaces/current
func (h *WorkspaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	var req dto.UpdateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	workspace, err := h.workspaces.Update(r.Context(), workspaceID, req.Name)
	if err != nil {
		switch err {
		case workspaces.ErrWorkspaceNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Workspace not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update workspace"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.NewWorkspaceResponse(workspace, middleware.GetUserRole(r.Context())))
}

// ListMembers handles GET /api/v1/workspaces/current/members
func (h *WorkspaceHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	members, err := h.workspaces.ListMembers(r.Context(), workspaceID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list members"})
		return
	}

	responses := make([]dto.MemberResponse, len(members))
	for i := range members {
		responses[i] = dto.NewMemberResponse(&members[i])
	}

	writeJSON(w, http.StatusOK, responses)
}

// AddMember handles POST /api/v1/workspaces/current/members
func (h *WorkspaceHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	var req dto.AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	member, err := h.workspaces.AddMember(r.Context(), workspaceID, req.Email, req.Role)
	if err != nil {
		switch err {
		case workspaces.ErrInvalidRole:
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid role"})
		case workspaces.ErrUserNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "No user with that email"})
		case workspaces.ErrMemberExists:
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "User is already a member"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to add member"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, dto.NewMemberResponse(member))
}

// UpdateMember handles PATCH /api/v1/workspaces/current/members/{userID}
func (h *WorkspaceHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid user ID"})
		return
	}

	var req dto.UpdateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	member, err := h.workspaces.UpdateMemberRole(r.Context(), workspaceID, userID, req.Role)
	if err != nil {
		switch err {
		case workspaces.ErrInvalidRole:
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid role"})
		case workspaces.ErrMemberNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Member not found"})
		case workspaces.ErrLastOwner:
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Workspace must keep at least one owner"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update member"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.NewMemberResponse(member))
}

// RemoveMember handles DELETE /api/v1/workspaces/current/members/{userID}
func (h *WorkspaceHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid user ID"})
		return
	}

	if err := h.workspaces.RemoveMember(r.Context(), workspaceID, userID); err != nil {
		switch err {
		case workspaces.ErrMemberNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Member not found"})
		case workspaces.ErrLastOwner:
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Workspace must keep at least one owner"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to remove member"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Member removed"})
}
