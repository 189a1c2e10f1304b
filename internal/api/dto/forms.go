package dto

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/formloom/formloom/internal/api/validation"
	"github.com/formloom/formloom/internal/database/models"
)

type CreateFormRequest struct {
	Title       string          `json:"title"`
	Slug        string          `json:"slug,omitempty"`
	Description string          `json:"description,omitempty"`
	Fields      json.RawMessage `json:"fields,omitempty"`
	NotifyEmail string          `json:"notify_email,omitempty"`
}

func (r CreateFormRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.Title) == "" {
		errors["title"] = "Title is required"
	} else if len(r.Title) > 200 {
		errors["title"] = "Title must be at most 200 characters"
	}
	if r.Slug != "" && !validation.IsValidSlug(r.Slug) {
		errors["slug"] = "Slug may only contain lowercase letters, numbers, and hyphens"
	}
	if r.NotifyEmail != "" && !validation.IsValidEmail(r.NotifyEmail) {
		errors["notify_email"] = "Notify email is not a valid address"
	}

	return errors
}

type UpdateFormRequest struct {
	Title       *string         `json:"title,omitempty"`
	Slug        *string         `json:"slug,omitempty"`
	Description *string         `json:"description,omitempty"`
	Fields      json.RawMessage `json:"fields,omitempty"`
	NotifyEmail *string         `json:"notify_email,omitempty"`
}

func (r UpdateFormRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Title != nil {
		if strings.TrimSpace(*r.Title) == "" {
			errors["title"] = "Title cannot be empty"
		} else if len(*r.Title) > 200 {
			errors["title"] = "Title must be at most 200 characters"
		}
	}
	if r.Slug != nil && !validation.IsValidSlug(*r.Slug) {
		errors["slug"] = "Slug may only contain lowercase letters, numbers, and hyphens"
	}
	if r.NotifyEmail != nil && *r.NotifyEmail != "" && !validation.IsValidEmail(*r.NotifyEmail) {
		errors["notify_email"] = "Notify email is not a valid address"
	}

	return errors
}

type FormResponse struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	Description string          `json:"description,omitempty"`
	Status      string          `json:"status"`
	Fields      json.RawMessage `json:"fields"`
	NotifyEmail string          `json:"notify_email,omitempty"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	ArchivedAt  *time.Time      `json:"archived_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func NewFormResponse(form *models.Form) FormResponse {
	return FormResponse{
		ID:          form.ID.String(),
		WorkspaceID: form.WorkspaceID.String(),
		Title:       form.Title,
		Slug:        form.Slug,
		Description: form.Description,
		Status:      form.Status,
		Fields:      json.RawMessage(form.Fields),
		NotifyEmail: form.NotifyEmail,
		PublishedAt: form.PublishedAt,
		ArchivedAt:  form.ArchivedAt,
		CreatedAt:   form.CreatedAt,
		UpdatedAt:   form.UpdatedAt,
	}
}

// PublicFormResponse is the embeddable view of a published form. It
// omits owner-only details like the notify address.
type PublicFormResponse struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	Description string          `json:"description,omitempty"`
	Fields      json.RawMessage `json:"fields"`
}

func NewPublicFormResponse(form *models.Form) PublicFormResponse {
	return PublicFormResponse{
		ID:          form.ID.String(),
		Title:       form.Title,
		Slug:        form.Slug,
		Description: form.Description,
		Fields:      json.RawMessage(form.Fields),
	}
}
