package dto

import (
	"time"

	"github.com/formloom/formloom/internal/api/validation"
	"github.com/formloom/formloom/internal/database/models"
)

type CreateWebhookRequest struct {
	URL string `json:"url"`
}

func (r CreateWebhookRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.URL == "" {
		errors["url"] = "URL is required"
	} else if !validation.IsValidWebhookURL(r.URL) {
		errors["url"] = "URL must be an absolute http(s) URL"
	}

	return errors
}

type UpdateWebhookRequest struct {
	URL      *string `json:"url,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func (r UpdateWebhookRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.URL != nil && !validation.IsValidWebhookURL(*r.URL) {
		errors["url"] = "URL must be an absolute http(s) URL"
	}

	return errors
}

type WebhookResponse struct {
	ID            string     `json:"id"`
	FormID        string     `json:"form_id"`
	URL           string     `json:"url"`
	IsActive      bool       `json:"is_active"`
	LastStatus    int        `json:"last_status,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	FailureCount  int        `json:"failure_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

func NewWebhookResponse(hook *models.Webhook) WebhookResponse {
	return WebhookResponse{
		ID:            hook.ID.String(),
		FormID:        hook.FormID.String(),
		URL:           hook.URL,
		IsActive:      hook.IsActive,
		LastStatus:    hook.LastStatus,
		LastAttemptAt: hook.LastAttemptAt,
		FailureCount:  hook.FailureCount,
		CreatedAt:     hook.CreatedAt,
	}
}

// CreateWebhookResponse is the only place the plaintext signing secret
// ever appears. Callers must store it; it cannot be fetched again.
type CreateWebhookResponse struct {
	WebhookResponse
	Secret string `json:"secret"`
}
