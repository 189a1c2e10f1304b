package dto

import (
	"encoding/json"
	"time"

	"github.com/formloom/formloom/internal/database/models"
)

type SubmissionResponse struct {
	ID          string          `json:"id"`
	FormID      string          `json:"form_id"`
	Payload     json.RawMessage `json:"payload"`
	SubmittedAt int64           `json:"submitted_at"`
	IPAddress   string          `json:"ip_address,omitempty"`
	UserAgent   string          `json:"user_agent,omitempty"`
	Referer     string          `json:"referer,omitempty"`
}

func NewSubmissionResponse(sub *models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:          sub.ID.String(),
		FormID:      sub.FormID.String(),
		Payload:     json.RawMessage(sub.Payload),
		SubmittedAt: sub.SubmittedAt,
		IPAddress:   sub.IPAddress,
		UserAgent:   sub.UserAgent,
		Referer:     sub.Referer,
	}
}

// IngestResponse acknowledges an accepted public submission. It leaks
// nothing beyond the receipt id and time.
type IngestResponse struct {
	ID          string    `json:"id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func NewIngestResponse(sub *models.Submission) IngestResponse {
	return IngestResponse{
		ID:          sub.ID.String(),
		SubmittedAt: sub.SubmittedTime(),
	}
}
