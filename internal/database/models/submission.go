package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Submission is immutable once written: no updates, no soft delete.
// SubmittedAt is epoch milliseconds so cursor ordering survives
// databases with second-granularity timestamps.
type Submission struct {
	ID     uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	FormID uuid.UUID `gorm:"type:uuid;not null;index:idx_submissions_page,priority:1" json:"form_id"`

	// Payload holds the submitted answers keyed by field key.
	Payload JSON `gorm:"type:jsonb" json:"payload"`

	SubmittedAt int64     `gorm:"not null;index:idx_submissions_page,priority:2,sort:desc" json:"submitted_at"`
	CreatedAt   time.Time `json:"created_at"`

	// Provenance, captured at ingest.
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Referer   string `json:"referer,omitempty"`

	// Relationships
	Form *Form `gorm:"foreignKey:FormID" json:"form,omitempty"`
}

func (Submission) TableName() string {
	return "submissions"
}

func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.SubmittedAt == 0 {
		s.SubmittedAt = time.Now().UnixMilli()
	}
	return nil
}

// SubmittedTime returns SubmittedAt as a time.Time.
func (s *Submission) SubmittedTime() time.Time {
	return time.UnixMilli(s.SubmittedAt)
}
