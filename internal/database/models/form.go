package models

import (
	"time"

	"github.com/google/uuid"
)

// Form lifecycle states. Only published forms accept submissions.
const (
	FormStatusDraft     = "draft"
	FormStatusPublished = "published"
	FormStatusArchived  = "archived"
)

type Form struct {
	Base
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_forms_workspace_slug" json:"workspace_id"`
	Title       string    `gorm:"not null" json:"title"`
	Slug        string    `gorm:"not null;uniqueIndex:idx_forms_workspace_slug" json:"slug"`
	Description string    `json:"description"`
	Status      string    `gorm:"default:'draft';index" json:"status"`

	// Fields holds the form's field schema as a JSON array:
	// [{"key":"email","type":"email","label":"Email","required":true}, ...]
	Fields JSON `gorm:"type:jsonb" json:"fields"`

	// NotifyEmail, when set, receives a mail for every new submission.
	NotifyEmail string `json:"notify_email"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`

	// Relationships
	Workspace   *Workspace   `gorm:"foreignKey:WorkspaceID" json:"workspace,omitempty"`
	Submissions []Submission `gorm:"foreignKey:FormID" json:"-"`
	Webhooks    []Webhook    `gorm:"foreignKey:FormID" json:"-"`
}

func (Form) TableName() string {
	return "forms"
}

// AcceptsSubmissions reports whether the form can receive new submissions.
func (f *Form) AcceptsSubmissions() bool {
	return f.Status == FormStatusPublished
}
