package models

import (
	"time"

	"github.com/google/uuid"
)

// Webhook is notified for every submission accepted by its form.
// SecretEncrypted is the age-encrypted HMAC signing secret; the
// plaintext is returned exactly once, at creation.
type Webhook struct {
	Base
	FormID          uuid.UUID `gorm:"type:uuid;not null;index" json:"form_id"`
	URL             string    `gorm:"not null" json:"url"`
	SecretEncrypted string    `gorm:"not null" json:"-"`
	IsActive        bool      `gorm:"default:true" json:"is_active"`

	// Delivery bookkeeping, updated by the worker.
	LastStatus    int        `json:"last_status,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	FailureCount  int        `gorm:"default:0" json:"failure_count"`

	// Relationships
	Form *Form `gorm:"foreignKey:FormID" json:"form,omitempty"`
}

func (Webhook) TableName() string {
	return "webhooks"
}
