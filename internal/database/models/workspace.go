package models

import (
	"time"

	"github.com/google/uuid"
)

// Workspace roles, ordered by privilege.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

type Workspace struct {
	Base
	Name string `gorm:"not null" json:"name"`
	Slug string `gorm:"uniqueIndex;not null" json:"slug"`
	Plan string `gorm:"default:'free'" json:"plan"` // free, pro, enterprise

	// Relationships
	Members []WorkspaceMember `gorm:"foreignKey:WorkspaceID" json:"-"`
	Forms   []Form            `gorm:"foreignKey:WorkspaceID" json:"-"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

type WorkspaceMember struct {
	UserID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;primaryKey" json:"workspace_id"`
	Role        string    `gorm:"not null;default:'viewer'" json:"role"`
	CreatedAt   time.Time `json:"created_at"`

	// Relationships
	User      *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Workspace *Workspace `gorm:"foreignKey:WorkspaceID" json:"workspace,omitempty"`
}

func (WorkspaceMember) TableName() string {
	return "workspace_members"
}

// RoleRank maps a role to its privilege level for at-least comparisons.
func RoleRank(role string) int {
	switch role {
	case RoleOwner:
		return 4
	case RoleAdmin:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// ValidRole reports whether role is one of the workspace roles.
func ValidRole(role string) bool {
	return RoleRank(role) > 0
}
