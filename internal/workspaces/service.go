package workspaces

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/formloom/formloom/internal/database/models"
	"github.com/formloom/formloom/pkg/util"
)

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrMemberNotFound    = errors.New("member not found")
	ErrMemberExists      = errors.New("user is already a member")
	ErrInvalidRole       = errors.New("invalid role")
	ErrLastOwner         = errors.New("workspace must keep at least one owner")
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Membership pairs a workspace with the user's role in it.
type Membership struct {
	Workspace models.Workspace `json:"workspace"`
	Role      string           `json:"role"`
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	var workspace models.Workspace
	if err := s.db.WithContext(ctx).First(&workspace, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, err
	}
	return &workspace, nil
}

// Create makes an additional workspace with userID as its owner.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, name string) (*models.Workspace, error) {
	name = strings.TrimSpace(name)

	var workspace models.Workspace
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		workspace = models.Workspace{
			Name: name,
			Slug: s.uniqueSlug(tx, util.Slugify(name)),
		}
		if err := tx.Create(&workspace).Error; err != nil {
			return err
		}

		member := models.WorkspaceMember{
			UserID:      userID,
			WorkspaceID: workspace.ID,
			Role:        models.RoleOwner,
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, err
	}

	return &workspace, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, name string) (*models.Workspace, error) {
	workspace, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	workspace.Name = strings.TrimSpace(name)
	if err := s.db.WithContext(ctx).Save(workspace).Error; err != nil {
		return nil, err
	}
	return workspace, nil
}

// ListForUser returns every workspace the user belongs to with their role.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	var members []models.WorkspaceMember
	err := s.db.WithContext(ctx).
		Preload("Workspace").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}

	memberships := make([]Membership, 0, len(members))
	for _, m := range members {
		if m.Workspace == nil {
			continue
		}
		memberships = append(memberships, Membership{Workspace: *m.Workspace, Role: m.Role})
	}
	return memberships, nil
}

func (s *Service) ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]models.WorkspaceMember, error) {
	var members []models.WorkspaceMember
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC").
		Find(&members).Error
	return members, err
}

func (s *Service) GetMember(ctx context.Context, workspaceID, userID uuid.UUID) (*models.WorkspaceMember, error) {
	var member models.WorkspaceMember
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

// AddMember adds the user with the given email to the workspace.
func (s *Service) AddMember(ctx context.Context, workspaceID uuid.UUID, email, role string) (*models.WorkspaceMember, error) {
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if _, err := s.GetMember(ctx, workspaceID, user.ID); err == nil {
		return nil, ErrMemberExists
	} else if !errors.Is(err, ErrMemberNotFound) {
		return nil, err
	}

	member := models.WorkspaceMember{
		UserID:      user.ID,
		WorkspaceID: workspaceID,
		Role:        role,
	}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		return nil, err
	}

	member.User = &user
	return &member, nil
}

// UpdateMemberRole changes a member's role. Demoting the only owner is
// refused so the workspace cannot end up ownerless.
func (s *Service) UpdateMemberRole(ctx context.Context, workspaceID, userID uuid.UUID, role string) (*models.WorkspaceMember, error) {
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	member, err := s.GetMember(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}

	if member.Role == models.RoleOwner && role != models.RoleOwner {
		if err := s.requireAnotherOwner(ctx, workspaceID, userID); err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).
		Model(&models.WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Update("role", role).Error
	if err != nil {
		return nil, err
	}

	member.Role = role
	return member, nil
}

// RemoveMember drops a member. The last owner cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, workspaceID, userID uuid.UUID) error {
	member, err := s.GetMember(ctx, workspaceID, userID)
	if err != nil {
		return err
	}

	if member.Role == models.RoleOwner {
		if err := s.requireAnotherOwner(ctx, workspaceID, userID); err != nil {
			return err
		}
	}

	return s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Delete(&models.WorkspaceMember{}).Error
}

func (s *Service) requireAnotherOwner(ctx context.Context, workspaceID, excludeUserID uuid.UUID) error {
	var owners int64
	err := s.db.WithContext(ctx).
		Model(&models.WorkspaceMember{}).
		Where("workspace_id = ? AND role = ? AND user_id <> ?", workspaceID, models.RoleOwner, excludeUserID).
		Count(&owners).Error
	if err != nil {
		return err
	}
	if owners == 0 {
		return ErrLastOwner
	}
	return nil
}

func (s *Service) uniqueSlug(tx *gorm.DB, slug string) string {
	if slug == "" {
		slug = "workspace"
	}
	var count int64
	tx.Model(&models.Workspace{}).Where("slug = ?", slug).Count(&count)
	if count == 0 {
		return slug
	}
	return slug + "-" + uuid.New().String()[:8]
}
