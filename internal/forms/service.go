package forms

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/formloom/formloom/internal/database/models"
	"github.com/formloom/formloom/pkg/util"
)

var (
	ErrFormNotFound = errors.New("form not found")
	ErrSlugTaken    = errors.New("form slug already in use")
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type CreateInput struct {
	Title       string
	Slug        string // optional; derived from Title when empty
	Description string
	Fields      models.JSON
	NotifyEmail string
}

type UpdateInput struct {
	Title       *string
	Slug        *string
	Description *string
	Fields      models.JSON
	NotifyEmail *string
}

type ListParams struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// Create adds a draft form to the workspace. Explicitly chosen slugs
// must be free; derived ones get a suffix on collision.
func (s *Service) Create(ctx context.Context, workspaceID uuid.UUID, input CreateInput) (*models.Form, error) {
	slug := strings.TrimSpace(input.Slug)
	derived := slug == ""
	if derived {
		slug = util.Slugify(input.Title)
		if slug == "" {
			slug = "form"
		}
	}

	taken, err := s.slugTaken(ctx, workspaceID, slug, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		if !derived {
			return nil, ErrSlugTaken
		}
		slug = slug + "-" + uuid.New().String()[:8]
	}

	fields := input.Fields
	if len(fields) == 0 {
		fields = models.JSON(`[]`)
	}

	form := models.Form{
		WorkspaceID: workspaceID,
		Title:       strings.TrimSpace(input.Title),
		Slug:        slug,
		Description: input.Description,
		Status:      models.FormStatusDraft,
		Fields:      fields,
		NotifyEmail: strings.TrimSpace(input.NotifyEmail),
	}

	if err := s.db.WithContext(ctx).Create(&form).Error; err != nil {
		return nil, err
	}
	return &form, nil
}

// Get fetches a form inside the workspace. Forms in other workspaces
// are indistinguishable from missing ones.
func (s *Service) Get(ctx context.Context, workspaceID, formID uuid.UUID) (*models.Form, error) {
	var form models.Form
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		First(&form, formID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	return &form, nil
}

// GetPublic fetches a form for unauthenticated embedding. Only
// published forms are visible; drafts and archived forms 404.
func (s *Service) GetPublic(ctx context.Context, formID uuid.UUID) (*models.Form, error) {
	var form models.Form
	err := s.db.WithContext(ctx).
		Where("status = ?", models.FormStatusPublished).
		First(&form, formID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	return &form, nil
}

// GetAny fetches a form regardless of workspace. Ingest uses it so a
// draft form can be told apart from a missing one.
func (s *Service) GetAny(ctx context.Context, formID uuid.UUID) (*models.Form, error) {
	var form models.Form
	if err := s.db.WithContext(ctx).First(&form, formID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	return &form, nil
}

func (s *Service) List(ctx context.Context, workspaceID uuid.UUID, params ListParams) ([]models.Form, int64, error) {
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 20
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	query := s.db.WithContext(ctx).
		Model(&models.Form{}).
		Where("workspace_id = ?", workspaceID)

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Search != "" {
		pattern := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ?", pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []models.Form
	err := query.
		Order("created_at DESC").
		Limit(params.Limit).
		Offset(params.Offset).
		Find(&results).Error
	if err != nil {
		return nil, 0, err
	}

	return results, total, nil
}

func (s *Service) Update(ctx context.Context, workspaceID, formID uuid.UUID, input UpdateInput) (*models.Form, error) {
	form, err := s.Get(ctx, workspaceID, formID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		form.Title = strings.TrimSpace(*input.Title)
	}
	if input.Slug != nil {
		slug := strings.TrimSpace(*input.Slug)
		if slug != form.Slug {
			taken, err := s.slugTaken(ctx, workspaceID, slug, form.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, ErrSlugTaken
			}
			form.Slug = slug
		}
	}
	if input.Description != nil {
		form.Description = *input.Description
	}
	if len(input.Fields) > 0 {
		form.Fields = input.Fields
	}
	if input.NotifyEmail != nil {
		form.NotifyEmail = strings.TrimSpace(*input.NotifyEmail)
	}

	if err := s.db.WithContext(ctx).Save(form).Error; err != nil {
		return nil, err
	}
	return form, nil
}

// Publish opens the form for submissions. Publishing an already
// published form is a no-op; archived forms can be reopened.
func (s *Service) Publish(ctx context.Context, workspaceID, formID uuid.UUID) (*models.Form, error) {
	form, err := s.Get(ctx, workspaceID, formID)
	if err != nil {
		return nil, err
	}
	if form.Status == models.FormStatusPublished {
		return form, nil
	}

	now := time.Now()
	form.Status = models.FormStatusPublished
	if form.PublishedAt == nil {
		form.PublishedAt = &now
	}
	form.ArchivedAt = nil

	if err := s.db.WithContext(ctx).Save(form).Error; err != nil {
		return nil, err
	}
	return form, nil
}

// Archive closes the form. Its submissions stay readable; ingest
// rejects new ones.
func (s *Service) Archive(ctx context.Context, workspaceID, formID uuid.UUID) (*models.Form, error) {
	form, err := s.Get(ctx, workspaceID, formID)
	if err != nil {
		return nil, err
	}
	if form.Status == models.FormStatusArchived {
		return form, nil
	}

	now := time.Now()
	form.Status = models.FormStatusArchived
	form.ArchivedAt = &now

	if err := s.db.WithContext(ctx).Save(form).Error; err != nil {
		return nil, err
	}
	return form, nil
}

// Delete soft-deletes the form. The retention sweep purges it and its
// submissions for good later.
func (s *Service) Delete(ctx context.Context, workspaceID, formID uuid.UUID) error {
	form, err := s.Get(ctx, workspaceID, formID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(form).Error
}

func (s *Service) slugTaken(ctx context.Context, workspaceID uuid.UUID, slug string, excludeID uuid.UUID) (bool, error) {
	query := s.db.WithContext(ctx).
		Model(&models.Form{}).
		Unscoped(). // soft-deleted forms still hold their slug
		Where("workspace_id = ? AND slug = ?", workspaceID, slug)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
