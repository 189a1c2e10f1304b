package submissions

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/formloom/formloom/internal/api/validation"
	"github.com/formloom/formloom/internal/database/models"
	"github.com/formloom/formloom/internal/forms"
	"github.com/formloom/formloom/internal/tasks"
)

var (
	ErrFormNotFound       = errors.New("form not found")
	ErrFormClosed         = errors.New("form is not published and cannot accept submissions")
	ErrSubmissionNotFound = errors.New("submission not found")
)

// ValidationError carries per-field problems with a rejected payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "submission failed validation"
}

const (
	defaultPageSize = 50
	maxPageSize     = 100
	exportBatchSize = 500

	maxProvenanceLen = 512
)

type Service struct {
	db       *gorm.DB
	enqueuer tasks.Enqueuer
	log      *slog.Logger
}

func NewService(db *gorm.DB, enqueuer tasks.Enqueuer, log *slog.Logger) *Service {
	return &Service{db: db, enqueuer: enqueuer, log: log}
}

type IngestInput struct {
	Payload   map[string]any
	IPAddress string
	UserAgent string
	Referer   string
}

// Ingest accepts one submission for a published form. The payload is
// filtered to the form's schema; unknown keys are dropped rather than
// rejected so stale embeds keep working after a schema change.
func (s *Service) Ingest(ctx context.Context, formID uuid.UUID, input IngestInput) (*models.Submission, error) {
	var form models.Form
	if err := s.db.WithContext(ctx).First(&form, formID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}

	if !form.AcceptsSubmissions() {
		return nil, ErrFormClosed
	}

	payload, err := s.validatePayload(&form, input.Payload)
	if err != nil {
		return nil, err
	}

	// Provenance comes from client-controlled headers; cap and strip it
	// before it reaches storage or a CSV export.
	submission := models.Submission{
		FormID:    form.ID,
		Payload:   payload,
		IPAddress: cleanProvenance(input.IPAddress),
		UserAgent: cleanProvenance(input.UserAgent),
		Referer:   cleanProvenance(input.Referer),
	}

	if err := s.db.WithContext(ctx).Create(&submission).Error; err != nil {
		return nil, err
	}

	s.notify(ctx, &form, &submission)

	return &submission, nil
}

type ListParams struct {
	Limit    int
	Cursor   string
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string
}

// Page is one slice of a form's submissions. Total counts everything
// matching the filters regardless of cursor position, so it can lag
// behind inserts that happen mid-pagination. NextCursor is set exactly
// when HasNextPage is true.
type Page struct {
	Items       []models.Submission `json:"items"`
	HasNextPage bool                `json:"has_next_page"`
	NextCursor  string              `json:"next_cursor,omitempty"`
	Total       int64               `json:"total"`
}

// List pages through a form's submissions, newest first. Rows are keyed
// by (submitted_at DESC, id ASC); the cursor pins the position so rows
// inserted during pagination never duplicate or displace results on
// later pages.
func (s *Service) List(ctx context.Context, workspaceID, formID uuid.UUID, params ListParams) (*Page, error) {
	if err := s.requireForm(ctx, workspaceID, formID); err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	filtered := s.filteredQuery(ctx, formID, params)

	var total int64
	if err := filtered.Count(&total).Error; err != nil {
		return nil, err
	}

	query := s.filteredQuery(ctx, formID, params)
	if params.Cursor != "" {
		// A cursor that does not decode restarts from the first page.
		if cursor, err := DecodeCursor(params.Cursor); err == nil {
			query = query.Where(
				"(submitted_at < ?) OR (submitted_at = ? AND id > ?)",
				cursor.SubmittedAt, cursor.SubmittedAt, cursor.ID,
			)
		}
	}

	var items []models.Submission
	err := query.
		Order("submitted_at DESC").
		Order("id ASC").
		Limit(limit + 1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	page := &Page{Total: total}
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		page.HasNextPage = true
		page.NextCursor = Cursor{SubmittedAt: last.SubmittedAt, ID: last.ID}.Encode()
	}
	page.Items = items

	return page, nil
}

func (s *Service) Get(ctx context.Context, workspaceID, formID, submissionID uuid.UUID) (*models.Submission, error) {
	if err := s.requireForm(ctx, workspaceID, formID); err != nil {
		return nil, err
	}

	var submission models.Submission
	err := s.db.WithContext(ctx).
		Where("form_id = ?", formID).
		First(&submission, submissionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return &submission, nil
}

// Export streams every matching submission as CSV in list order. The
// header is id, submitted_at, the schema's field keys, then provenance.
func (s *Service) Export(ctx context.Context, workspaceID, formID uuid.UUID, params ListParams, w io.Writer) error {
	if err := s.requireForm(ctx, workspaceID, formID); err != nil {
		return err
	}

	var form models.Form
	if err := s.db.WithContext(ctx).First(&form, formID).Error; err != nil {
		return err
	}
	fields, err := forms.ParseFields(form.Fields)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)

	header := []string{"id", "submitted_at"}
	for _, f := range fields {
		header = append(header, f.Key)
	}
	header = append(header, "ip_address", "user_agent")
	if err := writer.Write(header); err != nil {
		return err
	}

	params.Cursor = ""
	params.Limit = 0
	cursor := ""
	for {
		query := s.filteredQuery(ctx, formID, params)
		if cursor != "" {
			c, err := DecodeCursor(cursor)
			if err != nil {
				return err
			}
			query = query.Where(
				"(submitted_at < ?) OR (submitted_at = ? AND id > ?)",
				c.SubmittedAt, c.SubmittedAt, c.ID,
			)
		}

		var batch []models.Submission
		err := query.
			Order("submitted_at DESC").
			Order("id ASC").
			Limit(exportBatchSize).
			Find(&batch).Error
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		for _, sub := range batch {
			row, err := csvRow(&sub, fields)
			if err != nil {
				return err
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}

		last := batch[len(batch)-1]
		cursor = Cursor{SubmittedAt: last.SubmittedAt, ID: last.ID}.Encode()

		if len(batch) < exportBatchSize {
			break
		}
	}

	writer.Flush()
	return writer.Error()
}

// Count returns how many submissions a form has received.
func (s *Service) Count(ctx context.Context, workspaceID, formID uuid.UUID) (int64, error) {
	if err := s.requireForm(ctx, workspaceID, formID); err != nil {
		return 0, err
	}

	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("form_id = ?", formID).
		Count(&total).Error
	return total, err
}

func (s *Service) requireForm(ctx context.Context, workspaceID, formID uuid.UUID) error {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Form{}).
		Where("id = ? AND workspace_id = ?", formID, workspaceID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrFormNotFound
	}
	return nil
}

func (s *Service) filteredQuery(ctx context.Context, formID uuid.UUID, params ListParams) *gorm.DB {
	query := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("form_id = ?", formID)

	if params.DateFrom != nil {
		query = query.Where("submitted_at >= ?", params.DateFrom.UnixMilli())
	}
	if params.DateTo != nil {
		query = query.Where("submitted_at <= ?", params.DateTo.UnixMilli())
	}
	if params.Search != "" {
		pattern := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(CAST(payload AS TEXT)) LIKE ?", pattern)
	}

	return query
}

func (s *Service) validatePayload(form *models.Form, payload map[string]any) (models.JSON, error) {
	fields, err := forms.ParseFields(form.Fields)
	if err != nil {
		return nil, err
	}

	problems := make(map[string]string)
	kept := make(map[string]any, len(fields))

	for _, f := range fields {
		value, present := payload[f.Key]

		empty := !present || value == nil
		if str, ok := value.(string); ok && strings.TrimSpace(str) == "" {
			empty = true
		}

		if empty {
			if f.Required {
				problems[f.Key] = "is required"
			}
			continue
		}

		if f.Type == "email" {
			if str, ok := value.(string); !ok || !validation.IsValidEmail(str) {
				problems[f.Key] = "must be a valid email address"
				continue
			}
		}

		kept[f.Key] = value
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Fields: problems}
	}

	raw, err := json.Marshal(kept)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return models.JSON(raw), nil
}

// notify fans out to the form's notify address and active webhooks.
// Failures are logged, never surfaced: the submission is already stored.
func (s *Service) notify(ctx context.Context, form *models.Form, submission *models.Submission) {
	if s.enqueuer == nil {
		return
	}

	if form.NotifyEmail != "" {
		task, err := tasks.NewEmailSubmissionNoticeTask(tasks.EmailSubmissionNoticePayload{
			FormID:       form.ID,
			SubmissionID: submission.ID,
		})
		if err == nil {
			_, err = s.enqueuer.Enqueue(task)
		}
		if err != nil {
			s.log.Warn("failed to enqueue submission notice", "form_id", form.ID, "error", err)
		}
	}

	var webhooks []models.Webhook
	err := s.db.WithContext(ctx).
		Where("form_id = ? AND is_active = ?", form.ID, true).
		Find(&webhooks).Error
	if err != nil {
		s.log.Warn("failed to load webhooks for delivery", "form_id", form.ID, "error", err)
		return
	}

	for _, hook := range webhooks {
		var task *asynq.Task
		task, err = tasks.NewWebhookDeliverTask(tasks.WebhookDeliverPayload{
			WebhookID:    hook.ID,
			SubmissionID: submission.ID,
		})
		if err == nil {
			_, err = s.enqueuer.Enqueue(task)
		}
		if err != nil {
			s.log.Warn("failed to enqueue webhook delivery",
				"webhook_id", hook.ID, "submission_id", submission.ID, "error", err)
		}
	}
}

func csvRow(sub *models.Submission, fields []forms.Field) ([]string, error) {
	var payload map[string]any
	if len(sub.Payload) > 0 {
		if err := json.Unmarshal(sub.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decoding payload for %s: %w", sub.ID, err)
		}
	}

	row := []string{sub.ID.String(), sub.SubmittedTime().UTC().Format(time.RFC3339Nano)}
	for _, f := range fields {
		row = append(row, stringify(payload[f.Key]))
	}
	row = append(row, sub.IPAddress, sub.UserAgent)
	return row, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}

func cleanProvenance(s string) string {
	return validation.TruncateString(validation.SanitizeString(s), maxProvenanceLen)
}
