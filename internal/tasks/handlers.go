package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/formloom/formloom/internal/database/models"
	"github.com/formloom/formloom/internal/mail"
	"github.com/formloom/formloom/internal/webhooks"
)

type Handler struct {
	db        *gorm.DB
	logger    *slog.Logger
	mailer    mail.Mailer
	webhooks  *webhooks.Service
	client    *http.Client
	baseURL   string
	retention time.Duration
}

func NewHandler(db *gorm.DB, logger *slog.Logger, mailer mail.Mailer, webhookSvc *webhooks.Service, baseURL string, retention time.Duration) *Handler {
	return &Handler{
		db:        db,
		logger:    logger,
		mailer:    mailer,
		webhooks:  webhookSvc,
		client:    &http.Client{Timeout: 15 * time.Second},
		baseURL:   baseURL,
		retention: retention,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeEmailVerification, h.HandleEmailVerification)
	mux.HandleFunc(TypeEmailPasswordReset, h.HandleEmailPasswordReset)
	mux.HandleFunc(TypeEmailSubmissionNotice, h.HandleEmailSubmissionNotice)
	mux.HandleFunc(TypeWebhookDeliver, h.HandleWebhookDeliver)
	mux.HandleFunc(TypeCleanupSweep, h.HandleCleanupSweep)
}

func (h *Handler) HandleEmailVerification(ctx context.Context, t *asynq.Task) error {
	var payload EmailVerificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	subject, body := mail.VerificationEmail(h.baseURL, payload.Name, payload.Token)
	if err := h.mailer.Send(ctx, payload.Email, subject, body); err != nil {
		h.logger.Error("verification mail failed", "user_id", payload.UserID, "error", err)
		return err
	}

	h.logger.Info("verification mail sent", "user_id", payload.UserID)
	return nil
}

func (h *Handler) HandleEmailPasswordReset(ctx context.Context, t *asynq.Task) error {
	var payload EmailPasswordResetPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	subject, body := mail.PasswordResetEmail(h.baseURL, payload.Name, payload.Token)
	if err := h.mailer.Send(ctx, payload.Email, subject, body); err != nil {
		h.logger.Error("password reset mail failed", "user_id", payload.UserID, "error", err)
		return err
	}

	h.logger.Info("password reset mail sent", "user_id", payload.UserID)
	return nil
}

func (h *Handler) HandleEmailSubmissionNotice(ctx context.Context, t *asynq.Task) error {
	var payload EmailSubmissionNoticePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	var form models.Form
	if err := h.db.WithContext(ctx).First(&form, payload.FormID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Form deleted since the submission arrived; nothing to do.
			h.logger.Info("skipping notice for deleted form", "form_id", payload.FormID)
			return nil
		}
		return err
	}
	if form.NotifyEmail == "" {
		return nil
	}

	subject, body := mail.SubmissionNoticeEmail(h.baseURL, form.Title, form.ID.String())
	if err := h.mailer.Send(ctx, form.NotifyEmail, subject, body); err != nil {
		h.logger.Error("submission notice failed", "form_id", form.ID, "error", err)
		return err
	}

	return nil
}

// deliveryEnvelope is the webhook wire format. Receivers verify the
// signature header against these exact bytes.
type deliveryEnvelope struct {
	Event      string             `json:"event"`
	FormID     string             `json:"form_id"`
	Submission *models.Submission `json:"submission"`
}

func (h *Handler) HandleWebhookDeliver(ctx context.Context, t *asynq.Task) error {
	var payload WebhookDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	var hook models.Webhook
	if err := h.db.WithContext(ctx).First(&hook, payload.WebhookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Info("skipping delivery to deleted webhook", "webhook_id", payload.WebhookID)
			return nil
		}
		return err
	}
	if !hook.IsActive {
		return nil
	}

	var submission models.Submission
	if err := h.db.WithContext(ctx).First(&submission, payload.SubmissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Info("skipping delivery of purged submission", "submission_id", payload.SubmissionID)
			return nil
		}
		return err
	}

	secret, err := h.webhooks.DecryptSecret(&hook)
	if err != nil {
		return fmt.Errorf("decrypting webhook secret: %w", err)
	}

	body, err := json.Marshal(deliveryEnvelope{
		Event:      "submission.created",
		FormID:     hook.FormID.String(),
		Submission: &submission,
	})
	if err != nil {
		return fmt.Errorf("encoding delivery: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "formloom-webhooks/1.0")
	req.Header.Set("X-Formloom-Event", "submission.created")
	req.Header.Set(webhooks.SignatureHeader, webhooks.Sign(secret, body))

	resp, err := h.client.Do(req)
	if err != nil {
		if recErr := h.webhooks.RecordDelivery(ctx, hook.ID, 0, false); recErr != nil {
			h.logger.Error("failed to record delivery", "webhook_id", hook.ID, "error", recErr)
		}
		return fmt.Errorf("delivering to %s: %w", hook.URL, err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if recErr := h.webhooks.RecordDelivery(ctx, hook.ID, resp.StatusCode, ok); recErr != nil {
		h.logger.Error("failed to record delivery", "webhook_id", hook.ID, "error", recErr)
	}

	if !ok {
		// Returning an error puts the task back on the retry schedule.
		return fmt.Errorf("webhook %s answered %d", hook.URL, resp.StatusCode)
	}

	h.logger.Info("webhook delivered",
		"webhook_id", hook.ID, "submission_id", submission.ID, "status", resp.StatusCode)
	return nil
}

// HandleCleanupSweep purges forms that have been soft-deleted for
// longer than the retention period, together with their submissions and
// webhooks.
func (h *Handler) HandleCleanupSweep(ctx context.Context, t *asynq.Task) error {
	cutoff := time.Now().Add(-h.retention)

	var doomed []models.Form
	err := h.db.WithContext(ctx).
		Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Find(&doomed).Error
	if err != nil {
		return fmt.Errorf("finding expired forms: %w", err)
	}

	purged := 0
	for _, form := range doomed {
		err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("form_id = ?", form.ID).Delete(&models.Submission{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("form_id = ?", form.ID).Delete(&models.Webhook{}).Error; err != nil {
				return err
			}
			return tx.Unscoped().Delete(&form).Error
		})
		if err != nil {
			h.logger.Error("failed to purge form", "form_id", form.ID, "error", err)
			continue
		}
		purged++
	}

	h.logger.Info("cleanup sweep finished", "expired", len(doomed), "purged", purged)
	return nil
}
