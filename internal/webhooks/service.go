package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/formloom/formloom/internal/database/models"
	"github.com/formloom/formloom/pkg/crypto"
)

var (
	ErrWebhookNotFound = errors.New("webhook not found")
	ErrFormNotFound    = errors.New("form not found")
)

// SignatureHeader carries the HMAC of the delivery body so receivers
// can verify it came from us.
const SignatureHeader = "X-Formloom-Signature"

const secretBytes = 32

type Service struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
}

func NewService(db *gorm.DB, encryptor *crypto.Encryptor) *Service {
	return &Service{db: db, encryptor: encryptor}
}

// Create registers a webhook on a form and returns the signing secret.
// The plaintext secret is returned exactly once; only its encrypted
// form is stored.
func (s *Service) Create(ctx context.Context, workspaceID, formID uuid.UUID, url string) (*models.Webhook, string, error) {
	if err := s.requireForm(ctx, workspaceID, formID); err != nil {
		return nil, "", err
	}

	secret, err := crypto.GenerateRandomString(secretBytes)
	if err != nil {
		return nil, "", err
	}
	secret = "whsec_" + secret

	encrypted, err := s.encryptor.Encrypt(secret)
	if err != nil {
		return nil, "", err
	}

	hook := models.Webhook{
		FormID:          formID,
		URL:             strings.TrimSpace(url),
		SecretEncrypted: encrypted,
		IsActive:        true,
	}
	if err := s.db.WithContext(ctx).Create(&hook).Error; err != nil {
		return nil, "", err
	}

	return &hook, secret, nil
}

func (s *Service) List(ctx context.Context, workspaceID, formID uuid.UUID) ([]models.Webhook, error) {
	if err := s.requireForm(ctx, workspaceID, formID); err != nil {
		return nil, err
	}

	var hooks []models.Webhook
	err := s.db.WithContext(ctx).
		Where("form_id = ?", formID).
		Order("created_at ASC").
		Find(&hooks).Error
	return hooks, err
}

func (s *Service) Get(ctx context.Context, workspaceID, formID, webhookID uuid.UUID) (*models.Webhook, error) {
	if err := s.requireForm(ctx, workspaceID, formID); err != nil {
		return nil, err
	}

	var hook models.Webhook
	err := s.db.WithContext(ctx).
		Where("form_id = ?", formID).
		First(&hook, webhookID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWebhookNotFound
		}
		return nil, err
	}
	return &hook, nil
}

type UpdateInput struct {
	URL      *string
	IsActive *bool
}

func (s *Service) Update(ctx context.Context, workspaceID, formID, webhookID uuid.UUID, input UpdateInput) (*models.Webhook, error) {
	hook, err := s.Get(ctx, workspaceID, formID, webhookID)
	if err != nil {
		return nil, err
	}

	if input.URL != nil {
		hook.URL = strings.TrimSpace(*input.URL)
	}
	if input.IsActive != nil {
		hook.IsActive = *input.IsActive
	}

	if err := s.db.WithContext(ctx).Save(hook).Error; err != nil {
		return nil, err
	}
	return hook, nil
}

func (s *Service) Delete(ctx context.Context, workspaceID, formID, webhookID uuid.UUID) error {
	hook, err := s.Get(ctx, workspaceID, formID, webhookID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(hook).Error
}

// DecryptSecret recovers the signing secret for delivery.
func (s *Service) DecryptSecret(hook *models.Webhook) (string, error) {
	return s.encryptor.Decrypt(hook.SecretEncrypted)
}

// RecordDelivery updates the webhook's delivery bookkeeping after an
// attempt. Success resets the failure streak.
func (s *Service) RecordDelivery(ctx context.Context, webhookID uuid.UUID, status int, ok bool) error {
	updates := map[string]any{
		"last_status":     status,
		"last_attempt_at": time.Now(),
	}
	if ok {
		updates["failure_count"] = 0
	} else {
		updates["failure_count"] = gorm.Expr("failure_count + 1")
	}

	return s.db.WithContext(ctx).
		Model(&models.Webhook{}).
		Where("id = ?", webhookID).
		Updates(updates).Error
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

// Sign computes the hex HMAC-SHA256 of body under secret, in the form
// the signature header carries.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body under secret.
// Receivers use the same check on their side.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
