package tasks_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/formloom/formloom/internal/database/models"
	"github.com/formloom/formloom/internal/tasks"
	"github.com/formloom/formloom/internal/testutil"
	"github.com/formloom/formloom/internal/webhooks"
	"github.com/formloom/formloom/pkg/crypto"
)

// captureMailer records sent messages instead of delivering them.
type captureMailer struct {
	mu       sync.Mutex
	to       []string
	subjects []string
	bodies   []string
}

func (m *captureMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.to = append(m.to, to)
	m.subjects = append(m.subjects, subject)
	m.bodies = append(m.bodies, body)
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.to)
}

func newTestHandler(t *testing.T, db *gorm.DB) (*tasks.Handler, *captureMailer, *webhooks.Service) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	encryptor, err := crypto.NewEncryptor(key)
	require.NoError(t, err)

	mailer := &captureMailer{}
	webhookSvc := webhooks.NewService(db, encryptor)
	handler := tasks.NewHandler(db, testutil.SilentLogger(), mailer, webhookSvc, "https://app.example.com", 30*24*time.Hour)
	return handler, mailer, webhookSvc
}

func TestNewHandler(t *testing.T) {
	setup := testutil.NewTestContext(t)

	handler, _, _ := newTestHandler(t, setup.DB)

	assert.NotNil(t, handler)
	assert.NotNil(t, handler.DB())
	assert.NotNil(t, handler.Logger())
	assert.NotNil(t, handler.Mailer())
	assert.NotNil(t, handler.Webhooks())
	assert.NotNil(t, handler.Client())
}

func TestRegisterHandlers(t *testing.T) {
	setup := testutil.NewTestContext(t)

	handler, _, _ := newTestHandler(t, setup.DB)

	mux := asynq.NewServeMux()
	assert.NotPanics(t, func() {
		handler.RegisterHandlers(mux)
	})
}

func TestHandleEmailVerification(t *testing.T) {
	setup := testutil.NewTestContext(t)

	handler, mailer, _ := newTestHandler(t, setup.DB)

	task, err := tasks.NewEmailVerificationTask(tasks.EmailVerificationPayload{
		UserID: setup.User.ID,
		Email:  "ada@example.com",
		Name:   "Ada",
		Token:  "tok-123",
	})
	require.NoError(t, err)

	err = handler.HandleEmailVerification(context.Background(), task)
	require.NoError(t, err)

	require.Equal(t, 1, mailer.count())
	assert.Equal(t, "ada@example.com", mailer.to[0])
	assert.Contains(t, mailer.bodies[0], "https://app.example.com/verify-email?token=tok-123")
	assert.Contains(t, mailer.bodies[0], "Ada")
}

func TestHandleEmailVerification_InvalidPayload(t *testing.T) {
	setup := testutil.NewTestContext(t)

	handler, _, _ := newTestHandler(t, setup.DB)

	task := asynq.NewTask(tasks.TypeEmailVerification, []byte("invalid json"))

	err := handler.HandleEmailVerification(context.Background(), task)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal payload")
}

func TestHandleEmailPasswordReset(t *testing.T) {
	setup := testutil.NewTestContext(t)

	handler, mailer, _ := newTestHandler(t, setup.DB)

	task, err := tasks.NewEmailPasswordResetTask(tasks.EmailPasswordResetPayload{
		UserID: setup.User.ID,
		Email:  "ada@example.com",
		Name:   "Ada",
		Token:  "tok-456",
	})
	require.NoError(t, err)

	err = handler.HandleEmailPasswordReset(context.Background(), task)
	require.NoError(t, err)

	require.Equal(t, 1, mailer.count())
	assert.Contains(t, mailer.bodies[0], "https://app.example.com/reset-password?token=tok-456")
}

func TestHandleEmailSubmissionNotice(t *testing.T) {
	setup := testutil.NewTestContext(t)

	handler, mailer, _ := newTestHandler(t, setup.DB)

	form := testutil.CreateTestForm(t, setup.DB, setup.Workspace.ID, models.FormStatusPublished)
	form.NotifyEmail = "owner@example.com"
	require.NoError(t, setup.DB.Save(form).Error)
	submission := testutil.CreateTestSubmission(t, setup.DB, form.ID, time.Now().UnixMilli())

	task, err := tasks.NewEmailSubmissionNoticeTask(tasks.EmailSubmissionNoticePayload{
		FormID:       form.ID,
		SubmissionID: submission.ID,
	})
	require.NoError(t, err)

	err = handler.HandleEmailSubmissionNotice(context.Background(), task)
	require.NoError(t, err)

	require.Equal(t, 1, mailer.count())
	assert.Equal(t, "owner@example.com", mailer.to[0])
	assert.Contains(t, mailer.subjects[0], form.Title)
}

func TestHandleEmailSubmissionNotice_NoNotifyEmail(t *testing.T) {
	setup := testutil.NewTestContext(t)

	handler, mailer, _ := newTestHandler(t, setup.DB)

	form := testutil.CreateTestForm(t, setup.DB, setup.Workspace.ID, models.FormStatusPublished)
	submission := testutil.CreateTestSubmission(t, setup.DB, form.ID, time.Now().UnixMilli())

	task, err := tasks.NewEmailSubmissionNoticeTask(tasks.EmailSubmissionNoticePayload{
		FormID:       form.ID,
		SubmissionID: submission.ID,
	})
	require.NoError(t, err)

	err = handler.HandleEmailSubmissionNotice(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 0, mailer.count())
}

func TestHandleEmailSubmissionNotice_DeletedForm(t *testing.T) {
	setup := testutil.NewTestContext(t)

	handler, mailer, _ := newTestHandler(t, setup.DB)

	// Task references a form that no longer exists; the notice is
	// silently dropped rather than retried forever.
	task, err := tasks.NewEmailSubmissionNoticeTask(tasks.EmailSubmissionNoticePayload{
		FormID:       uuid.New(),
		SubmissionID: uuid.New(),
	})
	require.NoError(t, err)

	err = handler.HandleEmailSubmissionNotice(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 0, mailer.count())
}

func TestHandleWebhookDeliver(t *testing.T) {
	setup := testutil.NewTestContext(t)

	handler, _, webhookSvc := newTestHandler(t, setup.DB)

	var (
		gotSignature   string
		gotContentType string
		gotEvent       string
		gotBody        []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(webhooks.SignatureHeader)
		gotContentType = r.Header.Get("Content-Type")
		gotEvent = r.Header.Get("X-Formloom-Event")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	form := testutil.CreateTestForm(t, setup.DB, setup.Workspace.ID, models.FormStatusPublished)
	submission := testutil.CreateTestSubmission(t, setup.DB, form.ID, time.Now().UnixMilli())
	hook, secret, err := webhookSvc.Create(context.Background(), setup.Workspace.ID, form.ID, server.URL)
	require.NoError(t, err)

	task, err := tasks.NewWebhookDeliverTask(tasks.WebhookDeliverPayload{
		WebhookID:    hook.ID,
		SubmissionID: submission.ID,
	})
	require.NoError(t, err)

	err = handler.HandleWebhookDeliver(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "submission.created", gotEvent)
	assert.True(t, webhooks.VerifySignature(secret, gotBody, gotSignature),
		"delivery body must verify against the signing secret")

	var envelope struct {
		Event      string `json:"event"`
		FormID     string `json:"form_id"`
		Submission struct {
			ID      string          `json:"id"`
			Payload json.RawMessage `json:"payload"`
		} `json:"submission"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &envelope))
	assert.Equal(t, "submission.created", envelope.Event)
	assert.Equal(t, form.ID.String(), envelope.FormID)
	assert.Equal(t, submission.ID.String(), envelope.Submission.ID)
	assert.Contains(t, string(envelope.Submission.Payload), "ada@example.com")

	// Delivery bookkeeping reflects the successful attempt.
	var updated models.Webhook
	require.NoError(t, setup.DB.First(&updated, hook.ID).Error)
	assert.Equal(t, 200, updated.LastStatus)
	assert.Equal(t, 0, updated.FailureCount)
	assert.NotNil(t, updated.LastAttemptAt)
}

func TestHandleWebhookDeliver_ServerError(t *testing.T) {
	setup := testutil.NewTestContext(t)

	handler, _, webhookSvc := newTestHandler(t, setup.DB)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	form := testutil.CreateTestForm(t, setup.DB, setup.Workspace.ID, models.FormStatusPublished)
	submission := testutil.CreateTestSubmission(t, setup.DB, form.ID, time.Now().UnixMilli())
	hook, _, err := webhookSvc.Create(context.Background(), setup.Workspace.ID, form.ID, server.URL)
	require.NoError(t, err)

	task, err := tasks.NewWebhookDeliverTask(tasks.WebhookDeliverPayload{
		WebhookID:    hook.ID,
		SubmissionID: submission.ID,
	})
	require.NoError(t, err)

	// A non-2xx answer surfaces as an error so asynq retries.
	err = handler.HandleWebhookDeliver(context.Background(), task)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	var updated models.Webhook
	require.NoError(t, setup.DB.First(&updated, hook.ID).Error)
	assert.Equal(t, 500, updated.LastStatus)
	assert.Equal(t, 1, updated.FailureCount)
}

func TestHandleWebhookDeliver_InactiveWebhook(t *testing.T) {
	setup := testutil.NewTestContext(t)

	handler, _, webhookSvc := newTestHandler(t, setup.DB)

	delivered := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	form := testutil.CreateTestForm(t, setup.DB, setup.Workspace.ID, models.FormStatusPublished)
	submission := testutil.CreateTestSubmission(t, setup.DB, form.ID, time.Now().UnixMilli())
	hook, _, err := webhookSvc.Create(context.Background(), setup.Workspace.ID, form.ID, server.URL)
	require.NoError(t, err)

	disabled := false
	_, err = webhookSvc.Update(context.Background(), setup.Workspace.ID, form.ID, hook.ID, webhooks.UpdateInput{IsActive: &disabled})
	require.NoError(t, err)

	task, err := tasks.NewWebhookDeliverTask(tasks.WebhookDeliverPayload{
		WebhookID:    hook.ID,
		SubmissionID: submission.ID,
	})
	require.NoError(t, err)

	err = handler.HandleWebhookDeliver(context.Background(), task)
	require.NoError(t, err)
	assert.False(t, delivered, "inactive webhooks must not receive deliveries")
}

func TestHandleWebhookDeliver_DeletedWebhook(t *testing.T) {
	setup := testutil.NewTestContext(t)

	handler, _, _ := newTestHandler(t, setup.DB)

	task, err := tasks.NewWebhookDeliverTask(tasks.WebhookDeliverPayload{
		WebhookID:    uuid.New(),
		SubmissionID: uuid.New(),
	})
	require.NoError(t, err)

	err = handler.HandleWebhookDeliver(context.Background(), task)
	assert.NoError(t, err)
}

func TestHandleCleanupSweep(t *testing.T) {
	setup := testutil.NewTestContext(t)

	handler, _, webhookSvc := newTestHandler(t, setup.DB)

	// A form deleted well past the retention window, with a submission
	// and a webhook attached.
	expired := testutil.CreateTestForm(t, setup.DB, setup.Workspace.ID, models.FormStatusArchived)
	expiredSub := testutil.CreateTestSubmission(t, setup.DB, expired.ID, time.Now().UnixMilli())
	expiredHook, _, err := webhookSvc.Create(context.Background(), setup.Workspace.ID, expired.ID, "https://hooks.example.com/a")
	require.NoError(t, err)

	// A form deleted only just now stays until retention elapses.
	recent := testutil.CreateTestForm(t, setup.DB, setup.Workspace.ID, models.FormStatusArchived)
	recentSub := testutil.CreateTestSubmission(t, setup.DB, recent.ID, time.Now().UnixMilli())

	require.NoError(t, setup.DB.Delete(expired).Error)
	require.NoError(t, setup.DB.Delete(recent).Error)

	// Backdate the first deletion past the retention cutoff.
	past := time.Now().Add(-60 * 24 * time.Hour)
	require.NoError(t, setup.DB.Model(&models.Form{}).
		Unscoped().
		Where("id = ?", expired.ID).
		Update("deleted_at", past).Error)

	task, err := tasks.NewCleanupSweepTask()
	require.NoError(t, err)

	err = handler.HandleCleanupSweep(context.Background(), task)
	require.NoError(t, err)

	// Expired form and its children are gone for good.
	var count int64
	require.NoError(t, setup.DB.Unscoped().Model(&models.Form{}).Where("id = ?", expired.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count, "expired form should be hard-deleted")

	require.NoError(t, setup.DB.Model(&models.Submission{}).Where("id = ?", expiredSub.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count, "expired form submissions should be purged")

	require.NoError(t, setup.DB.Unscoped().Model(&models.Webhook{}).Where("id = ?", expiredHook.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count, "expired form webhooks should be purged")

	// The recent soft-delete is untouched.
	require.NoError(t, setup.DB.Unscoped().Model(&models.Form{}).Where("id = ?", recent.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count, "recently deleted form should survive the sweep")

	require.NoError(t, setup.DB.Model(&models.Submission{}).Where("id = ?", recentSub.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
