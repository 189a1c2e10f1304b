package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/formloom/formloom/pkg/queue"
)

// Enqueuer is the slice of asynq.Client that services need. Keeping it
// an interface lets tests run without Redis.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

var _ Enqueuer = (*asynq.Client)(nil)

// Task type names
const (
	TypeEmailVerification     = "email:verification"
	TypeEmailPasswordReset    = "email:password_reset"
	TypeEmailSubmissionNotice = "email:submission_notice"
	TypeWebhookDeliver        = "webhook:deliver"
	TypeCleanupSweep          = "cleanup:sweep"
)

// EmailVerificationPayload asks the worker to send a verify-your-email
// mail carrying the one-time token link.
type EmailVerificationPayload struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Token  string    `json:"token"`
}

func NewEmailVerificationTask(payload EmailVerificationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEmailVerification, data, asynq.Queue(queue.QueueCritical)), nil
}

// EmailPasswordResetPayload asks the worker to send a password-reset mail.
type EmailPasswordResetPayload struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Token  string    `json:"token"`
}

func NewEmailPasswordResetTask(payload EmailPasswordResetPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEmailPasswordReset, data, asynq.Queue(queue.QueueCritical)), nil
}

// EmailSubmissionNoticePayload notifies a form owner about a new
// submission when the form has a notify address configured.
type EmailSubmissionNoticePayload struct {
	FormID       uuid.UUID `json:"form_id"`
	SubmissionID uuid.UUID `json:"submission_id"`
}

func NewEmailSubmissionNoticeTask(payload EmailSubmissionNoticePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEmailSubmissionNotice, data), nil
}

// WebhookDeliverPayload delivers one submission to one webhook endpoint.
// Retries are handled by asynq, so the payload carries ids only.
type WebhookDeliverPayload struct {
	WebhookID    uuid.UUID `json:"webhook_id"`
	SubmissionID uuid.UUID `json:"submission_id"`
}

func NewWebhookDeliverTask(payload WebhookDeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeWebhookDeliver, data, asynq.MaxRetry(5)), nil
}

// CleanupSweepPayload triggers a retention sweep. Empty for now; the
// worker reads retention settings from config.
type CleanupSweepPayload struct{}

func NewCleanupSweepTask() (*asynq.Task, error) {
	data, err := json.Marshal(CleanupSweepPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCleanupSweep, data, asynq.Queue(queue.QueueLow)), nil
}
