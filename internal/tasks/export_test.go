package tasks

import (
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"github.com/formloom/formloom/internal/mail"
	"github.com/formloom/formloom/internal/webhooks"
)

// Accessors for the external test package; handlers_test.go lives
// outside package tasks to avoid an import cycle through testutil.

func (h *Handler) DB() *gorm.DB                { return h.db }
func (h *Handler) Logger() *slog.Logger        { return h.logger }
func (h *Handler) Mailer() mail.Mailer         { return h.mailer }
func (h *Handler) Webhooks() *webhooks.Service { return h.webhooks }
func (h *Handler) Client() *http.Client        { return h.client }
