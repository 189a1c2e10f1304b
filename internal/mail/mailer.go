// Package mail sends transactional email. Without SMTP configuration it
// degrades to logging the mail, which keeps development and CI working
// offline.
package mail

import (
	"context"
	"fmt"
	"log/slog"

	gomail "github.com/wneessen/go-mail"

	"github.com/formloom/formloom/pkg/config"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// New picks the SMTP mailer when a host is configured, the log mailer
// otherwise.
func New(cfg *config.SMTPConfig, log *slog.Logger) Mailer {
	if cfg.Configured() {
		return &SMTPMailer{cfg: cfg}
	}
	log.Warn("SMTP not configured, outgoing mail will only be logged")
	return &LogMailer{log: log}
}

type SMTPMailer struct {
	cfg *config.SMTPConfig
}

var _ Mailer = (*SMTPMailer)(nil)

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("setting from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}

	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}

// LogMailer writes mail to the log instead of the wire.
type LogMailer struct {
	log *slog.Logger
}

var _ Mailer = (*LogMailer)(nil)

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.log.Info("mail (not sent, SMTP unconfigured)", "to", to, "subject", subject, "body", body)
	return nil
}
