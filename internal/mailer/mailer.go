package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"loremtype-backend/internal/config"
	"loremtype-backend/internal/util"
)

// Mailer delivers recovery codes. Recipient addresses pass through delivery
// and are never persisted or logged.
type Mailer interface {
	SendRecoveryCode(ctx context.Context, to, username, code string) error
}

type smtpMailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

func NewSMTPMailer(cfg config.SMTPConfig, logger *zap.Logger) Mailer {
	return &smtpMailer{cfg: cfg, logger: logger}
}

func (m *smtpMailer) SendRecoveryCode(ctx context.Context, to, username, code string) error {
	msg := m.buildMessage(to, username, code)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to send recovery email: %w", err)
	}

	m.logger.Info("Recovery email sent", util.String("username", username))
	return nil
}

func (m *smtpMailer) buildMessage(to, username, code string) []byte {
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\n"+
			"Here is your Lorem Type recovery code:\r\n\r\n"+
			"    %s\r\n\r\n"+
			"Keep it somewhere safe. You will need it to reset your credentials "+
			"if you ever forget them.\r\n\r\n"+
			"We do not keep a copy of your email address, so this is the only "+
			"message you will receive from us.\r\n\r\n"+
			"Happy typing,\r\n%s\r\n",
		username, code, m.cfg.FromName,
	)
	headers := fmt.Sprintf(
		"From: %s <%s>\r\nTo: %s\r\nSubject: Your Lorem Type recovery code\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		m.cfg.FromName, m.cfg.From, to,
	)
	return []byte(headers + body)
}

type noopMailer struct{}

// NewNoopMailer returns a mailer that silently drops everything. Used when
// SMTP is not configured.
func NewNoopMailer() Mailer {
	return noopMailer{}
}

func (noopMailer) SendRecoveryCode(ctx context.Context, to, username, code string) error {
	return nil
}
