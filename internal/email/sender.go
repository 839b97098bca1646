package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/artmarket/marketplace-api/internal/config"
)

// Sender delivers a single message. Callers treat failures as best-effort:
// they log and move on, never failing the operation that triggered the mail.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type smtpSender struct {
	from   string
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg config.SMTPConfig) Sender {
	return &smtpSender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (s *smtpSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
	}
	return nil
}
