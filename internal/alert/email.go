package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"bizpulse/internal/config"
	"bizpulse/internal/models"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSink mails alerts to the tenant's configured recipients.
type EmailSink struct {
	host     string
	port     int
	username string
	password string
	from     string
	send     sendMailFunc
}

func NewEmailSink(cfg config.SMTPConfig) *EmailSink {
	return &EmailSink{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		send:     smtp.SendMail,
	}
}

func (s *EmailSink) Name() string { return "email" }

// IsConfigured checks if SMTP is properly configured
func (s *EmailSink) IsConfigured() bool {
	return s.host != "" && s.from != ""
}

func (s *EmailSink) SendAlert(ctx context.Context, alert models.SyncAlert) error {
	if len(alert.EmailRecipients) == 0 {
		return nil
	}
	if !s.IsConfigured() {
		return fmt.Errorf("smtp not configured, %d recipients skipped", len(alert.EmailRecipients))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	if err := s.send(addr, auth, s.from, alert.EmailRecipients, s.buildMessage(alert)); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}

func (s *EmailSink) buildMessage(alert models.SyncAlert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(alert.EmailRecipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject(alert))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(plainText(alert), "\n", "\r\n"))
	return []byte(b.String())
}
