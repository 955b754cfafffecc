package verification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/gomail.v2"

	"campus-issue-reporting/pkg/config"
)

// Sender delivers a code to a normalized contact.
type Sender interface {
	Send(ctx context.Context, target, code string, ttl time.Duration) error
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailSender struct {
	from   string
	name   string
	dialer mailDialer
}

func NewEmailSender(cfg config.EmailConfig) *EmailSender {
	return &EmailSender{
		from:   cfg.FromAddress,
		name:   cfg.FromName,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
	}
}

func (s *EmailSender) Send(_ context.Context, target, code string, ttl time.Duration) error {
	minutes := int(ttl.Minutes())

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.name)
	m.SetHeader("To", target)
	m.SetHeader("Subject", "Your verification code")
	m.SetBody("text/plain", fmt.Sprintf(
		"Your verification code is %s.\n\nIt expires in %d minutes. If you did not request it, ignore this email.\n",
		code, minutes))
	m.AddAlternative("text/html", fmt.Sprintf(
		"<p>Your verification code is <strong>%s</strong>.</p><p>It expires in %d minutes. If you did not request it, ignore this email.</p>",
		code, minutes))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

// LogSender writes the code to the log instead of delivering it. Used for channels without
// a configured provider in development.
type LogSender struct {
	log     *slog.Logger
	channel Channel
}

func NewLogSender(log *slog.Logger, ch Channel) *LogSender {
	return &LogSender{log: log, channel: ch}
}

func (s *LogSender) Send(ctx context.Context, target, code string, ttl time.Duration) error {
	s.log.WarnContext(ctx, "no delivery provider configured, verification code logged",
		"channel", s.channel,
		"target", MaskTarget(s.channel, target),
		"code", code,
		"ttl", ttl.String(),
	)
	return nil
}
