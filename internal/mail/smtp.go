// Package mail sends transactional email over SMTP.  Without SMTP
// credentials it logs the message instead, which keeps development
// environments working.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/iliyamo/tour-booking/internal/config"
)

// Message is one outgoing email.  HTML is optional.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers through a single SMTP relay with PLAIN auth.
type SMTPSender struct {
	cfg  config.SMTPConfig
	log  *slog.Logger
	send sendFunc
}

func NewSMTPSender(cfg config.SMTPConfig, log *slog.Logger) *SMTPSender {
	if log == nil {
		log = slog.Default()
	}
	return &SMTPSender{cfg: cfg, log: log.With(slog.String("component", "mail")), send: smtp.SendMail}
}

func (s *SMTPSender) configured() bool {
	return s.cfg.Host != "" && s.cfg.Port != "" && s.cfg.Username != "" && s.cfg.Password != ""
}

// safe strips CR/LF so user-supplied values cannot inject headers.
func safe(v string) string {
	return strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(strings.TrimSpace(v))
}

const boundary = "----=_TOUR_BOOKING_BOUNDARY"

// build renders m as a multipart/alternative MIME message.
func build(from string, m Message) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", safe(m.To))
	fmt.Fprintf(&sb, "Subject: %s\r\n", safe(m.Subject))
	sb.WriteString("MIME-Version: 1.0\r\n")
	if m.HTML == "" {
		sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		sb.WriteString(m.Text + "\r\n")
		return []byte(sb.String())
	}
	fmt.Fprintf(&sb, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)
	fmt.Fprintf(&sb, "--%s\r\n", boundary)
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	sb.WriteString(m.Text + "\r\n")
	fmt.Fprintf(&sb, "--%s\r\n", boundary)
	sb.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	sb.WriteString(m.HTML + "\r\n")
	fmt.Fprintf(&sb, "--%s--\r\n", boundary)
	return []byte(sb.String())
}

// Send delivers m, or logs it when SMTP is not configured.
func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	to := safe(m.To)
	if to == "" {
		return fmt.Errorf("mail: empty recipient")
	}
	if !s.configured() {
		s.log.InfoContext(ctx, "[MOCK EMAIL]", slog.String("to", to), slog.String("subject", safe(m.Subject)))
		return nil
	}
	from := fmt.Sprintf("%s <%s>", safe(s.cfg.FromName), s.cfg.Username)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	addr := s.cfg.Host + ":" + s.cfg.Port
	if err := s.send(addr, auth, s.cfg.Username, []string{to}, build(from, m)); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to, err)
	}
	s.log.InfoContext(ctx, "email sent", slog.String("to", to), slog.String("subject", safe(m.Subject)))
	return nil
}
