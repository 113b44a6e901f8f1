package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig configures an SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Links    Links
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends mail through one SMTP relay. net/smtp negotiates
// STARTTLS when the server offers it.
type SMTPMailer struct {
	addr  string
	auth  smtp.Auth
	links Links
	send  sendFunc
	now   func() time.Time
}

// NewSMTPMailer builds an SMTPMailer. Auth is PLAIN when a username is set.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{
		addr:  net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth:  auth,
		links: cfg.Links,
		send:  smtp.SendMail,
		now:   time.Now,
	}
}

func (m *SMTPMailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	return m.deliver(ctx, VerificationMessage(m.links, to, token))
}

func (m *SMTPMailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	return m.deliver(ctx, ResetMessage(m.links, to, token))
}

func (m *SMTPMailer) deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To, "\r\n") {
		return fmt.Errorf("smtp: invalid recipient %q", msg.To)
	}
	if err := m.send(m.addr, m.auth, msg.From, []string{msg.To}, m.render(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", m.addr, err)
	}
	return nil
}

func (m *SMTPMailer) render(msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + msg.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("Date: " + m.now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
