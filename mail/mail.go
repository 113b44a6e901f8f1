// Package mail delivers the account verification and password reset links.
//
// [SMTPMailer] sends plain-text mail over SMTP, [LogMailer] writes the links
// to a logger for local development, and [BreakerMailer] wraps either one in
// a circuit breaker so a dead mail relay fails fast instead of stalling
// registrations.
package mail

import (
	"context"
	"net/url"
)

// Mailer sends the two transactional mails.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// Links holds the sender address and the front-end pages that consume the
// tokens.
type Links struct {
	From            string
	VerificationURL string
	ResetURL        string
}

// Message is a composed plain-text mail.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

const (
	verificationSubject = "Verifikasi Email Anda"
	resetSubject        = "Link Reset Password Anda"
)

// VerificationMessage composes the account verification mail.
func VerificationMessage(l Links, to, token string) Message {
	return Message{
		From:    l.From,
		To:      to,
		Subject: verificationSubject,
		Body:    "Klik link berikut untuk verifikasi: " + withToken(l.VerificationURL, token),
	}
}

// ResetMessage composes the password reset mail.
func ResetMessage(l Links, to, token string) Message {
	return Message{
		From:    l.From,
		To:      to,
		Subject: resetSubject,
		Body:    "Klik link berikut untuk reset password: " + withToken(l.ResetURL, token),
	}
}

func withToken(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
