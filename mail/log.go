package mail

import (
	"context"
	"log/slog"
)

// LogMailer logs the composed mail instead of sending it. Tokens appear in
// the log, so use it only in development.
type LogMailer struct {
	links  Links
	logger *slog.Logger
}

func NewLogMailer(links Links, logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{links: links, logger: logger}
}

func (m *LogMailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	m.log(ctx, VerificationMessage(m.links, to, token))
	return nil
}

func (m *LogMailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	m.log(ctx, ResetMessage(m.links, to, token))
	return nil
}

func (m *LogMailer) log(ctx context.Context, msg Message) {
	m.logger.InfoContext(ctx, "mail not sent (log mailer)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
}
