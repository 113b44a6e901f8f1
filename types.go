package libauth

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	internalaudit "github.com/ansyfirmansyah/libauth/internal/audit"
)

// TokenPair is returned by Login and Refresh. ExpiresAt is the access token
// expiry; the refresh token lives for Config.Tokens.RefreshTTL.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Principal is the identity behind a verified access token whose session is
// still active.
type Principal struct {
	UserID    uuid.UUID
	Role      string
	SessionID string
	ExpiresAt time.Time
}

// Mailer delivers the verification and password reset links. It is
// satisfied by every implementation in the mail package.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// Validator checks registration and reset input. The validation package
// provides the default implementation.
type Validator interface {
	// Email reports whether the address is syntactically valid.
	Email(email string) bool
	// EmailDomain reports whether the address's domain can receive mail. An
	// error means the answer is unknown.
	EmailDomain(ctx context.Context, email string) (bool, error)
	// Password reports whether the password meets the account policy.
	Password(password string) bool
}

// AuditEvent is the copy of an audit record sent to secondary sinks.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the engine's async dispatcher.
type AuditSink = internalaudit.Sink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON-encoded AuditEvent per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// KafkaSink publishes AuditEvent values to a Kafka topic.
type KafkaSink = internalaudit.KafkaSink

// KafkaSinkConfig configures NewKafkaSink.
type KafkaSinkConfig = internalaudit.KafkaConfig

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewKafkaSink creates a KafkaSink. Close it after the Engine.
func NewKafkaSink(cfg KafkaSinkConfig, logger *slog.Logger) *KafkaSink {
	return internalaudit.NewKafkaSink(cfg, logger)
}

// MultiSink fans every event out to several sinks.
func MultiSink(sinks ...AuditSink) AuditSink {
	return internalaudit.MultiSink(sinks)
}
