package libauth

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ansyfirmansyah/libauth/domain"
	internalaudit "github.com/ansyfirmansyah/libauth/internal/audit"
)

// auditScope accumulates one audit record over a flow. end is deferred by
// every flow, so the record is written on success, on business rejection
// and on infrastructure failure alike.
type auditScope struct {
	e      *Engine
	ctx    context.Context
	rec    domain.AuditRecord
	reason string
}

func (e *Engine) beginAudit(ctx context.Context, activity domain.ActivityType, email string) *auditScope {
	s := &auditScope{
		e:   e,
		ctx: ctx,
		rec: domain.AuditRecord{
			ID:           uuid.New(),
			ActivityType: activity,
			IPAddress:    ClientIPFromContext(ctx),
			UserAgent:    UserAgentFromContext(ctx),
		},
	}
	s.setEmail(email)
	return s
}

func (s *auditScope) setUser(id uuid.UUID) {
	s.rec.UserID = &id
}

func (s *auditScope) setEmail(email string) {
	if email == "" {
		s.rec.Email = nil
		return
	}
	s.rec.Email = &email
}

func (s *auditScope) succeed() {
	s.rec.Success = true
	s.reason = ""
}

// fail records why the flow was rejected. The reason only reaches the
// secondary sinks; the relational row carries the success flag.
func (s *auditScope) fail(reason string) {
	s.rec.Success = false
	s.reason = reason
}

// end persists the record. The write survives caller cancellation and is
// bounded by Config.Audit.WriteTimeout. A failed write is logged with the
// full record and never changes the flow's outcome.
func (s *auditScope) end() {
	e := s.e
	s.rec.CreatedAt = e.now()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), e.config.Audit.WriteTimeout)
	defer cancel()

	if err := e.store.Audit().Append(ctx, &s.rec); err != nil {
		e.metricInc(MetricAuditWriteFailure)
		e.logger.ErrorContext(s.ctx, "audit write failed",
			slog.String("activity_type", string(s.rec.ActivityType)),
			slog.String("user_id", s.userID()),
			slog.String("email", s.email()),
			slog.String("ip_address", s.rec.IPAddress),
			slog.String("user_agent", s.rec.UserAgent),
			slog.Bool("success", s.rec.Success),
			slog.Time("created_at", s.rec.CreatedAt),
			slog.Any("error", err),
		)
	}

	e.audit.Emit(ctx, internalaudit.Event{
		Timestamp: s.rec.CreatedAt,
		Activity:  string(s.rec.ActivityType),
		UserID:    s.userID(),
		Email:     s.email(),
		IP:        s.rec.IPAddress,
		UserAgent: s.rec.UserAgent,
		Success:   s.rec.Success,
		Reason:    s.reason,
	})
}

func (s *auditScope) userID() string {
	if s.rec.UserID == nil {
		return ""
	}
	return s.rec.UserID.String()
}

func (s *auditScope) email() string {
	if s.rec.Email == nil {
		return ""
	}
	return *s.rec.Email
}
