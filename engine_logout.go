package libauth

import (
	"context"

	"github.com/google/uuid"

	"github.com/ansyfirmansyah/libauth/domain"
)

// Logout closes one session. Closing a session that does not exist is not
// an error. The access token stays syntactically valid until it expires but
// Authenticate rejects it from now on.
func (e *Engine) Logout(ctx context.Context, userID, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	scope := e.beginAudit(ctx, domain.ActivityLogout, "")
	defer scope.end()

	uid, err := uuid.Parse(userID)
	if err != nil {
		scope.fail("malformed_user_id")
		return newError(KindInvalidArgument, KeyInvalidRequest, err)
	}
	scope.setUser(uid)

	if err := e.sessions.Invalidate(ctx, uid.String(), sessionID); err != nil {
		scope.fail("session_unavailable")
		return infraError(err)
	}

	scope.succeed()
	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	return nil
}
