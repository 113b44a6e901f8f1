package internaldefs

import (
	"github.com/ansyfirmansyah/libauth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   libauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   libauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter fed by Engine.AuditDropped.
const (
	AuditDroppedName = "libauth_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped by the async dispatcher."
)

var CounterDefs = []CounterDef{
	{ID: libauth.MetricRegisterSuccess, Name: "libauth_register_success_total", Help: "Completed registrations."},
	{ID: libauth.MetricRegisterRejected, Name: "libauth_register_rejected_total", Help: "Registrations rejected by email, domain or password checks."},
	{ID: libauth.MetricRegisterRateLimited, Name: "libauth_register_rate_limited_total", Help: "Registrations rejected by the per-IP budget."},
	{ID: libauth.MetricRegisterDuplicate, Name: "libauth_register_duplicate_total", Help: "Registrations rejected as duplicate email."},
	{ID: libauth.MetricVerifyEmailSuccess, Name: "libauth_verify_email_success_total", Help: "Consumed verification tokens."},
	{ID: libauth.MetricVerifyEmailFailure, Name: "libauth_verify_email_failure_total", Help: "Unknown, used or expired verification tokens."},
	{ID: libauth.MetricLoginSuccess, Name: "libauth_login_success_total", Help: "Successful logins."},
	{ID: libauth.MetricLoginFailure, Name: "libauth_login_failure_total", Help: "Logins rejected for credentials or unverified email."},
	{ID: libauth.MetricLoginRateLimited, Name: "libauth_login_rate_limited_total", Help: "Logins rejected by the failure lockout."},
	{ID: libauth.MetricRefreshSuccess, Name: "libauth_refresh_success_total", Help: "Rotated refresh tokens."},
	{ID: libauth.MetricRefreshFailure, Name: "libauth_refresh_failure_total", Help: "Rejected refresh tokens."},
	{ID: libauth.MetricLogout, Name: "libauth_logout_total", Help: "Logout calls."},
	{ID: libauth.MetricPasswordResetRequest, Name: "libauth_password_reset_request_total", Help: "Issued password reset tokens."},
	{ID: libauth.MetricPasswordResetSuppressed, Name: "libauth_password_reset_suppressed_total", Help: "Reset requests silently dropped for rate limit or unknown email."},
	{ID: libauth.MetricPasswordResetConfirmSuccess, Name: "libauth_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: libauth.MetricPasswordResetConfirmFailure, Name: "libauth_password_reset_confirm_failure_total", Help: "Rejected password resets."},
	{ID: libauth.MetricPasswordRehashed, Name: "libauth_password_rehashed_total", Help: "Password hashes upgraded on login."},
	{ID: libauth.MetricPasswordVerify, Name: "libauth_password_verify_total", Help: "Password hash comparisons, dummy comparisons included."},
	{ID: libauth.MetricSessionCreated, Name: "libauth_session_created_total", Help: "Created sessions."},
	{ID: libauth.MetricSessionInvalidated, Name: "libauth_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: libauth.MetricAuthenticateSuccess, Name: "libauth_authenticate_success_total", Help: "Accepted access tokens."},
	{ID: libauth.MetricAuthenticateFailure, Name: "libauth_authenticate_failure_total", Help: "Rejected access tokens."},
	{ID: libauth.MetricRateLimiterUnavailable, Name: "libauth_rate_limiter_unavailable_total", Help: "Rate limiter calls that failed against Redis."},
	{ID: libauth.MetricMailFailure, Name: "libauth_mail_failure_total", Help: "Mail deliveries that failed."},
	{ID: libauth.MetricAuditWriteFailure, Name: "libauth_audit_write_failure_total", Help: "Audit rows that could not be written."},
}

var HistogramDefs = []HistogramDef{
	{ID: libauth.MetricAuthenticateLatency, Name: "libauth_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// HistogramUpperBounds are libauth.LatencyBounds in seconds. The last
// engine bucket is +Inf.
var HistogramUpperBounds = upperBounds()

func upperBounds() []float64 {
	out := make([]float64, len(libauth.LatencyBounds))
	for i, b := range libauth.LatencyBounds {
		out[i] = b.Seconds()
	}
	return out
}

// NormalizeBuckets pads or truncates raw to the engine bucket count.
func NormalizeBuckets(raw []uint64) [libauth.LatencyBucketCount]uint64 {
	var out [libauth.LatencyBucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [libauth.LatencyBucketCount]uint64) [libauth.LatencyBucketCount]uint64 {
	var out [libauth.LatencyBucketCount]uint64
	var running uint64
	for i, n := range raw {
		running += n
		out[i] = running
	}
	return out
}
