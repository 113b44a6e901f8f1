// Package libauth is the account and session core of the library service:
// registration with email verification, login with per-(email, IP) lockout,
// rotating refresh tokens, logout, password reset and request
// authentication.
//
// An [Engine] is assembled with [New] and [Builder.Build] from a Redis client
// (sessions and rate limits), a [domain.Store] (users, one-time tokens,
// refresh tokens and the audit log) and a [Mailer]. Engine methods are safe
// to call from multiple goroutines.
//
// # Sessions
//
// Access tokens are HS256 JWTs carrying uid, role and sid. A token is only
// accepted by [Engine.Authenticate] while the Redis key SESSION:{uid}:{sid}
// exists, so logout and password reset take effect immediately.
//
// # Errors
//
// Every failure is an [*Error] with a [Kind] and a stable message key.
// Use errors.Is with the kind sentinels, [HTTPStatus] for transports and
// [Message] to render the key in English or Indonesian.
//
// # Audit
//
// Every flow writes one [domain.AuditRecord]. The write outlives the caller's
// context and a failed write never changes the flow's result. With
// Config.Audit.Enabled the same event is also fanned out asynchronously to an
// [AuditSink].
package libauth
