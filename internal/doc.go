// Package internal holds opaque token helpers shared by the engine flows.
//
// Verification, reset and refresh tokens are 32 random bytes encoded as
// base64url. Only their SHA-256 digest is persisted.
//
// Sub-packages:
//
//   - audit: async event dispatch to JSON, channel and Kafka sinks
//   - httpapi: chi handlers serving the Engine for cmd/libauthd
//   - rate: Redis counters behind login lockout and reset throttling
package internal
