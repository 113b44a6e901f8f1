// Package session tracks server-side sessions in Redis.
//
// A session is a single key, SESSION:{userID}:{sessionID}, holding the value
// "active" with a TTL equal to the remaining lifetime of the access token that
// carries the session id. Existence of the key is the only state: deleting it
// revokes every access token issued for the session, even ones whose
// signature and expiry are still valid.
//
// This package does not parse tokens or make authorization decisions; the
// Engine does that and consults [Store.Exists] on every authenticated request.
package session
