// Package middleware adapts libauth to net/http.
//
//   - [Guard] authenticates the bearer token and stores the principal.
//   - [RequireRole] restricts a route to given roles.
//   - [ClientContext] forwards client IP and User-Agent to the Engine.
//
// Decisions are delegated to the Engine; this package only maps results to
// status codes and localized messages.
package middleware
