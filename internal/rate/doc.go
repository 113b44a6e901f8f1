// Package rate implements fixed-window Redis counters for brute-force
// defense.
//
// The window starts at the first failure: INCR and the EXPIRE of the first hit
// run inside one Lua script, so a crash between them cannot leave a counter
// without a TTL. Keys:
//   - RATE_LIMIT:LOGIN_FAIL:{email}:{ip}  failed logins per email and address
//   - RATE_LIMIT:FORGOT_PASSWORD:{email}  reset-mail requests per email
package rate
