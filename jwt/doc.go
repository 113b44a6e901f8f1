// Package jwt issues and verifies compact HS256 access tokens carrying the
// subject id, role and session id. The signing key is fixed when the Codec
// is built and never changes for the life of the process.
package jwt
