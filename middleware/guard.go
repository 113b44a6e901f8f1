package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/ansyfirmansyah/libauth"
	"github.com/ansyfirmansyah/libauth/domain"
)

// Authenticator resolves a bearer token. *libauth.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*libauth.Principal, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by Guard.
func PrincipalFromContext(ctx context.Context) (*libauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*libauth.Principal)
	return p, ok && p != nil
}

// WithPrincipal stores p in ctx. Handlers under Guard never need it; it
// exists for tests of protected handlers.
func WithPrincipal(ctx context.Context, p *libauth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Guard rejects requests without a valid bearer token and an active
// session. A session store outage answers 503 instead of 401.
func Guard(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				writeError(w, r, http.StatusUnauthorized, libauth.KeyInvalidToken)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, r, http.StatusUnauthorized, libauth.KeyInvalidToken)
				return
			}

			p, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, r, libauth.HTTPStatus(err), libauth.KeyOf(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole allows the request only when the principal stored by Guard
// holds one of roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, libauth.KeyInvalidToken)
				return
			}
			role, _ := domain.ParseRole(p.Role)
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, http.StatusForbidden, libauth.KeyForbidden)
		})
	}
}

// ClientContext copies the remote IP and User-Agent into the request
// context for the Engine's limits and audit records. Run chi's RealIP (or
// an equivalent) first when behind a proxy.
func ClientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := libauth.WithClientIP(r.Context(), ip)
		ctx = libauth.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, r *http.Request, status int, key string) {
	http.Error(w, libauth.Message(key, r.Header.Get("Accept-Language")), status)
}
