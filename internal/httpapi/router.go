// Package httpapi exposes the Engine over HTTP for the libauthd binary.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ansyfirmansyah/libauth"
	"github.com/ansyfirmansyah/libauth/domain"
	"github.com/ansyfirmansyah/libauth/middleware"
	"github.com/ansyfirmansyah/libauth/validation"
)

// Pinger reports backend reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Deps are the collaborators wired into the router.
type Deps struct {
	Engine    *libauth.Engine
	Validator *validation.Validator
	Ready     []Pinger
	Metrics   http.Handler
	Logger    *slog.Logger
}

// NewRouter registers the /auth routes, probes and the metrics endpoint.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Validator == nil {
		d.Validator = validation.New()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogging(d.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.ClientContext)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, response{Success: true, Message: "ok"})
	})
	r.Get("/health/ready", readiness(d.Ready, d.Logger))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	h := NewAuthHandler(d.Engine, d.Validator, d.Logger)
	guard := middleware.Guard(d.Engine)

	r.Route("/auth", func(r chi.Router) {
		r.With(ContentTypeJSON).Post("/register", h.Register)
		r.Get("/verify", h.VerifyEmail)
		r.With(ContentTypeJSON).Post("/login", h.Login)
		r.With(ContentTypeJSON).Post("/refresh", h.Refresh)
		r.With(ContentTypeJSON).Post("/forgot-password", h.ForgotPassword)
		r.With(ContentTypeJSON).Post("/reset-password", h.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(guard)
			r.Post("/logout", h.Logout)
			r.Get("/me", h.Me)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(guard)
		r.Use(middleware.RequireRole(domain.RoleAdmin))
		r.Get("/metrics/snapshot", h.MetricsSnapshot)
	})

	return r
}

func readiness(checks []Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, c := range checks {
			if _, err := c.Ping(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", slog.Any("error", err))
				writeJSON(w, http.StatusServiceUnavailable, response{
					Error: &errorResponse{Code: libauth.KeyUnavailable, Message: libauth.Message(libauth.KeyUnavailable, r.Header.Get("Accept-Language"))},
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, response{Success: true, Message: "ready"})
	}
}
