package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ansyfirmansyah/libauth"
	"github.com/ansyfirmansyah/libauth/logger"
	"github.com/ansyfirmansyah/libauth/metrics/export/internaldefs"
	"github.com/ansyfirmansyah/libauth/middleware"
	"github.com/ansyfirmansyah/libauth/validation"
)

const maxBodyBytes = 1 << 20

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	engine    *libauth.Engine
	validator *validation.Validator
	logger    *slog.Logger
}

// NewAuthHandler creates the handler.
func NewAuthHandler(engine *libauth.Engine, v *validation.Validator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{engine: engine, validator: v, logger: logger}
}

// --- Request DTOs ---

// Email and password content rules are enforced by the Engine so that the
// response carries its message keys; the tags only reject empty fields.

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=1024"`
}

// --- Response types ---

type userResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

type meResponse struct {
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// --- Handlers ---

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.engine.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{
		Success: true,
		Message: message(r, libauth.KeyRegistrationSuccess),
		Data: userResponse{
			ID:            user.ID.String(),
			Email:         user.Email,
			Role:          string(user.Role),
			EmailVerified: user.EmailVerified,
			CreatedAt:     user.CreatedAt,
		},
	})
}

// VerifyEmail handles GET /auth/verify?token=.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	ok, err := h.engine.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: libauth.KeyVerifyEmailInvalid, Message: message(r, libauth.KeyVerifyEmailInvalid)},
		})
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: message(r, libauth.KeyVerifyEmailSuccess)})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: message(r, libauth.KeyLoginSuccess), Data: pair})
}

// Refresh handles POST /auth/refresh. An Authorization header, when present,
// names the session being replaced.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.engine.Refresh(r.Context(), req.RefreshToken, r.Header.Get("Authorization"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: message(r, libauth.KeyRefreshSuccess), Data: pair})
}

// Logout handles POST /auth/logout behind the Guard.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.writeEngineError(w, r, &libauth.Error{Kind: libauth.KindUnauthorized, Key: libauth.KeyInvalidToken})
		return
	}
	if err := h.engine.Logout(r.Context(), p.UserID.String(), p.SessionID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: message(r, libauth.KeyLogoutSuccess)})
}

// ForgotPassword handles POST /auth/forgot-password. The answer is the same
// whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.engine.ForgotPassword(r.Context(), req.Email); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: message(r, libauth.KeyForgotPasswordSent)})
}

// ResetPassword handles POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.engine.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: message(r, libauth.KeyResetPasswordSuccess)})
}

// Me handles GET /auth/me behind the Guard.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, response{
		Success: true,
		Data: meResponse{
			UserID:    p.UserID.String(),
			Role:      p.Role,
			SessionID: p.SessionID,
			ExpiresAt: p.ExpiresAt,
		},
	})
}

// MetricsSnapshot handles GET /admin/metrics/snapshot for ADMIN principals.
func (h *AuthHandler) MetricsSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := h.engine.MetricsSnapshot()
	counters := make(map[string]uint64, len(internaldefs.CounterDefs)+1)
	for _, def := range internaldefs.CounterDefs {
		counters[def.Name] = snap.Counters[def.ID]
	}
	counters[internaldefs.AuditDroppedName] = h.engine.AuditDropped()
	writeJSON(w, http.StatusOK, response{Success: true, Data: counters})
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: libauth.KeyInvalidRequest, Message: "invalid request body: " + err.Error()},
		})
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		writeValidationError(w, r, err)
		return false
	}
	return true
}

func (h *AuthHandler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := libauth.HTTPStatus(err)
	key := libauth.KeyOf(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "auth request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	if errors.Is(err, libauth.ErrEngineNotReady) {
		status, key = http.StatusServiceUnavailable, libauth.KeyUnavailable
	}
	writeJSON(w, status, response{Error: &errorResponse{Code: key, Message: message(r, key)}})
}
