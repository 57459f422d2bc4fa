package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"studio-site/internal/apierror"
	"studio-site/internal/domain"
	"studio-site/internal/middleware"
	"studio-site/internal/observability"
	"studio-site/internal/security"
	"studio-site/internal/service"
)

// AuthHandler serves CSRF token issuance and the admin session endpoints.
type AuthHandler struct {
	auth     *service.AuthService
	sessions *security.SessionTokens
	csrf     *security.CSRFTokens
	secure   bool
	devMode  bool
}

// NewAuthHandler builds an AuthHandler. secure marks cookies Secure.
func NewAuthHandler(auth *service.AuthService, sessions *security.SessionTokens, csrf *security.CSRFTokens, secure, devMode bool) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		sessions: sessions,
		csrf:     csrf,
		secure:   secure,
		devMode:  devMode,
	}
}

type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

type LoginResponse struct {
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CSRFToken issues a token bound to the caller's current session, sets it as
// a cookie and returns it for use in the X-CSRF-Token header.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token := h.csrf.IssueForRequest(r)
	h.csrf.SetCookie(w, token, h.secure)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, CSRFTokenResponse{CSRFToken: token})
}

// Login exchanges admin credentials for a session cookie. The CSRF token is
// rotated so that it is bound to the new session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierror.Write(w, err, h.devMode)
		return
	}

	token, err := h.auth.Login(r.Context(), req)
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			outcome = "invalid"
		case errors.Is(err, domain.ErrInvalidCredentials):
			outcome = "failure"
			observability.AuthFailuresTotal.WithLabelValues("bad_credentials").Inc()
			observability.SecurityEvent(r.Context(), "login_failed", "bad_credentials",
				slog.String("username", req.Username))
		}
		observability.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
		apierror.Write(w, err, h.devMode)
		return
	}

	session, err := h.auth.Validate(token)
	if err != nil {
		apierror.Write(w, apierror.Internal(err), h.devMode)
		return
	}

	csrfToken := h.csrf.IssueForSessionToken(token)
	h.sessions.SetCookie(w, token, h.secure)
	h.csrf.SetCookie(w, csrfToken, h.secure)

	observability.LoginAttemptsTotal.WithLabelValues("success").Inc()
	observability.FromContext(r.Context()).Info("admin logged in")

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, LoginResponse{
		CSRFToken: csrfToken,
		ExpiresAt: session.Expiry().UTC(),
	})
}

// Logout clears the session and CSRF cookies. Tokens are stateless, so
// there is nothing to revoke server side.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w, h.secure)
	h.csrf.ClearCookie(w, h.secure)
	observability.FromContext(r.Context()).Info("admin logged out")
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the verified session of the request.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		apierror.Write(w, apierror.Unauthorized("Not authenticated"), h.devMode)
		return
	}

	writeJSON(w, http.StatusOK, domain.AdminSession{
		Subject:   session.Subject,
		ExpiresAt: session.Expiry().UTC(),
	})
}
