package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"studio-site/internal/apierror"
	"studio-site/internal/observability"
	"studio-site/internal/ratelimit"
	"studio-site/internal/security"
)

// Policy selects the checks Protect applies to a route.
type Policy struct {
	CSRF      bool
	Admin     bool
	RateLimit *ratelimit.Rule
}

// Gate runs the per-route request checks in a fixed order: CSRF, then the
// admin session, then the rate limit. The first failure ends the request, so
// rejected requests never consume rate limit quota.
type Gate struct {
	sessions *security.SessionTokens
	csrf     *security.CSRFTokens
	limiter  *ratelimit.Limiter
	devMode  bool
}

func NewGate(sessions *security.SessionTokens, csrf *security.CSRFTokens, limiter *ratelimit.Limiter, devMode bool) *Gate {
	return &Gate{
		sessions: sessions,
		csrf:     csrf,
		limiter:  limiter,
		devMode:  devMode,
	}
}

func (g *Gate) Protect(p Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p.CSRF {
				if err := g.csrf.Verify(r); err != nil {
					reason := csrfReason(err)
					observability.CSRFFailuresTotal.WithLabelValues(reason).Inc()
					observability.SecurityEvent(r.Context(), "csrf_rejected", reason,
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path))
					apierror.Write(w, err, g.devMode)
					return
				}
			}

			if p.Admin {
				session, err := g.verifySession(r)
				if err != nil {
					reason := sessionReason(err)
					observability.AuthFailuresTotal.WithLabelValues(reason).Inc()
					observability.SecurityEvent(r.Context(), "session_rejected", reason,
						slog.String("path", r.URL.Path))
					apierror.Write(w, err, g.devMode)
					return
				}
				r = r.WithContext(WithSession(r.Context(), session))
			}

			if p.RateLimit != nil {
				d, err := g.limiter.Allow(r.Context(), *p.RateLimit, r)
				if err != nil {
					apierror.Write(w, apierror.Internal(err), g.devMode)
					return
				}

				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(p.RateLimit.Max))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				if !d.Allowed {
					apierror.Write(w, apierror.RateLimited(d.RetryAfter), g.devMode)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) verifySession(r *http.Request) (*security.SessionPayload, error) {
	cookie, err := r.Cookie(security.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, errMissingSession
	}
	return g.sessions.Verify(cookie.Value)
}

var errMissingSession = apierror.Unauthorized("Not authenticated").Wrap(security.ErrInvalidSession)

func csrfReason(err error) string {
	switch {
	case errors.Is(err, security.ErrCSRFMissing):
		return "missing"
	case errors.Is(err, security.ErrCSRFMismatch):
		return "mismatch"
	case errors.Is(err, security.ErrCSRFExpired):
		return "expired"
	default:
		return "invalid"
	}
}

func sessionReason(err error) string {
	switch {
	case err == errMissingSession:
		return "missing"
	case errors.Is(err, security.ErrSessionExpired):
		return "expired"
	default:
		return "invalid"
	}
}
