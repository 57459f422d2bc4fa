package security

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	// AdminSubject is the only subject a session token may carry.
	AdminSubject = "admin"

	// DefaultSessionTTL is how long an issued admin session stays valid.
	DefaultSessionTTL = 7 * 24 * time.Hour
)

var (
	ErrInvalidSession = errors.New("invalid session token")
	ErrSessionExpired = errors.New("session token expired")
)

// SessionPayload is the signed body of an admin session token.
type SessionPayload struct {
	Subject   string `json:"sub"`
	ExpiresAt int64  `json:"exp"`
}

// Expiry returns the payload expiry in UTC.
func (p *SessionPayload) Expiry() time.Time {
	return time.Unix(p.ExpiresAt, 0).UTC()
}

// SessionTokens issues and verifies stateless admin session tokens of the
// form base64url(json) + "." + base64url(hmac).
type SessionTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// SessionOption customizes a SessionTokens service.
type SessionOption func(*SessionTokens)

// WithSessionTTL overrides DefaultSessionTTL.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionTokens) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSessionClock replaces the wall clock, used by tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionTokens) {
		s.now = now
	}
}

// NewSessionTokens creates a session token service keyed by secret.
func NewSessionTokens(secret string, opts ...SessionOption) *SessionTokens {
	s := &SessionTokens{
		secret: []byte(secret),
		ttl:    DefaultSessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the lifetime of issued tokens.
func (s *SessionTokens) TTL() time.Duration {
	return s.ttl
}

// Issue creates a new admin session token expiring after the configured TTL.
func (s *SessionTokens) Issue() (string, error) {
	payload := SessionPayload{
		Subject:   AdminSubject,
		ExpiresAt: s.now().Add(s.ttl).Unix(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session payload: %w", err)
	}

	encoded := Encode(body)
	return encoded + "." + Sign(s.secret, encoded), nil
}

// Verify checks the token signature and claims. It never panics on
// malformed input; every failure is reported as ErrInvalidSession or
// ErrSessionExpired.
func (s *SessionTokens) Verify(token string) (*SessionPayload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrInvalidSession
	}

	if !Equal(Sign(s.secret, parts[0]), parts[1]) {
		return nil, ErrInvalidSession
	}

	body, err := Decode(parts[0])
	if err != nil {
		return nil, ErrInvalidSession
	}

	var claims struct {
		Subject   string `json:"sub"`
		ExpiresAt *int64 `json:"exp"`
	}
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, ErrInvalidSession
	}

	if claims.Subject != AdminSubject || claims.ExpiresAt == nil {
		return nil, ErrInvalidSession
	}
	if *claims.ExpiresAt <= s.now().Unix() {
		return nil, ErrSessionExpired
	}

	return &SessionPayload{Subject: claims.Subject, ExpiresAt: *claims.ExpiresAt}, nil
}

// SetCookie writes the HTTP-only session cookie.
func (s *SessionTokens) SetCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (s *SessionTokens) ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
