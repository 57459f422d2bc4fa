package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	CSRFCookieName    = "csrf_token"
	CSRFHeaderName    = "X-CSRF-Token"
	SessionCookieName = "auth_token"

	// DefaultCSRFMaxAge bounds both the cookie lifetime and the accepted
	// token age.
	DefaultCSRFMaxAge = 24 * time.Hour

	// csrfClockSkew is how far in the future a token timestamp may be.
	csrfClockSkew = time.Minute
)

var (
	ErrCSRFMissing  = errors.New("missing CSRF token")
	ErrCSRFMismatch = errors.New("CSRF header does not match cookie")
	ErrCSRFInvalid  = errors.New("invalid CSRF token")
	ErrCSRFExpired  = errors.New("CSRF token expired")
)

// CSRFTokens issues and verifies session-bound double-submit CSRF tokens.
// A token is "<issuedAtMillis>:<hmac(sessionID:issuedAtMillis)>".
//
// The session id comes from the session cookie when one is present and
// otherwise from a hash of client IP and User-Agent. The fallback is a weak
// binding: clients sharing a NAT and browser build share an id.
type CSRFTokens struct {
	secret        []byte
	maxAge        time.Duration
	sessionCookie string
	now           func() time.Time
}

// CSRFOption customizes a CSRFTokens service.
type CSRFOption func(*CSRFTokens)

// WithCSRFMaxAge overrides DefaultCSRFMaxAge.
func WithCSRFMaxAge(maxAge time.Duration) CSRFOption {
	return func(c *CSRFTokens) {
		if maxAge > 0 {
			c.maxAge = maxAge
		}
	}
}

// WithSessionCookie changes which cookie identifies the session.
func WithSessionCookie(name string) CSRFOption {
	return func(c *CSRFTokens) {
		if name != "" {
			c.sessionCookie = name
		}
	}
}

// WithCSRFClock replaces the wall clock, used by tests.
func WithCSRFClock(now func() time.Time) CSRFOption {
	return func(c *CSRFTokens) {
		c.now = now
	}
}

// NewCSRFTokens creates a CSRF token service keyed by secret.
func NewCSRFTokens(secret string, opts ...CSRFOption) *CSRFTokens {
	c := &CSRFTokens{
		secret:        []byte(secret),
		maxAge:        DefaultCSRFMaxAge,
		sessionCookie: SessionCookieName,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxAge returns the accepted token age.
func (c *CSRFTokens) MaxAge() time.Duration {
	return c.maxAge
}

// SessionID derives the identity a CSRF token is bound to.
func (c *CSRFTokens) SessionID(r *http.Request) string {
	if cookie, err := r.Cookie(c.sessionCookie); err == nil && cookie.Value != "" {
		return hashHex(cookie.Value)
	}
	return hashHex(ClientIP(r) + "|" + r.UserAgent())
}

// Issue creates a token bound to sessionID.
func (c *CSRFTokens) Issue(sessionID string) string {
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	return ts + ":" + Sign(c.secret, sessionID+":"+ts)
}

// IssueForRequest creates a token bound to the session of r.
func (c *CSRFTokens) IssueForRequest(r *http.Request) string {
	return c.Issue(c.SessionID(r))
}

// IssueForSessionToken creates a token bound to a session cookie value that
// has not reached the client yet, as after login.
func (c *CSRFTokens) IssueForSessionToken(sessionToken string) string {
	return c.Issue(hashHex(sessionToken))
}

// SetCookie writes the script-readable CSRF cookie.
func (c *CSRFTokens) SetCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the CSRF cookie.
func (c *CSRFTokens) ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Verify validates the double-submitted token on r. Safe methods always
// pass. A nil error means the request may proceed.
func (c *CSRFTokens) Verify(r *http.Request) error {
	if IsSafeMethod(r.Method) {
		return nil
	}

	header := r.Header.Get(CSRFHeaderName)
	cookie, err := r.Cookie(CSRFCookieName)
	if header == "" || err != nil || cookie.Value == "" {
		return ErrCSRFMissing
	}

	if !Equal(header, cookie.Value) {
		return ErrCSRFMismatch
	}

	return c.verifyToken(c.SessionID(r), header)
}

func (c *CSRFTokens) verifyToken(sessionID, token string) error {
	ts, sig, ok := strings.Cut(token, ":")
	if !ok || ts == "" || sig == "" {
		return ErrCSRFInvalid
	}

	issuedMillis, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrCSRFInvalid
	}

	if !Equal(Sign(c.secret, sessionID+":"+ts), sig) {
		return ErrCSRFInvalid
	}

	issued := time.UnixMilli(issuedMillis)
	now := c.now()
	if now.Sub(issued) > c.maxAge || issued.Sub(now) > csrfClockSkew {
		return ErrCSRFExpired
	}

	return nil
}

// IsSafeMethod reports whether method cannot change server state.
func IsSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then the
// peer address. Forwarded headers are only as trustworthy as the proxy in
// front of the server.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return "unknown"
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
