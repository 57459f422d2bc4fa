package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCSRFRequest(method, token string, withCookie bool) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/admin/content/services", nil)
	req.RemoteAddr = "203.0.113.7:52100"
	req.Header.Set("User-Agent", "test-agent/1.0")
	if token != "" {
		req.Header.Set(CSRFHeaderName, token)
	}
	if withCookie && token != "" {
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
	}
	return req
}

func TestCSRFTokens_Format(t *testing.T) {
	clock := newClock()
	csrf := NewCSRFTokens(testSecret, WithCSRFClock(clock.Now))

	token := csrf.Issue("session-1")
	ts, sig, ok := strings.Cut(token, ":")
	require.True(t, ok)
	assert.Equal(t, "1772366400000", ts)
	assert.Equal(t, Sign([]byte(testSecret), "session-1:"+ts), sig)
}

func TestCSRFTokens_Verify(t *testing.T) {
	clock := newClock()
	csrf := NewCSRFTokens(testSecret, WithCSRFClock(clock.Now))

	token := csrf.IssueForRequest(newCSRFRequest(http.MethodGet, "", false))

	t.Run("matching_pair_passes", func(t *testing.T) {
		req := newCSRFRequest(http.MethodPost, token, true)
		assert.NoError(t, csrf.Verify(req))
	})

	t.Run("mutating_methods_require_token", func(t *testing.T) {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
			req := newCSRFRequest(method, "", false)
			assert.ErrorIs(t, csrf.Verify(req), ErrCSRFMissing, method)
		}
	})

	t.Run("header_without_cookie_fails", func(t *testing.T) {
		req := newCSRFRequest(http.MethodPost, token, false)
		assert.ErrorIs(t, csrf.Verify(req), ErrCSRFMissing)
	})

	t.Run("cookie_without_header_fails", func(t *testing.T) {
		req := newCSRFRequest(http.MethodPost, "", false)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
		assert.ErrorIs(t, csrf.Verify(req), ErrCSRFMissing)
	})

	t.Run("mismatched_pair_fails", func(t *testing.T) {
		other := csrf.Issue("someone-else")
		req := newCSRFRequest(http.MethodPost, token, false)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: other})
		assert.ErrorIs(t, csrf.Verify(req), ErrCSRFMismatch)
	})

	t.Run("forged_cookie_and_header_fail_signature", func(t *testing.T) {
		forged := "1772366400000:" + Encode([]byte("not-a-real-signature-000000000000"))
		req := newCSRFRequest(http.MethodPost, forged, true)
		assert.ErrorIs(t, csrf.Verify(req), ErrCSRFInvalid)
	})

	t.Run("token_from_other_session_fails", func(t *testing.T) {
		req := newCSRFRequest(http.MethodPost, token, true)
		req.Header.Set("User-Agent", "different-browser/2.0")
		assert.ErrorIs(t, csrf.Verify(req), ErrCSRFInvalid)
	})

	t.Run("malformed_tokens_fail", func(t *testing.T) {
		for _, bad := range []string{"no-colon", ":sig", "123:", "abc:sig"} {
			req := newCSRFRequest(http.MethodPost, bad, true)
			assert.ErrorIs(t, csrf.Verify(req), ErrCSRFInvalid, bad)
		}
	})

	t.Run("different_secret_fails", func(t *testing.T) {
		other := NewCSRFTokens("another-secret", WithCSRFClock(clock.Now))
		req := newCSRFRequest(http.MethodPost, token, true)
		assert.ErrorIs(t, other.Verify(req), ErrCSRFInvalid)
	})
}

func TestCSRFTokens_SafeMethodsPassWithoutToken(t *testing.T) {
	csrf := NewCSRFTokens(testSecret)

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			req := newCSRFRequest(method, "", false)
			assert.NoError(t, csrf.Verify(req))
		})
	}
}

func TestCSRFTokens_MaxAge(t *testing.T) {
	clock := newClock()
	csrf := NewCSRFTokens(testSecret, WithCSRFClock(clock.Now))

	token := csrf.IssueForRequest(newCSRFRequest(http.MethodGet, "", false))

	clock.Advance(DefaultCSRFMaxAge - time.Minute)
	assert.NoError(t, csrf.Verify(newCSRFRequest(http.MethodPost, token, true)))

	clock.Advance(2 * time.Minute)
	assert.ErrorIs(t, csrf.Verify(newCSRFRequest(http.MethodPost, token, true)), ErrCSRFExpired)
}

func TestCSRFTokens_RejectsFutureTimestamps(t *testing.T) {
	clock := newClock()
	issuer := NewCSRFTokens(testSecret, WithCSRFClock(func() time.Time { return clock.Now().Add(time.Hour) }))
	verifier := NewCSRFTokens(testSecret, WithCSRFClock(clock.Now))

	token := issuer.IssueForRequest(newCSRFRequest(http.MethodGet, "", false))
	assert.ErrorIs(t, verifier.Verify(newCSRFRequest(http.MethodPost, token, true)), ErrCSRFExpired)
}

func TestCSRFTokens_SessionID(t *testing.T) {
	csrf := NewCSRFTokens(testSecret)

	t.Run("session_cookie_takes_precedence", func(t *testing.T) {
		a := newCSRFRequest(http.MethodGet, "", false)
		a.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "session-token"})
		b := newCSRFRequest(http.MethodGet, "", false)
		b.RemoteAddr = "198.51.100.1:1000"
		b.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "session-token"})

		assert.Equal(t, csrf.SessionID(a), csrf.SessionID(b))
		assert.NotEqual(t, csrf.SessionID(a), csrf.SessionID(newCSRFRequest(http.MethodGet, "", false)))
	})

	t.Run("fallback_uses_ip_and_user_agent", func(t *testing.T) {
		a := newCSRFRequest(http.MethodGet, "", false)
		b := newCSRFRequest(http.MethodGet, "", false)
		assert.Equal(t, csrf.SessionID(a), csrf.SessionID(b))

		b.Header.Set("User-Agent", "other")
		assert.NotEqual(t, csrf.SessionID(a), csrf.SessionID(b))
	})

	t.Run("custom_session_cookie", func(t *testing.T) {
		custom := NewCSRFTokens(testSecret, WithSessionCookie("sid"))
		a := newCSRFRequest(http.MethodGet, "", false)
		a.AddCookie(&http.Cookie{Name: "sid", Value: "x"})
		assert.Equal(t, hashHex("x"), custom.SessionID(a))
	})

	t.Run("shared_nat_collides", func(t *testing.T) {
		// Two clients behind one proxy with the same browser build share an id.
		a := newCSRFRequest(http.MethodGet, "", false)
		a.Header.Set("X-Forwarded-For", "192.0.2.10")
		b := newCSRFRequest(http.MethodGet, "", false)
		b.RemoteAddr = "10.0.0.99:4000"
		b.Header.Set("X-Forwarded-For", "192.0.2.10")
		assert.Equal(t, csrf.SessionID(a), csrf.SessionID(b))
	})
}

func TestCSRFTokens_IssueForSessionToken(t *testing.T) {
	csrf := NewCSRFTokens(testSecret)

	token := csrf.IssueForSessionToken("new-session")

	req := newCSRFRequest(http.MethodPost, token, true)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "new-session"})
	assert.NoError(t, csrf.Verify(req))

	anonymous := newCSRFRequest(http.MethodPost, token, true)
	assert.ErrorIs(t, csrf.Verify(anonymous), ErrCSRFInvalid)
}

func TestCSRFTokens_Cookies(t *testing.T) {
	csrf := NewCSRFTokens(testSecret)

	w := httptest.NewRecorder()
	csrf.SetCookie(w, "123:abc", true)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, CSRFCookieName, c.Name)
	assert.Equal(t, "123:abc", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 86400, c.MaxAge)
	assert.False(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)

	w = httptest.NewRecorder()
	csrf.ClearCookie(w, false)
	cookies = w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"forwarded_first_entry", "10.0.0.1:1", map[string]string{"X-Forwarded-For": " 198.51.100.4 , 10.0.0.2"}, "198.51.100.4"},
		{"real_ip", "10.0.0.1:1", map[string]string{"X-Real-IP": " 198.51.100.5 "}, "198.51.100.5"},
		{"forwarded_wins_over_real_ip", "10.0.0.1:1", map[string]string{"X-Forwarded-For": "1.1.1.1", "X-Real-IP": "2.2.2.2"}, "1.1.1.1"},
		{"empty_forwarded_entry_falls_through", "10.0.0.1:1", map[string]string{"X-Forwarded-For": " , 3.3.3.3"}, "10.0.0.1"},
		{"remote_addr", "192.0.2.44:8080", nil, "192.0.2.44"},
		{"unknown", "garbage", nil, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
