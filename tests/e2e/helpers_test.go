//go:build e2e

package e2e

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"studio-site/internal/security"
)

var nextClientIP atomic.Uint32

// client is one browser. Cookies ignore ports, so a single jar is shared by
// both replicas the way a load balancer would present them.
type client struct {
	t    *testing.T
	http *http.Client
	ip   string
	csrf string
}

// newClient gives every test its own forwarded address so rate limit
// buckets in the shared Redis never collide between tests.
func newClient(t *testing.T) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	n := nextClientIP.Add(1)
	return &client{
		t:    t,
		http: &http.Client{Jar: jar, Timeout: 10 * time.Second},
		ip:   fmt.Sprintf("198.51.%d.%d", n/250, n%250+1),
	}
}

func (c *client) do(r *replica, method, path string, body any, withCSRF bool) *http.Response {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = strings.NewReader(string(data))
	}

	req, err := http.NewRequest(method, r.server.URL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "e2e-browser/1.0")
	req.Header.Set("X-Forwarded-For", c.ip)
	if withCSRF {
		req.Header.Set(security.CSRFHeaderName, c.csrf)
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c *client) fetchCSRF(r *replica) {
	c.t.Helper()
	resp := c.do(r, http.MethodGet, "/api/v1/auth/csrf", nil, false)
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	c.csrf = decode[map[string]string](c.t, resp)["csrf_token"]
	require.NotEmpty(c.t, c.csrf)
}

func (c *client) loginAttempt(r *replica, password string) *http.Response {
	c.t.Helper()
	return c.do(r, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": adminUsername,
		"password": password,
	}, false)
}

func (c *client) login(r *replica) {
	c.t.Helper()
	resp := c.loginAttempt(r, adminPassword)
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	c.csrf = decode[map[string]string](c.t, resp)["csrf_token"]
	require.NotEmpty(c.t, c.csrf)
}

func (c *client) cookie(r *replica, name string) string {
	u, err := url.Parse(r.server.URL)
	require.NoError(c.t, err)
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// dialFeed opens the admin websocket feed on r with c's session cookie.
func (c *client) dialFeed(r *replica) *gorillaws.Conn {
	c.t.Helper()
	header := http.Header{}
	header.Set("Cookie", security.SessionCookieName+"="+c.cookie(r, security.SessionCookieName))
	header.Set("X-Forwarded-For", c.ip)

	wsURL := "ws" + strings.TrimPrefix(r.server.URL, "http") + "/ws/admin"
	conn, resp, err := gorillaws.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(c.t, err)
	c.t.Cleanup(func() { conn.Close() })
	return conn
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}
