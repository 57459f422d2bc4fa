//go:build e2e

package e2e

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-site/internal/security"
)

func TestAuth_SessionWorksAcrossReplicas(t *testing.T) {
	admin := newClient(t)
	admin.login(replicaA)

	require.NotEmpty(t, admin.cookie(replicaA, security.SessionCookieName))
	assert.Equal(t, admin.csrf, admin.cookie(replicaA, security.CSRFCookieName))

	resp := admin.do(replicaB, http.MethodGet, "/api/v1/auth/me", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[map[string]any](t, resp)
	assert.Equal(t, security.AdminSubject, me["subject"])

	resp = admin.do(replicaB, http.MethodPost, "/api/v1/auth/logout", nil, true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = admin.do(replicaA, http.MethodGet, "/api/v1/auth/me", nil, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_LogoutRequiresCSRF(t *testing.T) {
	admin := newClient(t)
	admin.login(replicaA)

	resp := admin.do(replicaA, http.MethodPost, "/api/v1/auth/logout", nil, false)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = admin.do(replicaA, http.MethodGet, "/api/v1/auth/me", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_WrongPassword(t *testing.T) {
	c := newClient(t)

	resp := c.loginAttempt(replicaA, "not-the-password")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, c.cookie(replicaA, security.SessionCookieName))
}
