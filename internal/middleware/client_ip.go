package middleware

import (
	"net/http"

	"studio-site/internal/observability"
	"studio-site/internal/security"
)

// ClientIP stores the resolved client address in the request context so
// every log line for the request carries it.
func ClientIP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := observability.WithClientIP(r.Context(), security.ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
