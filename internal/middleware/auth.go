package middleware

import (
	"context"

	"studio-site/internal/security"
)

type contextKey string

const SessionKey contextKey = "admin_session"

// GetSession returns the admin session verified by Gate.
func GetSession(ctx context.Context) (*security.SessionPayload, bool) {
	session, ok := ctx.Value(SessionKey).(*security.SessionPayload)
	return session, ok
}

func WithSession(ctx context.Context, session *security.SessionPayload) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}
