// Package ratelimit throttles requests per key. Counts live in Redis when it
// is configured and reachable, otherwise in process memory.
package ratelimit

import (
	"context"
	"net/http"
	"time"

	"studio-site/internal/security"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Rule is a per-route limit: at most Max requests per Window for each client.
type Rule struct {
	Name   string
	Window time.Duration
	Max    int
}

// Decision is the outcome of one CheckAndConsume call.
type Decision struct {
	Allowed    bool
	Count      int
	Remaining  int
	RetryAfter time.Duration
	Backend    string
}

// Backend records a request against key and reports whether it fits in the window.
type Backend interface {
	CheckAndConsume(ctx context.Context, key string, window time.Duration, limit int) (Decision, error)
	Name() string
}

// Key builds the storage key for rule and the client of r.
func Key(rule Rule, r *http.Request) string {
	return rule.Name + ":" + security.ClientIP(r)
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}
