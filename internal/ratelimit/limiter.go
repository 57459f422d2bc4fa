package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"studio-site/internal/observability"
)

const (
	defaultProbeAttempts  = 3
	defaultProbeBackoff   = 200 * time.Millisecond
	defaultCommandTimeout = time.Second
)

// Options configures New. A nil Redis client selects the memory backend.
type Options struct {
	Redis          redis.UniversalClient
	ProbeAttempts  int
	ProbeBackoff   time.Duration
	CommandTimeout time.Duration
}

// Limiter picks its backend once at construction. After the first Redis
// failure it answers from memory for the rest of the process lifetime.
type Limiter struct {
	external Backend
	client   redis.UniversalClient
	memory   *MemoryBackend
	degraded atomic.Bool
	timeout  time.Duration
	errLog   rate.Sometimes
}

// New probes opts.Redis with up to ProbeAttempts pings. An unreachable store
// is not an error: the limiter starts on the memory backend instead.
func New(ctx context.Context, opts Options) *Limiter {
	if opts.ProbeAttempts <= 0 {
		opts.ProbeAttempts = defaultProbeAttempts
	}
	if opts.ProbeBackoff <= 0 {
		opts.ProbeBackoff = defaultProbeBackoff
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}

	l := &Limiter{
		memory:  NewMemoryBackend(ctx),
		timeout: opts.CommandTimeout,
		errLog:  rate.Sometimes{Interval: 30 * time.Second},
	}

	if opts.Redis == nil {
		slog.Info("rate limiter using in-memory backend", "reason", "redis not configured")
		observability.RateLimitExternalActive.Set(0)
		return l
	}

	if err := probe(ctx, opts.Redis, opts.ProbeAttempts, opts.ProbeBackoff); err != nil {
		slog.Warn("rate limiter using in-memory backend", "reason", "redis unreachable", "error", err)
		observability.RateLimitBackendErrorsTotal.Inc()
		observability.RateLimitExternalActive.Set(0)
		return l
	}

	l.external = NewRedisBackend(opts.Redis)
	l.client = opts.Redis
	observability.RateLimitExternalActive.Set(1)
	slog.Info("rate limiter using redis backend")
	return l
}

func probe(ctx context.Context, client redis.UniversalClient, attempts int, backoff time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * backoff):
			}
		}

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			return nil
		}
		slog.Debug("redis probe failed", "attempt", attempt, "error", lastErr)
	}
	return fmt.Errorf("redis ping failed after %d attempts: %w", attempts, lastErr)
}

// Backend names the backend currently answering.
func (l *Limiter) Backend() string {
	if l.external == nil || l.degraded.Load() {
		return BackendMemory
	}
	return l.external.Name()
}

// CheckAndConsume records a request against key. Redis errors never reach the
// caller: they switch the limiter to memory and the request is counted there.
func (l *Limiter) CheckAndConsume(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	if l.external != nil && !l.degraded.Load() {
		cmdCtx, cancel := context.WithTimeout(ctx, l.timeout)
		d, err := l.external.CheckAndConsume(cmdCtx, key, window, limit)
		cancel()
		if err == nil {
			return d, nil
		}
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}
		l.fallback(err)
	}
	return l.memory.CheckAndConsume(ctx, key, window, limit)
}

func (l *Limiter) fallback(err error) {
	observability.RateLimitBackendErrorsTotal.Inc()
	if l.degraded.CompareAndSwap(false, true) {
		observability.RateLimitExternalActive.Set(0)
		slog.Error("redis rate limit backend failed, switching to in-memory", "error", err)
		return
	}
	l.errLog.Do(func() {
		slog.Warn("redis rate limit error after fallback", "error", err)
	})
}

// Allow applies rule to the client of r and records the outcome.
func (l *Limiter) Allow(ctx context.Context, rule Rule, r *http.Request) (Decision, error) {
	d, err := l.CheckAndConsume(ctx, Key(rule, r), rule.Window, rule.Max)
	if err != nil {
		return d, err
	}

	outcome := "allowed"
	if !d.Allowed {
		outcome = "rejected"
		observability.SecurityEvent(ctx, "rate_limited", rule.Name,
			slog.String("backend", d.Backend),
			slog.Duration("retry_after", d.RetryAfter),
		)
	}
	observability.RateLimitDecisionsTotal.WithLabelValues(rule.Name, d.Backend, outcome).Inc()
	return d, nil
}

// Close stops background work. The Redis client belongs to the caller.
func (l *Limiter) Close() {
	l.memory.Stop()
}

// IsDegraded reports whether a Redis failure forced the memory backend.
func (l *Limiter) IsDegraded() bool {
	return l.degraded.Load()
}

// ErrNoExternal is returned by Ping when the limiter runs without Redis.
var ErrNoExternal = errors.New("no external rate limit backend")

// Ping checks the external store, for readiness probes.
func (l *Limiter) Ping(ctx context.Context) error {
	if l.client == nil {
		return ErrNoExternal
	}
	return l.client.Ping(ctx).Err()
}
