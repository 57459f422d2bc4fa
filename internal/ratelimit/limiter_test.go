package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	calls int
}

func (f *failingBackend) Name() string { return BackendRedis }

func (f *failingBackend) CheckAndConsume(ctx context.Context, _ string, _ time.Duration, _ int) (Decision, error) {
	f.calls++
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	return Decision{}, errors.New("dial tcp: connection refused")
}

func TestNew_WithoutRedisUsesMemory(t *testing.T) {
	l := New(context.Background(), Options{})
	defer l.Close()

	assert.Equal(t, BackendMemory, l.Backend())
	assert.False(t, l.IsDegraded())
	assert.ErrorIs(t, l.Ping(context.Background()), ErrNoExternal)
}

func TestNew_WithReachableRedis(t *testing.T) {
	_, client := newTestRedis(t)

	l := New(context.Background(), Options{Redis: client})
	defer l.Close()

	assert.Equal(t, BackendRedis, l.Backend())
	assert.NoError(t, l.Ping(context.Background()))

	d, err := l.CheckAndConsume(context.Background(), "k", time.Minute, 2)
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, d.Backend)
}

func TestNew_UnreachableRedisFallsBack(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 50 * time.Millisecond,
	})
	defer client.Close()

	start := time.Now()
	l := New(context.Background(), Options{Redis: client, ProbeAttempts: 3, ProbeBackoff: time.Millisecond})
	defer l.Close()

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, BackendMemory, l.Backend())
	assert.ErrorIs(t, l.Ping(context.Background()), ErrNoExternal)

	d, err := l.CheckAndConsume(context.Background(), "k", time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, BackendMemory, d.Backend)
}

func TestLimiter_RuntimeErrorIsStickyFallback(t *testing.T) {
	l := New(context.Background(), Options{})
	defer l.Close()

	failing := &failingBackend{}
	l.external = failing

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		d, err := l.CheckAndConsume(ctx, "k", time.Minute, 2)
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, d.Backend)
		assert.Equal(t, i <= 2, d.Allowed, "request %d", i)
	}

	assert.True(t, l.IsDegraded())
	assert.Equal(t, BackendMemory, l.Backend())
	assert.Equal(t, 1, failing.calls, "external store is not retried after the first failure")
}

func TestLimiter_RedisOutageMidway(t *testing.T) {
	mr, client := newTestRedis(t)

	l := New(context.Background(), Options{Redis: client})
	defer l.Close()

	ctx := context.Background()
	d, err := l.CheckAndConsume(ctx, "k", time.Minute, 5)
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, d.Backend)

	mr.Close()

	d, err = l.CheckAndConsume(ctx, "k", time.Minute, 5)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, BackendMemory, d.Backend)
	assert.True(t, l.IsDegraded())
}

func TestLimiter_CanceledContextDoesNotDegrade(t *testing.T) {
	l := New(context.Background(), Options{})
	defer l.Close()
	l.external = &failingBackend{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.CheckAndConsume(ctx, "k", time.Minute, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, l.IsDegraded())
}

func TestLimiter_AllowKeysByRuleAndClient(t *testing.T) {
	l := New(context.Background(), Options{})
	defer l.Close()

	login := Rule{Name: "login", Window: 15 * time.Minute, Max: 1}
	public := Rule{Name: "public", Window: time.Minute, Max: 1}

	req := func(forwarded string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("X-Forwarded-For", forwarded)
		return r
	}

	ctx := context.Background()
	d, err := l.Allow(ctx, login, req("198.51.100.1"))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, _ = l.Allow(ctx, login, req("198.51.100.1, 10.0.0.1"))
	assert.False(t, d.Allowed, "same first forwarded address shares the bucket")

	d, _ = l.Allow(ctx, login, req("198.51.100.2"))
	assert.True(t, d.Allowed)

	d, _ = l.Allow(ctx, public, req("198.51.100.1"))
	assert.True(t, d.Allowed, "rules do not share buckets")
}

func TestKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "contact:203.0.113.9", Key(Rule{Name: "contact"}, r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = ""
	assert.Equal(t, "contact:unknown", Key(Rule{Name: "contact"}, r))
}
