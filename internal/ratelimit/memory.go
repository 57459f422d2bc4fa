package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	// Maximum number of buckets to keep in memory
	maxBuckets = 10000
	// Interval between sweeps of elapsed buckets
	cleanupInterval = 5 * time.Minute
)

type bucket struct {
	count   int
	resetAt time.Time
}

// MemoryBackend is a fixed-window counter per key held in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryBackend creates the backend and starts its cleanup loop, which
// runs until ctx is done or Stop is called.
func NewMemoryBackend(ctx context.Context) *MemoryBackend {
	m := newMemoryBackend(time.Now)
	go m.cleanupLoop(ctx)
	return m
}

func newMemoryBackend(now func() time.Time) *MemoryBackend {
	return &MemoryBackend{
		buckets: make(map[string]*bucket),
		now:     now,
		stopCh:  make(chan struct{}),
	}
}

func (m *MemoryBackend) Name() string {
	return BackendMemory
}

// CheckAndConsume never returns an error.
func (m *MemoryBackend) CheckAndConsume(_ context.Context, key string, window time.Duration, limit int) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		m.buckets[key] = &bucket{count: 1, resetAt: now.Add(window)}
		return Decision{Allowed: true, Count: 1, Remaining: remaining(limit, 1), Backend: BackendMemory}, nil
	}

	if b.count < limit {
		b.count++
		return Decision{Allowed: true, Count: b.count, Remaining: remaining(limit, b.count), Backend: BackendMemory}, nil
	}

	return Decision{
		Allowed:    false,
		Count:      b.count,
		RetryAfter: b.resetAt.Sub(now),
		Backend:    BackendMemory,
	}, nil
}

func (m *MemoryBackend) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

// cleanup drops elapsed buckets, then the oldest ones while over maxBuckets.
func (m *MemoryBackend) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, b := range m.buckets {
		if !now.Before(b.resetAt) {
			delete(m.buckets, key)
		}
	}

	if len(m.buckets) <= maxBuckets {
		return
	}

	keys := make([]string, 0, len(m.buckets))
	for k := range m.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return m.buckets[keys[i]].resetAt.Before(m.buckets[keys[j]].resetAt)
	})
	for _, k := range keys[:len(keys)-maxBuckets/2] {
		delete(m.buckets, k)
	}
}

func (m *MemoryBackend) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Stop stops the cleanup goroutine
func (m *MemoryBackend) Stop() {
	m.once.Do(func() { close(m.stopCh) })
}
