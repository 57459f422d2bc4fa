// Package testutil provides shared test utilities, mocks, and fixtures
// for the studio-site packages.
package testutil

import (
	"context"
	"errors"
	"sync"

	"studio-site/internal/domain"
	"studio-site/internal/repository/memory"
)

var ErrMockFailure = errors.New("mock: forced failure")

// MockDocumentStore wraps the in-memory store. Set a *Func field to
// override one operation.
type MockDocumentStore struct {
	*memory.DocumentStore

	CreateFunc func(ctx context.Context, doc *domain.Document) error
	ListFunc   func(ctx context.Context, collection string, limit int) ([]*domain.Document, error)
	PingFunc   func(ctx context.Context) error
}

func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{DocumentStore: memory.NewDocumentStore()}
}

func (m *MockDocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, doc)
	}
	return m.DocumentStore.Create(ctx, doc)
}

func (m *MockDocumentStore) List(ctx context.Context, collection string, limit int) ([]*domain.Document, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, collection, limit)
	}
	return m.DocumentStore.List(ctx, collection, limit)
}

func (m *MockDocumentStore) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return m.DocumentStore.Ping(ctx)
}

// MockEventPublisher records published events.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []*domain.ContactMessageEvent

	PublishErr error
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) PublishContactMessage(_ context.Context, event *domain.ContactMessageEvent) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the events published so far.
func (m *MockEventPublisher) Events() []*domain.ContactMessageEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ContactMessageEvent(nil), m.events...)
}
