// Package memory holds a process-local DocumentStore used in development
// when no database is configured, and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"studio-site/internal/domain"
)

type entry struct {
	doc domain.Document
	seq uint64
}

// DocumentStore keeps documents in a map guarded by a RWMutex. Returned
// documents are copies.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]*entry
	seq  uint64
	now  func() time.Time
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs: make(map[string]map[string]*entry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func clone(d domain.Document) *domain.Document {
	d.Data = append([]byte(nil), d.Data...)
	return &d
}

func (s *DocumentStore) collection(name string) map[string]*entry {
	c, ok := s.docs[name]
	if !ok {
		c = make(map[string]*entry)
		s.docs[name] = c
	}
	return c
}

func (s *DocumentStore) Create(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(doc.Collection)
	if _, exists := c[doc.ID]; exists {
		return domain.ErrDocumentExists
	}

	now := s.now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	s.seq++
	c[doc.ID] = &entry{doc: *clone(*doc), seq: s.seq}
	return nil
}

func (s *DocumentStore) Get(_ context.Context, collection, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.docs[collection][id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return clone(e.doc), nil
}

// List returns the newest documents first.
func (s *DocumentStore) List(_ context.Context, collection string, limit int) ([]*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*entry, 0, len(s.docs[collection]))
	for _, e := range s.docs[collection] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq > entries[j].seq
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	docs := make([]*domain.Document, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, clone(e.doc))
	}
	return docs, nil
}

func (s *DocumentStore) Update(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[doc.Collection][doc.ID]
	if !ok {
		return domain.ErrDocumentNotFound
	}

	doc.CreatedAt = e.doc.CreatedAt
	doc.UpdatedAt = s.now()
	e.doc = *clone(*doc)
	return nil
}

func (s *DocumentStore) Upsert(ctx context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(doc.Collection)
	now := s.now()
	if e, ok := c[doc.ID]; ok {
		doc.CreatedAt = e.doc.CreatedAt
		doc.UpdatedAt = now
		e.doc = *clone(*doc)
		return nil
	}

	doc.CreatedAt, doc.UpdatedAt = now, now
	s.seq++
	c[doc.ID] = &entry{doc: *clone(*doc), seq: s.seq}
	return nil
}

func (s *DocumentStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[collection][id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(s.docs[collection], id)
	return nil
}

func (s *DocumentStore) Ping(context.Context) error {
	return nil
}
