package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"studio-site/internal/domain"
	"studio-site/internal/observability"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200

	previewLength = 140
)

// ContentService manages site content, settings and contact messages.
type ContentService struct {
	store  domain.DocumentStore
	events domain.EventPublisher
	now    func() time.Time
}

// NewContentService builds a ContentService. events may be nil, in which
// case contact messages are stored without being published.
func NewContentService(store domain.DocumentStore, events domain.EventPublisher) *ContentService {
	return &ContentService{
		store:  store,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func checkCollection(collection string) error {
	if !domain.IsContentCollection(collection) {
		return fmt.Errorf("%w: %q", domain.ErrUnknownCollection, collection)
	}
	return nil
}

// checkObject requires data to be a JSON object.
func checkObject(data json.RawMessage) error {
	var obj map[string]json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &obj) != nil || obj == nil {
		return fmt.Errorf("%w: document data must be a JSON object", domain.ErrInvalidInput)
	}
	return nil
}

func (s *ContentService) List(ctx context.Context, collection string, limit int) ([]*domain.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	return s.store.List(ctx, collection, normalizeLimit(limit))
}

func (s *ContentService) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, collection, id)
}

func (s *ContentService) Create(ctx context.Context, collection string, data json.RawMessage) (*domain.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkObject(data); err != nil {
		return nil, err
	}

	doc := &domain.Document{
		ID:         uuid.NewString(),
		Collection: collection,
		Data:       data,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, err
	}

	observability.FromContext(ctx).Info("document created", "collection", collection, "id", doc.ID)
	return doc, nil
}

func (s *ContentService) Update(ctx context.Context, collection, id string, data json.RawMessage) (*domain.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkObject(data); err != nil {
		return nil, err
	}

	doc := &domain.Document{ID: id, Collection: collection, Data: data}
	if err := s.store.Update(ctx, doc); err != nil {
		return nil, err
	}

	observability.FromContext(ctx).Info("document updated", "collection", collection, "id", id)
	return doc, nil
}

func (s *ContentService) Delete(ctx context.Context, collection, id string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, collection, id); err != nil {
		return err
	}

	observability.FromContext(ctx).Info("document deleted", "collection", collection, "id", id)
	return nil
}

// GetSettings returns the site settings document, or an empty one if none
// has been saved yet.
func (s *ContentService) GetSettings(ctx context.Context) (*domain.Document, error) {
	doc, err := s.store.Get(ctx, domain.CollectionSettings, domain.SettingsDocumentID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		now := s.now()
		return &domain.Document{
			ID:         domain.SettingsDocumentID,
			Collection: domain.CollectionSettings,
			Data:       json.RawMessage(`{}`),
			CreatedAt:  now,
			UpdatedAt:  now,
		}, nil
	}
	return doc, err
}

func (s *ContentService) UpdateSettings(ctx context.Context, data json.RawMessage) (*domain.Document, error) {
	if err := checkObject(data); err != nil {
		return nil, err
	}

	doc := &domain.Document{
		ID:         domain.SettingsDocumentID,
		Collection: domain.CollectionSettings,
		Data:       data,
	}
	if err := s.store.Upsert(ctx, doc); err != nil {
		return nil, err
	}

	observability.FromContext(ctx).Info("settings updated")
	return doc, nil
}

// ListMessages returns contact messages, newest first.
func (s *ContentService) ListMessages(ctx context.Context, limit int) ([]*domain.Document, error) {
	return s.store.List(ctx, domain.CollectionMessages, normalizeLimit(limit))
}

// SubmitContactMessage validates and stores a contact form submission, then
// publishes a contact.created event. A publish failure is logged and does
// not fail the submission.
func (s *ContentService) SubmitContactMessage(ctx context.Context, msg *domain.ContactMessage) (*domain.Document, error) {
	msg.Name = strings.TrimSpace(msg.Name)
	msg.Email = strings.TrimSpace(msg.Email)
	msg.Subject = strings.TrimSpace(msg.Subject)
	msg.Body = strings.TrimSpace(msg.Body)

	if err := validateStruct(msg); err != nil {
		return nil, err
	}

	msg.ID = uuid.NewString()
	msg.CreatedAt = s.now()

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode contact message: %w", err)
	}

	doc := &domain.Document{
		ID:         msg.ID,
		Collection: domain.CollectionMessages,
		Data:       data,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, err
	}

	observability.ContactMessagesTotal.Inc()
	logger := observability.FromContext(ctx)
	logger.Info("contact message stored", "id", msg.ID)

	if s.events == nil {
		return doc, nil
	}

	event := &domain.ContactMessageEvent{
		Type:      domain.EventContactCreated,
		MessageID: msg.ID,
		Name:      msg.Name,
		Email:     msg.Email,
		Subject:   msg.Subject,
		Preview:   preview(msg.Body),
		CreatedAt: doc.CreatedAt,
	}
	if err := s.events.PublishContactMessage(ctx, event); err != nil {
		logger.Error("failed to publish contact message event", "id", msg.ID, "error", err)
	}

	return doc, nil
}

func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewLength]) + "…"
}
