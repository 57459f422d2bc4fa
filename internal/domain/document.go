package domain

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrDocumentExists    = errors.New("document already exists")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidInput      = errors.New("invalid input")
)

// Collections managed through the admin API.
const (
	CollectionServices     = "services"
	CollectionProjects     = "projects"
	CollectionTestimonials = "testimonials"
	CollectionMessages     = "messages"
	CollectionSettings     = "settings"
)

// SettingsDocumentID is the id of the single site settings document.
const SettingsDocumentID = "site"

// ContentCollections are editable by admins and readable by the public site.
var ContentCollections = []string{
	CollectionServices,
	CollectionProjects,
	CollectionTestimonials,
}

// IsContentCollection reports whether name is one of ContentCollections.
func IsContentCollection(name string) bool {
	for _, c := range ContentCollections {
		if c == name {
			return true
		}
	}
	return false
}

// Document is a schemaless record stored in a named collection.
type Document struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// DocumentStore is the persistence boundary for site content.
type DocumentStore interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, collection, id string) (*Document, error)
	List(ctx context.Context, collection string, limit int) ([]*Document, error)
	Update(ctx context.Context, doc *Document) error
	Upsert(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
}
