package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"studio-site/internal/domain"
)

const (
	TestSecret   = "test-secret-with-at-least-32-characters!"
	TestUsername = "admin"
	TestPassword = "correct-horse-battery-staple"
)

var idCounter atomic.Int64

func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// HashPassword hashes password at the minimum bcrypt cost to keep tests fast.
func HashPassword(t testing.TB, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return string(hash)
}

// NewTestDocument builds a document in collection with the given JSON data.
func NewTestDocument(collection, data string) *domain.Document {
	return &domain.Document{
		ID:         nextID("doc"),
		Collection: collection,
		Data:       []byte(data),
	}
}

// NewTestContactMessage returns a contact message that passes validation.
func NewTestContactMessage(opts ...func(*domain.ContactMessage)) *domain.ContactMessage {
	msg := &domain.ContactMessage{
		Name:    "Ada Lovelace",
		Email:   "ada@example.com",
		Subject: "New project",
		Body:    "We would like a quote for a new website.",
	}
	for _, opt := range opts {
		opt(msg)
	}
	return msg
}
