package domain

import (
	"context"
	"time"
)

// ContactMessage is a submission from the public contact form.
type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required,max=100"`
	Email     string    `json:"email" validate:"required,email,max=255"`
	Subject   string    `json:"subject,omitempty" validate:"max=200"`
	Body      string    `json:"message" validate:"required,min=10,max=5000"`
	CreatedAt time.Time `json:"created_at"`
}

// ContactMessageEvent is published when a contact message is stored.
type ContactMessageEvent struct {
	Type      string    `json:"type"`
	MessageID string    `json:"message_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject,omitempty"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"created_at"`
}

const EventContactCreated = "contact.created"

// EventPublisher delivers site events to interested consumers.
type EventPublisher interface {
	PublishContactMessage(ctx context.Context, event *ContactMessageEvent) error
}
