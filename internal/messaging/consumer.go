package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"

	"studio-site/internal/domain"
)

// ContactConsumer relays contact.created events from a private, auto-deleted
// queue to a local publisher such as the admin feed hub. Every server
// instance receives every event.
type ContactConsumer struct {
	rmq  *RabbitMQ
	sink domain.EventPublisher
}

func NewContactConsumer(rmq *RabbitMQ, sink domain.EventPublisher) *ContactConsumer {
	return &ContactConsumer{
		rmq:  rmq,
		sink: sink,
	}
}

func (c *ContactConsumer) Start(ctx context.Context) error {
	queue, err := c.rmq.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare feed queue: %w", err)
	}

	if err := c.rmq.channel.QueueBind(
		queue.Name,        // queue name
		ContactRoutingKey, // routing key
		EventsExchange,    // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind feed queue: %w", err)
	}

	msgs, err := c.rmq.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to consume feed queue: %w", err)
	}

	slog.Info("started admin feed consumer",
		slog.String("queue", queue.Name),
		slog.String("exchange", EventsExchange))

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping admin feed consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("admin feed consumer channel closed")
					return
				}
				if err := c.handle(ctx, msg.Body); err != nil {
					slog.Error("failed to relay contact event", slog.String("error", err.Error()))
				}
			}
		}
	}()

	return nil
}

func (c *ContactConsumer) handle(ctx context.Context, body []byte) error {
	event, err := DecodeContactEvent(body)
	if err != nil {
		return err
	}
	return c.sink.PublishContactMessage(ctx, event)
}

// DecodeContactEvent parses a contact.created delivery body.
func DecodeContactEvent(body []byte) (*domain.ContactMessageEvent, error) {
	var event domain.ContactMessageEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode contact event: %w", err)
	}
	if event.Type != domain.EventContactCreated || event.MessageID == "" {
		return nil, fmt.Errorf("unexpected event %q for message %q", event.Type, event.MessageID)
	}
	return &event, nil
}
