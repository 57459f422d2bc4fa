package main

import (
	"context"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"studio-site/internal/domain"
	"studio-site/internal/messaging"
	"studio-site/internal/notify"
)

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDrop
)

func (o outcome) String() string {
	switch o {
	case outcomeAck:
		return "ack"
	case outcomeRequeue:
		return "requeue"
	default:
		return "drop"
	}
}

type notifier interface {
	Notify(ctx context.Context, event *domain.ContactMessageEvent) error
}

// deliver forwards one queued event and decides how the delivery is settled.
// A message that already failed once is dropped rather than requeued again.
func deliver(ctx context.Context, body []byte, n notifier, redelivered bool) outcome {
	event, err := messaging.DecodeContactEvent(body)
	if err != nil {
		slog.Error("dropping undecodable contact event", slog.String("error", err.Error()))
		return outcomeDrop
	}

	logger := slog.With(slog.String("message_id", event.MessageID))

	err = n.Notify(ctx, event)
	switch {
	case err == nil:
		logger.Info("contact notification delivered")
		return outcomeAck
	case errors.Is(err, notify.ErrRejected):
		logger.Error("webhook rejected contact notification", slog.String("error", err.Error()))
		return outcomeDrop
	case redelivered:
		logger.Error("contact notification failed after redelivery", slog.String("error", err.Error()))
		return outcomeDrop
	default:
		logger.Warn("contact notification failed, requeueing", slog.String("error", err.Error()))
		return outcomeRequeue
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

var _ acknowledger = (*amqp.Delivery)(nil)

func settle(msg acknowledger, o outcome) {
	var err error
	switch o {
	case outcomeAck:
		err = msg.Ack(false)
	case outcomeRequeue:
		err = msg.Nack(false, true)
	default:
		err = msg.Nack(false, false)
	}
	if err != nil {
		slog.Error("failed to settle delivery",
			slog.String("outcome", o.String()),
			slog.String("error", err.Error()))
	}
}
