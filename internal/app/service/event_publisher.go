package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/PowerStash/internal/app/model"
)

// EventPublisher publishes delivery events to NATS JetStream
type EventPublisher struct {
	js nats.JetStreamContext
}

// NewEventPublisher creates a new delivery event publisher
func NewEventPublisher(js nats.JetStreamContext) *EventPublisher {
	return &EventPublisher{js: js}
}

// Publish publishes a delivery event to the stream. ID and Timestamp are
// filled in when missing.
func (p *EventPublisher) Publish(ctx context.Context, event *model.DeliveryEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.DeliveryStreamSubject, data, nats.Context(ctx), nats.MsgId(event.ID))
	return err
}
