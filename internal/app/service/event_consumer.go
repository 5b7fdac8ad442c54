package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/repository"
	"go.uber.org/zap"
)

const (
	eventFetchBatch   = 10
	eventFetchMaxWait = 5 * time.Second
)

// EventConsumer consumes delivery events from NATS JetStream and stores
// them as audit rows.
type EventConsumer struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	repo   repository.DeliveryEventRepository
	done   chan struct{}
}

// NewEventConsumer creates a new delivery event consumer
func NewEventConsumer(js nats.JetStreamContext, logger *zap.Logger, repo repository.DeliveryEventRepository) *EventConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventConsumer{
		js:     js,
		logger: logger.With(zap.String("component", "event-consumer")),
		repo:   repo,
		done:   make(chan struct{}),
	}
}

// Start makes sure the stream and durable consumer exist, then consumes
// until ctx is cancelled.
func (c *EventConsumer) Start(ctx context.Context) error {
	// Create stream if not exists
	if _, err := c.js.StreamInfo(model.DeliveryStreamName); err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.DeliveryStreamName,
			Subjects: []string{model.DeliveryStreamSubject},
			MaxBytes: model.DeliveryStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	// Create consumer if not exists
	if _, err := c.js.ConsumerInfo(model.DeliveryStreamName, model.DeliveryConsumerName); err != nil {
		_, err = c.js.AddConsumer(model.DeliveryStreamName, &nats.ConsumerConfig{
			Durable:   model.DeliveryConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.DeliveryStreamSubject, model.DeliveryConsumerName,
		nats.Bind(model.DeliveryStreamName, model.DeliveryConsumerName))
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(ctx, sub)
	return nil
}

// Done is closed once the consume loop has exited.
func (c *EventConsumer) Done() <-chan struct{} {
	return c.done
}

func (c *EventConsumer) consume(ctx context.Context, sub *nats.Subscription) {
	defer close(c.done)
	defer func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			c.logger.Warn("failed to unsubscribe", zap.Error(err))
		}
	}()

	for ctx.Err() == nil {
		msgs, err := sub.Fetch(eventFetchBatch, nats.MaxWait(eventFetchMaxWait))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				c.logger.Info("event consumer stopped", zap.Error(err))
				return
			}
			c.logger.Error("failed to fetch messages", zap.Error(err))
			if SleepContext(ctx, time.Second) != nil {
				return
			}
			continue
		}

		for _, msg := range msgs {
			c.handle(ctx, msg)
		}
	}
	c.logger.Info("event consumer stopped")
}

func (c *EventConsumer) handle(ctx context.Context, msg *nats.Msg) {
	var event model.DeliveryEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logger.Error("failed to unmarshal delivery event", zap.Error(err))
		// A payload that never parses must not be redelivered forever.
		_ = msg.Term()
		return
	}

	if err := c.repo.Create(ctx, &event); err != nil {
		c.logger.Error("failed to store delivery event",
			zap.String("id", event.ID),
			zap.String("kind", event.Kind),
			zap.Error(err))
		_ = msg.Nak()
		return
	}

	c.logger.Debug("delivery event stored",
		zap.String("id", event.ID),
		zap.String("kind", event.Kind),
		zap.Uint64("record_id", event.RecordID),
		zap.Time("timestamp", event.Timestamp),
	)
	_ = msg.Ack()
}
