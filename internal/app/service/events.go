package service

import (
	"context"
	"time"

	"github.com/sifan077/PowerStash/internal/app/model"
	"go.uber.org/zap"
)

// EventSink receives delivery audit events. The NATS publisher implements it.
type EventSink interface {
	Publish(ctx context.Context, event *model.DeliveryEvent) error
}

const publishTimeout = 5 * time.Second

// emit publishes without letting a broker problem fail the caller.
func emit(ctx context.Context, sink EventSink, logger *zap.Logger, event *model.DeliveryEvent) {
	if sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := sink.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish delivery event",
			zap.String("kind", event.Kind),
			zap.Uint64("record_id", event.RecordID),
			zap.Error(err),
		)
	}
}
