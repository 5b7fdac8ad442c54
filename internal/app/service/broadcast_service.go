package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/PowerStash/internal/app/model"
	"go.uber.org/zap"
)

const defaultBroadcastDelay = 100 * time.Millisecond

var ErrNoRecipients = errors.New("no users to broadcast to")

// BroadcastResult tallies one broadcast.
type BroadcastResult struct {
	Recipients int
	Success    int
	Failed     int
}

// BroadcastService sends one payload to every active user.
type BroadcastService struct {
	logger     *zap.Logger
	messenger  Messenger
	users      *UserService
	events     EventSink
	delay      time.Duration
	retryDelay time.Duration
	now        Clock
	sleep      Sleeper
}

// BroadcastOptions configures a BroadcastService. Zero values pick the defaults.
type BroadcastOptions struct {
	Delay      time.Duration
	RetryDelay time.Duration
	Events     EventSink
	Now        Clock
	Sleep      Sleeper
}

func NewBroadcastService(logger *zap.Logger, messenger Messenger, users *UserService, opts BroadcastOptions) *BroadcastService {
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = defaultBroadcastDelay
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	return &BroadcastService{
		logger:     logger.With(zap.String("component", "broadcast")),
		messenger:  messenger,
		users:      users,
		events:     opts.Events,
		delay:      delay,
		retryDelay: retryDelay,
		now:        now,
		sleep:      sleep,
	}
}

// Prepare fills in the recipient list of a draft.
func (s *BroadcastService) Prepare(ctx context.Context, draft BroadcastDraft) (BroadcastDraft, error) {
	recipients, err := s.users.Recipients(ctx)
	if err != nil {
		return draft, err
	}
	if len(recipients) == 0 {
		return draft, ErrNoRecipients
	}
	draft.Recipients = recipients
	return draft, nil
}

// Send delivers the draft to each recipient in turn. A failed recipient is
// counted and the loop moves on.
func (s *BroadcastService) Send(ctx context.Context, adminID int64, draft BroadcastDraft) (*BroadcastResult, error) {
	if len(draft.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if draft.MessageID == 0 && draft.Text == "" {
		return nil, fmt.Errorf("send broadcast: empty payload")
	}

	result := &BroadcastResult{Recipients: len(draft.Recipients)}
	policy := RetryPolicy{Attempts: batchItemAttempts, Delay: s.retryDelay, Sleep: s.sleep}

	for i, recipient := range draft.Recipients {
		err := policy.Do(ctx, func(ctx context.Context) error {
			if draft.MessageID != 0 {
				_, err := s.messenger.CopyMessage(ctx, recipient, draft.SourceChatID, draft.MessageID)
				return err
			}
			_, err := s.messenger.SendText(ctx, recipient, draft.Text, nil)
			return err
		})
		if err != nil {
			result.Failed++
			broadcastRecipientsTotal.WithLabelValues("failed").Inc()
			s.logger.Debug("broadcast send failed", zap.Int64("recipient", recipient), zap.Error(err))
		} else {
			result.Success++
			broadcastRecipientsTotal.WithLabelValues("sent").Inc()
		}

		if i < len(draft.Recipients)-1 {
			if err := s.sleep(ctx, s.delay); err != nil {
				result.Failed += len(draft.Recipients) - i - 1
				break
			}
		}
	}

	s.logger.Info("broadcast finished",
		zap.Int64("admin_id", adminID),
		zap.Int("recipients", result.Recipients),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
	)
	emit(ctx, s.events, s.logger, &model.DeliveryEvent{
		Kind:      model.DeliveryKindBroadcast,
		UserID:    adminID,
		Delivered: result.Success,
		Failed:    result.Failed,
		Timestamp: s.now().UTC(),
	})
	return result, nil
}
