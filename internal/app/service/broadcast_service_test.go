package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcast_FailureDoesNotAbortLoop(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)

	for i, name := range []string{"A", "B", "C"} {
		_, err := f.users.Register(ctx, int64(100+i), name, "")
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	f.messenger.textFn = func(msg sentText) error {
		if msg.chatID == 101 {
			return errors.New("bot was blocked by the user")
		}
		return nil
	}

	svc := NewBroadcastService(nil, f.messenger, f.users, BroadcastOptions{
		Delay:  100 * time.Millisecond,
		Events: f.sink,
		Now:    f.clock.Now,
		Sleep:  f.sleeps.Sleep,
	})

	draft, err := svc.Prepare(ctx, BroadcastDraft{SourceChatID: adminID, Text: "New files are up"})
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 101, 102}, draft.Recipients)

	res, err := svc.Send(ctx, adminID, draft)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Recipients)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 1, res.Failed)

	require.Len(t, f.messenger.texts, 3)
	for i, chatID := range []int64{100, 101, 102} {
		assert.Equal(t, chatID, f.messenger.texts[i].chatID)
	}
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, f.sleeps.durations())
	assert.Equal(t, []string{model.DeliveryKindBroadcast}, f.sink.kinds())
}

func TestBroadcast_MediaPayloadIsCopied(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)

	svc := NewBroadcastService(nil, f.messenger, f.users, BroadcastOptions{Sleep: f.sleeps.Sleep})
	res, err := svc.Send(ctx, adminID, BroadcastDraft{SourceChatID: adminID, MessageID: 64, Recipients: []int64{7, 8}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	require.Len(t, f.messenger.copies, 2)
	assert.Equal(t, copyCall{to: 8, from: adminID, messageID: 64}, f.messenger.copies[1])
}

func TestBroadcast_NoRecipients(t *testing.T) {
	ctx := context.Background()
	f := newDeliveryFixture(t)

	svc := NewBroadcastService(nil, f.messenger, f.users, BroadcastOptions{})
	_, err := svc.Prepare(ctx, BroadcastDraft{Text: "hello"})
	assert.ErrorIs(t, err, ErrNoRecipients)
}
