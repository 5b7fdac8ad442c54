package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pollStep struct {
	updates []tgbotapi.Update
	err     error
}

// scriptedSource plays back steps, then blocks until the context ends.
type scriptedSource struct {
	mu      sync.Mutex
	steps   []pollStep
	offsets []int
}

func (s *scriptedSource) GetUpdates(ctx context.Context, offset, timeout int) ([]tgbotapi.Update, error) {
	s.mu.Lock()
	s.offsets = append(s.offsets, offset)
	if len(s.steps) > 0 {
		step := s.steps[0]
		s.steps = s.steps[1:]
		s.mu.Unlock()
		return step.updates, step.err
	}
	s.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *scriptedSource) seenOffsets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.offsets...)
}

func messageUpdate(updateID int, userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: updateID,
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: userID},
			Chat: &tgbotapi.Chat{ID: userID, Type: "private"},
			Text: text,
		},
	}
}

func TestPoller_ReconnectBackoffAndOrdering(t *testing.T) {
	source := &scriptedSource{steps: []pollStep{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{updates: []tgbotapi.Update{
			messageUpdate(10, 7, "one"),
			messageUpdate(11, 8, "other"),
			messageUpdate(12, 7, "two"),
			messageUpdate(13, 7, "three"),
		}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		perUser = map[int64][]string{}
		handled int
		sleeps  []time.Duration
	)
	handle := func(ctx context.Context, u tgbotapi.Update) {
		mu.Lock()
		defer mu.Unlock()
		perUser[u.Message.From.ID] = append(perUser[u.Message.From.ID], u.Message.Text)
		handled++
		if handled == 4 {
			cancel()
		}
	}
	sleep := func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return nil
	}

	p := NewPoller(nil, source, handle, PollerOptions{
		ReconnectMin: 5 * time.Second,
		ReconnectMax: 300 * time.Second,
		Sleep:        sleep,
	})

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, sleeps)
	assert.Equal(t, []string{"one", "two", "three"}, perUser[7])
	assert.Equal(t, []string{"other"}, perUser[8])

	offsets := source.seenOffsets()
	require.GreaterOrEqual(t, len(offsets), 3)
	assert.Equal(t, []int{0, 0, 0}, offsets[:3])
	if len(offsets) > 3 {
		assert.Equal(t, 14, offsets[3])
	}
}

func TestPoller_BackoffResetsAfterSuccess(t *testing.T) {
	source := &scriptedSource{steps: []pollStep{
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{updates: nil},
		{err: errors.New("boom")},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sleeps []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		if len(sleeps) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	p := NewPoller(nil, source, func(context.Context, tgbotapi.Update) {}, PollerOptions{
		ReconnectMin: time.Second,
		ReconnectMax: time.Minute,
		Sleep:        sleep,
	})
	require.NoError(t, p.Run(ctx))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, time.Second}, sleeps)
}

func TestLaneForGroupsBySender(t *testing.T) {
	assert.Equal(t, laneFor(messageUpdate(1, 42, "")), laneFor(messageUpdate(2, 42, "")))
	assert.NotEqual(t, laneFor(messageUpdate(1, 42, "")), laneFor(messageUpdate(1, 43, "")))

	cb := tgbotapi.Update{UpdateID: 3, CallbackQuery: &tgbotapi.CallbackQuery{From: &tgbotapi.User{ID: 42}}}
	assert.Equal(t, laneFor(messageUpdate(9, 42, "")), laneFor(cb), "callbacks share the sender's lane")

	assert.NotEqual(t, laneFor(tgbotapi.Update{UpdateID: 5}), laneFor(tgbotapi.Update{UpdateID: 6}))
}

func TestPoller_BlockedUserDoesNotStallOthers(t *testing.T) {
	const (
		stuckUser int64 = 2
		otherUser int64 = 4
		burst           = 150
	)

	updates := []tgbotapi.Update{messageUpdate(1, stuckUser, "slow")}
	for i := 0; i < burst; i++ {
		updates = append(updates, messageUpdate(2+i, otherUser, "fast"))
	}
	updates = append(updates, messageUpdate(2+burst, stuckUser, "after"))
	source := &scriptedSource{steps: []pollStep{
		{updates: updates[:80]},
		{updates: updates[80:]},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	var (
		mu        sync.Mutex
		otherSeen int
		stuckSeen []string
	)
	otherDone := make(chan struct{})
	handle := func(ctx context.Context, u tgbotapi.Update) {
		if u.Message.From.ID == stuckUser {
			if u.Message.Text == "slow" {
				<-release
			}
			mu.Lock()
			stuckSeen = append(stuckSeen, u.Message.Text)
			mu.Unlock()
			return
		}
		mu.Lock()
		otherSeen++
		if otherSeen == burst {
			close(otherDone)
		}
		mu.Unlock()
	}

	p := NewPoller(nil, source, handle, PollerOptions{})
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-otherDone:
	case <-time.After(5 * time.Second):
		t.Fatal("updates of another user were held back by a blocked handler")
	}
	require.Eventually(t, func() bool { return len(source.seenOffsets()) >= 3 }, 5*time.Second, 10*time.Millisecond,
		"intake must keep polling while a handler is blocked")
	assert.Equal(t, 3+burst, source.seenOffsets()[2])

	mu.Lock()
	assert.Empty(t, stuckSeen, "the blocked user's later update waits its turn")
	mu.Unlock()

	close(release)
	require.Eventually(t, func() bool { return p.activeLanes() == 0 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"slow", "after"}, stuckSeen)
	assert.Equal(t, burst, otherSeen)
}
