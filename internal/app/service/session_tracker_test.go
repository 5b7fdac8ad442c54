package service

import (
	"testing"
	"time"

	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTracker_OneActionPerUser(t *testing.T) {
	tracker := NewSessionTracker(100, time.Minute)

	assert.Equal(t, ActionNone, tracker.Get(1).Kind)

	tracker.Set(1, AwaitingSearch())
	tracker.Set(1, AwaitingDeleteTime(PendingUpload{ChatID: 1, MessageID: 5, Media: model.MediaDescriptor{Kind: model.MediaPhoto}}))

	action := tracker.Get(1)
	require.Equal(t, ActionAwaitingDeleteTime, action.Kind)
	require.NotNil(t, action.Upload)
	assert.Equal(t, 5, action.Upload.MessageID)

	_, ok := tracker.Take(1, ActionAwaitingSearch)
	assert.False(t, ok, "kind mismatch must leave the action alone")
	assert.Equal(t, ActionAwaitingDeleteTime, tracker.Get(1).Kind)

	taken, ok := tracker.Take(1, ActionAwaitingDeleteTime)
	require.True(t, ok)
	assert.Equal(t, 5, taken.Upload.MessageID)
	assert.Equal(t, ActionNone, tracker.Get(1).Kind)
}

func TestSessionTracker_ClearAndNone(t *testing.T) {
	tracker := NewSessionTracker(100, time.Minute)

	assert.False(t, tracker.Clear(7))

	tracker.Set(7, BroadcastConfirm(BroadcastDraft{Text: "hi", Recipients: []int64{1, 2}}))
	assert.Equal(t, 1, tracker.Len())
	assert.True(t, tracker.Clear(7))
	assert.Equal(t, ActionNone, tracker.Get(7).Kind)

	tracker.Set(7, AwaitingBroadcast())
	tracker.Set(7, PendingAction{})
	assert.Equal(t, ActionNone, tracker.Get(7).Kind)
}

func TestSessionTracker_StaleActionReadsAsNone(t *testing.T) {
	tracker := NewSessionTracker(100, 50*time.Millisecond)
	tracker.Set(3, AwaitingSearch())
	require.Equal(t, ActionAwaitingSearch, tracker.Get(3).Kind)

	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, ActionNone, tracker.Get(3).Kind)
	_, ok := tracker.Take(3, ActionAwaitingSearch)
	assert.False(t, ok)
}

func TestActionKind_String(t *testing.T) {
	assert.Equal(t, "awaiting_delete_time", ActionAwaitingDeleteTime.String())
	assert.Equal(t, "none", ActionNone.String())
}
