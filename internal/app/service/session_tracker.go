package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sifan077/PowerStash/internal/app/model"
)

// ActionKind tags what input the bot expects next from a user.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionAwaitingSearch
	ActionAwaitingBroadcast
	ActionAwaitingDeleteTime
	ActionBroadcastConfirm
)

func (k ActionKind) String() string {
	switch k {
	case ActionAwaitingSearch:
		return "awaiting_search"
	case ActionAwaitingBroadcast:
		return "awaiting_broadcast"
	case ActionAwaitingDeleteTime:
		return "awaiting_delete_time"
	case ActionBroadcastConfirm:
		return "broadcast_confirm"
	default:
		return "none"
	}
}

// PendingUpload is media an admin sent that waits for a delete time.
type PendingUpload struct {
	ChatID    int64
	MessageID int
	Media     model.MediaDescriptor
}

// BroadcastDraft is a prepared broadcast waiting for confirmation. MessageID
// is set for media payloads, Text for plain text.
type BroadcastDraft struct {
	SourceChatID int64
	MessageID    int
	Text         string
	Recipients   []int64
}

// PendingAction is the per-user state. Upload is set only for
// ActionAwaitingDeleteTime and Broadcast only for ActionBroadcastConfirm.
type PendingAction struct {
	Kind      ActionKind
	Upload    *PendingUpload
	Broadcast *BroadcastDraft
}

func AwaitingSearch() PendingAction {
	return PendingAction{Kind: ActionAwaitingSearch}
}

func AwaitingBroadcast() PendingAction {
	return PendingAction{Kind: ActionAwaitingBroadcast}
}

func AwaitingDeleteTime(upload PendingUpload) PendingAction {
	return PendingAction{Kind: ActionAwaitingDeleteTime, Upload: &upload}
}

func BroadcastConfirm(draft BroadcastDraft) PendingAction {
	return PendingAction{Kind: ActionBroadcastConfirm, Broadcast: &draft}
}

// SessionTracker holds at most one pending action per user. Entries expire
// after ttl and a stale entry reads as no action at all.
type SessionTracker struct {
	mu      sync.Mutex
	entries *expirable.LRU[int64, PendingAction]
}

func NewSessionTracker(maxEntries int, ttl time.Duration) *SessionTracker {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	onEvict := func(_ int64, _ PendingAction) {
		sessionRemovalsTotal.Inc()
	}
	return &SessionTracker{
		entries: expirable.NewLRU[int64, PendingAction](maxEntries, onEvict, ttl),
	}
}

// Set replaces whatever the user had pending.
func (t *SessionTracker) Set(userID int64, action PendingAction) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if action.Kind == ActionNone {
		t.entries.Remove(userID)
		return
	}
	t.entries.Add(userID, action)
}

// Get returns the pending action, or ActionNone.
func (t *SessionTracker) Get(userID int64) PendingAction {
	t.mu.Lock()
	defer t.mu.Unlock()

	action, ok := t.entries.Peek(userID)
	if !ok {
		return PendingAction{}
	}
	return action
}

// Take returns and clears the pending action if it has the wanted kind.
func (t *SessionTracker) Take(userID int64, kind ActionKind) (PendingAction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	action, ok := t.entries.Peek(userID)
	if !ok || action.Kind != kind {
		return PendingAction{}, false
	}
	t.entries.Remove(userID)
	return action, true
}

// Clear drops the pending action and reports whether there was one.
func (t *SessionTracker) Clear(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries.Remove(userID)
}

func (t *SessionTracker) Len() int {
	return t.entries.Len()
}
