package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/repository"
	"github.com/sifan077/PowerStash/internal/infra/postgres"
	"github.com/sifan077/PowerStash/internal/infra/sqlite"
	"gorm.io/gorm"
)

const testStorageChannel int64 = -1001

type sentText struct {
	chatID int64
	text   string
}

type copyCall struct {
	to        int64
	from      int64
	messageID int
}

type deleteCall struct {
	chatID int64
	ids    []int
}

// fakeMessenger records every call. Hooks, when set, decide the error.
type fakeMessenger struct {
	mu       sync.Mutex
	nextID   int
	texts    []sentText
	copies   []copyCall
	forwards []copyCall
	deletes  []deleteCall

	copyFn    func(call copyCall) error
	forwardFn func(call copyCall) (int, error)
	deleteFn  func(call deleteCall) error
	textFn    func(msg sentText) error
}

func (m *fakeMessenger) SendText(ctx context.Context, chatID int64, text string, kb Keyboard) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := sentText{chatID: chatID, text: text}
	m.texts = append(m.texts, msg)
	if m.textFn != nil {
		if err := m.textFn(msg); err != nil {
			return 0, err
		}
	}
	m.nextID++
	return m.nextID, nil
}

func (m *fakeMessenger) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := copyCall{to: toChatID, from: fromChatID, messageID: messageID}
	m.copies = append(m.copies, call)
	if m.copyFn != nil {
		if err := m.copyFn(call); err != nil {
			return 0, err
		}
	}
	m.nextID++
	return m.nextID, nil
}

func (m *fakeMessenger) ForwardMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := copyCall{to: toChatID, from: fromChatID, messageID: messageID}
	m.forwards = append(m.forwards, call)
	if m.forwardFn != nil {
		return m.forwardFn(call)
	}
	m.nextID++
	return m.nextID, nil
}

func (m *fakeMessenger) DeleteMessages(ctx context.Context, chatID int64, messageIDs []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := deleteCall{chatID: chatID, ids: append([]int(nil), messageIDs...)}
	m.deletes = append(m.deletes, call)
	if m.deleteFn != nil {
		return m.deleteFn(call)
	}
	return nil
}

func (m *fakeMessenger) copiedIDs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(m.copies))
	for _, c := range m.copies {
		ids = append(ids, c.messageID)
	}
	return ids
}

// sleepRecorder never blocks; it only remembers what was asked for.
type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) durations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.calls...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testRepos struct {
	db         *gorm.DB
	files      repository.FileRepository
	batches    repository.BatchRepository
	users      repository.UserRepository
	posts      repository.SearchPostRepository
	sessions   repository.BatchSessionRepository
	deliveries repository.DeliveryEventRepository
}

func newTestRepos(t *testing.T) testRepos {
	t.Helper()

	db, err := sqlite.OpenMemory()
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { closeDB(db) })

	err = postgres.AutoMigrate(context.Background(), db,
		&model.FileRecord{},
		&model.BatchRecord{},
		&model.User{},
		&model.SearchPost{},
		&model.BatchUploadSession{},
		&model.DeliveryEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return testRepos{
		db:         db,
		files:      repository.NewFileRepository(db),
		batches:    repository.NewBatchRepository(db),
		users:      repository.NewUserRepository(db),
		posts:      repository.NewSearchPostRepository(db),
		sessions:   repository.NewBatchSessionRepository(db),
		deliveries: repository.NewDeliveryEventRepository(db),
	}
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// recordingSink keeps published events in memory.
type recordingSink struct {
	mu     sync.Mutex
	events []model.DeliveryEvent
}

func (s *recordingSink) Publish(ctx context.Context, event *model.DeliveryEvent) error {
	s.mu.Lock()
	s.events = append(s.events, *event)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, 0, len(s.events))
	for _, e := range s.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
