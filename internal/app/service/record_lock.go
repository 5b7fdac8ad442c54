package service

import (
	"sync"

	"github.com/sifan077/PowerStash/internal/app/link"
)

type recordKey struct {
	kind link.Kind
	id   uint64
}

type recordLock struct {
	mu   sync.RWMutex
	refs int
}

// RecordLocks guards a single file or batch against being removed while it
// is delivered. Deliveries share a record; removal needs it to itself.
type RecordLocks struct {
	mu   sync.Mutex
	held map[recordKey]*recordLock
}

func NewRecordLocks() *RecordLocks {
	return &RecordLocks{held: make(map[recordKey]*recordLock)}
}

// RLock takes a shared hold, waiting only while the record is being
// removed. Call the returned func to release it.
func (l *RecordLocks) RLock(kind link.Kind, id uint64) func() {
	key := recordKey{kind: kind, id: id}

	l.mu.Lock()
	entry, ok := l.held[key]
	if !ok {
		entry = &recordLock{}
		l.held[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.RLock()
	return l.release(key, entry, entry.mu.RUnlock)
}

// TryLock takes the record exclusively, and only if nobody holds or waits
// for it.
func (l *RecordLocks) TryLock(kind link.Kind, id uint64) (func(), bool) {
	key := recordKey{kind: kind, id: id}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false
	}
	entry := &recordLock{refs: 1}
	entry.mu.Lock()
	l.held[key] = entry
	return l.release(key, entry, entry.mu.Unlock), true
}

func (l *RecordLocks) release(key recordKey, entry *recordLock, unlock func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			unlock()

			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.held, key)
			}
			l.mu.Unlock()
		})
	}
}
