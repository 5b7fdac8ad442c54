package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sifan077/PowerStash/internal/app/repository"
)

var ErrBatchInProgress = errors.New("a batch upload is in progress")

// StorageGate keeps single uploads and search posts out of the storage
// channel while a batch session is open. A finished session covers every
// message id between its first and last file, so anything stored in between
// would become part of the batch and be deleted with it.
//
// A nil gate lets every write through.
type StorageGate struct {
	mu       sync.Mutex
	sessions repository.BatchSessionRepository
}

func NewStorageGate(sessions repository.BatchSessionRepository) *StorageGate {
	return &StorageGate{sessions: sessions}
}

// Store runs write unless a batch session is open, in which case it returns
// ErrBatchInProgress.
func (g *StorageGate) Store(ctx context.Context, write func() error) error {
	if g == nil {
		return write()
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	open, err := g.sessions.AnyActive(ctx)
	if err != nil {
		return fmt.Errorf("check batch sessions: %w", err)
	}
	if open {
		return ErrBatchInProgress
	}
	return write()
}

// hold keeps Store out while a session is being opened.
func (g *StorageGate) hold() func() {
	if g == nil {
		return func() {}
	}
	g.mu.Lock()
	return g.mu.Unlock
}
