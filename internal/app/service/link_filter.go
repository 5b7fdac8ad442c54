package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sifan077/PowerStash/internal/app/link"
	"github.com/sifan077/PowerStash/internal/app/repository"
)

const linkFilterFalsePositiveRate = 0.01

// LinkFilter remembers every record id ever issued so that a forged or stale
// token for an id that never existed is answered without a database query.
// Deleted records stay in the filter; the lookup that follows handles them.
type LinkFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

func NewLinkFilter(expected uint) *LinkFilter {
	if expected == 0 {
		expected = 10000
	}
	return &LinkFilter{filter: bloom.NewWithEstimates(expected, linkFilterFalsePositiveRate)}
}

func (f *LinkFilter) Add(kind link.Kind, id uint64) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.filter.AddString(link.Ref{Kind: kind, ID: id}.String())
	f.mu.Unlock()
}

// MaybeExists is false only when the record was certainly never created.
// A nil filter knows nothing and always answers true.
func (f *LinkFilter) MaybeExists(kind link.Kind, id uint64) bool {
	if f == nil {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(link.Ref{Kind: kind, ID: id}.String())
}

// Warm loads every stored file and batch id.
func (f *LinkFilter) Warm(ctx context.Context, files repository.FileRepository, batches repository.BatchRepository) (int, error) {
	fileIDs, err := files.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list file ids: %w", err)
	}
	batchIDs, err := batches.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list batch ids: %w", err)
	}

	for _, id := range fileIDs {
		f.Add(link.KindFile, id)
	}
	for _, id := range batchIDs {
		f.Add(link.KindBatch, id)
	}
	return len(fileIDs) + len(batchIDs), nil
}
