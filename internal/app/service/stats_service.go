package service

import (
	"context"
	"fmt"

	"github.com/sifan077/PowerStash/internal/app/repository"
	"golang.org/x/sync/errgroup"
)

// Stats is the dashboard snapshot shown to admins and served by the API.
type Stats struct {
	Files       int64            `json:"files"`
	Batches     int64            `json:"batches"`
	Users       int64            `json:"users"`
	BannedUsers int64            `json:"banned_users"`
	TotalBytes  int64            `json:"total_bytes"`
	Deliveries  map[string]int64 `json:"deliveries,omitempty"`
}

type StatsService struct {
	files      repository.FileRepository
	batches    repository.BatchRepository
	users      repository.UserRepository
	deliveries repository.DeliveryEventRepository
}

// NewStatsService builds the aggregator. deliveries may be nil.
func NewStatsService(
	files repository.FileRepository,
	batches repository.BatchRepository,
	users repository.UserRepository,
	deliveries repository.DeliveryEventRepository,
) *StatsService {
	return &StatsService{files: files, batches: batches, users: users, deliveries: deliveries}
}

// Collect runs the aggregate queries concurrently.
func (s *StatsService) Collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		stats.Files, err = s.files.Count(gctx)
		return wrapStat("count files", err)
	})
	g.Go(func() (err error) {
		stats.TotalBytes, err = s.files.TotalSize(gctx)
		return wrapStat("sum file sizes", err)
	})
	g.Go(func() (err error) {
		stats.Batches, err = s.batches.Count(gctx)
		return wrapStat("count batches", err)
	})
	g.Go(func() (err error) {
		stats.Users, err = s.users.Count(gctx)
		return wrapStat("count users", err)
	})
	g.Go(func() (err error) {
		stats.BannedUsers, err = s.users.CountBanned(gctx)
		return wrapStat("count banned users", err)
	})
	if s.deliveries != nil {
		g.Go(func() (err error) {
			stats.Deliveries, err = s.deliveries.CountByKind(gctx)
			return wrapStat("count deliveries", err)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

func wrapStat(what string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
