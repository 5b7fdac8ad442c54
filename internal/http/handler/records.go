package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerStash/internal/app/link"
	"github.com/sifan077/PowerStash/internal/app/repository"
	"github.com/sifan077/PowerStash/internal/app/service"
	"go.uber.org/zap"
)

// RecordDeps groups the read-only lookups shared by the landing page and the
// API.
type RecordDeps struct {
	Logger  *zap.Logger
	Files   repository.FileRepository
	Batches repository.BatchRepository
	Filter  *service.LinkFilter
	Links   service.Links
	Now     service.Clock
}

// RecordView is the public summary of whatever a token points at.
type RecordView struct {
	Kind      link.Kind  `json:"kind"`
	ID        uint64     `json:"id"`
	Name      string     `json:"name"`
	Type      string     `json:"type,omitempty"`
	Size      int64      `json:"size,omitempty"`
	FileCount int        `json:"file_count"`
	ExpiresAt *time.Time `json:"expires_at"`
	DeepLink  string     `json:"deep_link"`
}

type recordLoadError struct {
	StatusCode int
	Message    string
}

type recordLookup struct {
	logger  *zap.Logger
	files   repository.FileRepository
	batches repository.BatchRepository
	filter  *service.LinkFilter
	links   service.Links
	now     service.Clock
}

func newRecordLookup(deps RecordDeps) *recordLookup {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &recordLookup{
		logger:  logger,
		files:   deps.Files,
		batches: deps.Batches,
		filter:  deps.Filter,
		links:   deps.Links,
		now:     now,
	}
}

// load resolves token without touching the chat side. Expired records are
// reported as gone; the expiry engine removes them.
func (l *recordLookup) load(ctx context.Context, token string) (*RecordView, *recordLoadError) {
	ref, err := link.Decode(token)
	if err != nil {
		return nil, &recordLoadError{StatusCode: fiber.StatusBadRequest, Message: "invalid link"}
	}
	if !l.filter.MaybeExists(ref.Kind, ref.ID) {
		return nil, &recordLoadError{StatusCode: fiber.StatusNotFound, Message: "link not found"}
	}

	_, deepLink := l.links.For(ref.Kind, ref.ID)
	view := &RecordView{Kind: ref.Kind, ID: ref.ID, DeepLink: deepLink}
	now := l.now()

	switch ref.Kind {
	case link.KindFile:
		file, err := l.files.GetByID(ctx, ref.ID)
		if err != nil {
			return nil, l.loadFailure(err, repository.ErrFileNotFound, token)
		}
		if file.IsExpired(now) {
			return nil, &recordLoadError{StatusCode: fiber.StatusGone, Message: "link expired"}
		}
		view.Name, view.Type, view.Size = file.Name, file.Type, file.Size
		view.FileCount = 1
		view.ExpiresAt = file.ExpiryAt
	case link.KindBatch:
		batch, err := l.batches.GetByID(ctx, ref.ID)
		if err != nil {
			return nil, l.loadFailure(err, repository.ErrBatchNotFound, token)
		}
		if batch.IsExpired(now) {
			return nil, &recordLoadError{StatusCode: fiber.StatusGone, Message: "link expired"}
		}
		view.Name = batch.Name
		view.FileCount = batch.FileCount()
		view.ExpiresAt = batch.ExpiryAt
	}
	return view, nil
}

func (l *recordLookup) loadFailure(err, notFound error, token string) *recordLoadError {
	if errors.Is(err, notFound) {
		return &recordLoadError{StatusCode: fiber.StatusNotFound, Message: "link not found"}
	}
	l.logger.Error("failed to load record", zap.Error(err), zap.String("token", token))
	return &recordLoadError{StatusCode: fiber.StatusInternalServerError, Message: "internal server error"}
}

func userContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
