package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sifan077/PowerStash/internal/app/link"
	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/repository"
	"go.uber.org/zap"
)

const defaultMaxBatchSize = 1000

var (
	ErrBatchSessionActive = errors.New("a batch session is already active")
	ErrNoBatchSession     = errors.New("no active batch session")
	ErrEmptyBatch         = errors.New("batch has no files yet")
	ErrInvalidRange       = errors.New("invalid message range")
	ErrBatchTooLarge      = errors.New("batch range is too large")
)

// BatchResult is a created batch and its share link.
type BatchResult struct {
	Batch *model.BatchRecord
	Token string
	Link  string
}

// BatchService builds batches, either from an upload session or from an
// explicit message id range.
type BatchService struct {
	deps         StorageDeps
	batches      repository.BatchRepository
	sessions     repository.BatchSessionRepository
	maxBatchSize int

	// mu guards the read-modify-write of upload sessions.
	mu sync.Mutex
}

func NewBatchService(deps StorageDeps, batches repository.BatchRepository, sessions repository.BatchSessionRepository, maxBatchSize int) *BatchService {
	if maxBatchSize <= 0 {
		maxBatchSize = defaultMaxBatchSize
	}
	return &BatchService{
		deps:         deps.withDefaults("batch"),
		batches:      batches,
		sessions:     sessions,
		maxBatchSize: maxBatchSize,
	}
}

// StartBatch opens an upload session for adminID.
func (s *BatchService) StartBatch(ctx context.Context, adminID int64, name string, ttlMinutes int) (*model.BatchUploadSession, error) {
	if ttlMinutes < 0 {
		return nil, ErrInvalidTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	release := s.deps.Gate.hold()
	defer release()

	if _, err := s.sessions.FindActive(ctx, adminID); err == nil {
		return nil, ErrBatchSessionActive
	} else if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, fmt.Errorf("find batch session: %w", err)
	}

	now := s.deps.Now().UTC()
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Batch " + now.Format("2006-01-02 15:04")
	}

	session := &model.BatchUploadSession{
		SessionID:        uuid.NewString(),
		AdminID:          adminID,
		BatchName:        name,
		StorageChannelID: s.deps.StorageChannelID,
		TTLMinutes:       ttlMinutes,
		Status:           model.BatchSessionWaitingEnd,
		CreatedAt:        now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create batch session: %w", err)
	}

	s.deps.Logger.Info("batch session started",
		zap.String("session_id", session.SessionID),
		zap.Int64("admin_id", adminID),
	)
	return session, nil
}

// ActiveSession returns the admin's open session or ErrNoBatchSession.
func (s *BatchService) ActiveSession(ctx context.Context, adminID int64) (*model.BatchUploadSession, error) {
	session, err := s.sessions.FindActive(ctx, adminID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrNoBatchSession
	}
	if err != nil {
		return nil, fmt.Errorf("find batch session: %w", err)
	}
	return session, nil
}

// AppendToBatch stores one message for the admin's open session. The id the
// storage channel assigns extends the session range; no marker messages are
// needed.
func (s *BatchService) AppendToBatch(ctx context.Context, adminID, fromChatID int64, messageID int) (*model.BatchUploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ActiveSession(ctx, adminID)
	if err != nil {
		return nil, err
	}

	storedID, err := s.deps.store(ctx, fromChatID, messageID)
	if err != nil {
		return nil, err
	}

	session.Extend(storedID)
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("update batch session: %w", err)
	}
	return session, nil
}

// EndBatch turns the admin's session into a batch and closes the session.
func (s *BatchService) EndBatch(ctx context.Context, adminID int64) (*BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ActiveSession(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if session.FileCount == 0 || session.StartMessageID == 0 {
		return nil, ErrEmptyBatch
	}

	result, err := s.create(ctx, adminID, session.BatchName, session.StorageChannelID,
		session.StartMessageID, session.EndMessageID, session.TTLMinutes)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Delete(ctx, session.SessionID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		s.deps.Logger.Error("failed to delete finished batch session",
			zap.String("session_id", session.SessionID),
			zap.Error(err),
		)
	}
	return result, nil
}

// CancelBatch drops the admin's open session. Messages already stored stay
// in the channel.
func (s *BatchService) CancelBatch(ctx context.Context, adminID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ActiveSession(ctx, adminID)
	if errors.Is(err, ErrNoBatchSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.sessions.Delete(ctx, session.SessionID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return false, fmt.Errorf("delete batch session: %w", err)
	}
	return true, nil
}

// NewBatch creates a batch over an explicit inclusive range of storage
// channel message ids.
func (s *BatchService) NewBatch(ctx context.Context, adminID int64, start, end, ttlMinutes int, name string) (*BatchResult, error) {
	if start <= 0 || end < start {
		return nil, ErrInvalidRange
	}
	if end-start+1 > s.maxBatchSize {
		return nil, fmt.Errorf("%w: %d messages, limit %d", ErrBatchTooLarge, end-start+1, s.maxBatchSize)
	}
	if ttlMinutes < 0 {
		return nil, ErrInvalidTTL
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Batch %d-%d", start, end)
	}
	return s.create(ctx, adminID, name, s.deps.StorageChannelID, start, end, ttlMinutes)
}

func (s *BatchService) create(ctx context.Context, adminID int64, name string, channelID int64, start, end, ttlMinutes int) (*BatchResult, error) {
	now := s.deps.Now().UTC()
	batch := &model.BatchRecord{
		Name:             name,
		StorageChannelID: channelID,
		StartMessageID:   start,
		EndMessageID:     end,
		CreatorID:        adminID,
		CreatedAt:        now,
		TTLMinutes:       ttlMinutes,
		ExpiryAt:         model.ExpiryFor(now, ttlMinutes),
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	s.deps.Filter.Add(link.KindBatch, batch.ID)
	uploadsTotal.WithLabelValues(string(link.KindBatch)).Inc()

	token, url := s.deps.Links.For(link.KindBatch, batch.ID)

	s.deps.Logger.Info("batch created",
		zap.Uint64("batch_id", batch.ID),
		zap.Int("start", start),
		zap.Int("end", end),
		zap.Int("ttl_minutes", ttlMinutes),
	)
	s.deps.note(ctx, fmt.Sprintf("📦 Batch #%d <b>%s</b> created by <code>%d</code>\nMessages %d-%d (%d files)",
		batch.ID, html.EscapeString(name), adminID, start, end, batch.FileCount()))

	return &BatchResult{Batch: batch, Token: token, Link: url}, nil
}
