package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sifan077/PowerStash/internal/app/link"
	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/repository"
	"go.uber.org/zap"
)

// ErrInvalidTTL rejects negative delete times.
var ErrInvalidTTL = errors.New("invalid delete time")

// UploadResult is a stored file and its share link.
type UploadResult struct {
	File  *model.FileRecord
	Token string
	Link  string
}

// StorageDeps groups what the upload, batch and post services share.
type StorageDeps struct {
	Logger           *zap.Logger
	Messenger        Messenger
	Filter           *LinkFilter
	Links            Links
	StorageChannelID int64
	// LogChannelID receives short activity notes when non-zero. It is
	// ignored when it names the storage channel.
	LogChannelID int64
	// Gate, when set, holds single writes back during batch sessions.
	Gate       *StorageGate
	RetryDelay time.Duration
	Now        Clock
	Sleep      Sleeper
}

func (d StorageDeps) withDefaults(component string) StorageDeps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	d.Logger = d.Logger.With(zap.String("component", component))
	if d.LogChannelID != 0 && d.LogChannelID == d.StorageChannelID {
		d.Logger.Warn("log channel is the storage channel, activity notes disabled")
		d.LogChannelID = 0
	}
	if d.RetryDelay <= 0 {
		d.RetryDelay = defaultRetryDelay
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = SleepContext
	}
	return d
}

// store forwards a message into the storage channel and returns the id it
// got there.
func (d StorageDeps) store(ctx context.Context, fromChatID int64, messageID int) (int, error) {
	var stored int
	policy := RetryPolicy{Attempts: singleFileAttempts, Delay: d.RetryDelay, Sleep: d.Sleep}
	err := policy.Do(ctx, func(ctx context.Context) error {
		id, err := d.Messenger.ForwardMessage(ctx, d.StorageChannelID, fromChatID, messageID)
		if err != nil {
			return err
		}
		stored = id
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("forward to storage channel: %w", err)
	}
	return stored, nil
}

// note posts an activity line to the log channel. Failures are only logged.
func (d StorageDeps) note(ctx context.Context, text string) {
	if d.LogChannelID == 0 {
		return
	}
	if _, err := d.Messenger.SendText(ctx, d.LogChannelID, text, nil); err != nil {
		d.Logger.Warn("failed to post to log channel", zap.Error(err))
	}
}

// UploadService turns a pending upload into a stored file.
type UploadService struct {
	deps  StorageDeps
	files repository.FileRepository
}

func NewUploadService(deps StorageDeps, files repository.FileRepository) *UploadService {
	return &UploadService{deps: deps.withDefaults("upload"), files: files}
}

// Finalize forwards the media to storage, persists the record with its
// delete time and returns the share link.
func (s *UploadService) Finalize(ctx context.Context, uploaderID int64, upload PendingUpload, ttlMinutes int) (*UploadResult, error) {
	if ttlMinutes < 0 {
		return nil, ErrInvalidTTL
	}

	var storedID int
	err := s.deps.Gate.Store(ctx, func() error {
		id, err := s.deps.store(ctx, upload.ChatID, upload.MessageID)
		storedID = id
		return err
	})
	if err != nil {
		return nil, err
	}

	now := s.deps.Now().UTC()
	file := &model.FileRecord{
		StorageChannelID: s.deps.StorageChannelID,
		StorageMessageID: storedID,
		Name:             upload.Media.Name,
		Type:             upload.Media.Kind.String(),
		Size:             upload.Media.Size,
		UploaderID:       uploaderID,
		UploadedAt:       now,
		TTLMinutes:       ttlMinutes,
		ExpiryAt:         model.ExpiryFor(now, ttlMinutes),
	}
	if err := s.files.Create(ctx, file); err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	s.deps.Filter.Add(link.KindFile, file.ID)
	uploadsTotal.WithLabelValues(string(link.KindFile)).Inc()

	token, url := s.deps.Links.For(link.KindFile, file.ID)

	s.deps.Logger.Info("file stored",
		zap.Uint64("file_id", file.ID),
		zap.String("type", file.Type),
		zap.Int64("size", file.Size),
		zap.Int("ttl_minutes", ttlMinutes),
	)
	s.deps.note(ctx, fmt.Sprintf("📤 File #%d stored by <code>%d</code>\n%s · %s · %s",
		file.ID, uploaderID, html.EscapeString(file.Name), file.Type, humanize.IBytes(uint64(max(file.Size, 0)))))

	return &UploadResult{File: file, Token: token, Link: url}, nil
}
