package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/repository"
)

// reaper removes one expired record: remote messages first, then the row.
// The row is left in place whenever the remote delete did not go through.
type reaper struct {
	messenger Messenger
	files     repository.FileRepository
	batches   repository.BatchRepository
	sleep     Sleeper
}

func (r *reaper) removeFile(ctx context.Context, file *model.FileRecord) error {
	if err := r.deleteRemote(ctx, file.StorageChannelID, []int{file.StorageMessageID}); err != nil {
		return err
	}
	if err := r.files.Delete(ctx, file.ID); err != nil && !errors.Is(err, repository.ErrFileNotFound) {
		return fmt.Errorf("delete file record: %w", err)
	}
	return nil
}

func (r *reaper) removeBatch(ctx context.Context, batch *model.BatchRecord) error {
	if err := r.deleteRemote(ctx, batch.StorageChannelID, batch.MessageIDs()); err != nil {
		return err
	}
	if err := r.batches.Delete(ctx, batch.ID); err != nil && !errors.Is(err, repository.ErrBatchNotFound) {
		return fmt.Errorf("delete batch record: %w", err)
	}
	return nil
}

func (r *reaper) deleteRemote(ctx context.Context, chatID int64, messageIDs []int) error {
	if len(messageIDs) == 0 {
		return nil
	}
	policy := RetryPolicy{Attempts: 1, Sleep: r.sleep}
	err := policy.Do(ctx, func(ctx context.Context) error {
		return r.messenger.DeleteMessages(ctx, chatID, messageIDs)
	})
	if err == nil || errors.Is(err, ErrMessageGone) {
		return nil
	}
	return fmt.Errorf("delete remote messages: %w", err)
}
