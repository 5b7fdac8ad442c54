package repository

import (
	"context"
	"errors"

	"github.com/sifan077/PowerStash/internal/app/model"
	"gorm.io/gorm"
)

var (
	ErrSessionNotFound = errors.New("batch session not found")
)

// BatchSessionRepository stores in-progress /startbatch sessions.
type BatchSessionRepository interface {
	Create(ctx context.Context, session *model.BatchUploadSession) error
	// FindActive returns the admin's session that is still waiting for /endbatch.
	FindActive(ctx context.Context, adminID int64) (*model.BatchUploadSession, error)
	// AnyActive reports whether any admin has a session waiting for /endbatch.
	AnyActive(ctx context.Context) (bool, error)
	Update(ctx context.Context, session *model.BatchUploadSession) error
	Delete(ctx context.Context, sessionID string) error
}

type batchSessionRepository struct {
	db *gorm.DB
}

func NewBatchSessionRepository(db *gorm.DB) BatchSessionRepository {
	return &batchSessionRepository{db: db}
}

func (r *batchSessionRepository) Create(ctx context.Context, session *model.BatchUploadSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *batchSessionRepository) FindActive(ctx context.Context, adminID int64) (*model.BatchUploadSession, error) {
	var session model.BatchUploadSession
	err := r.db.WithContext(ctx).
		Where("admin_id = ? AND status = ?", adminID, model.BatchSessionWaitingEnd).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *batchSessionRepository) AnyActive(ctx context.Context) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.BatchUploadSession{}).
		Where("status = ?", model.BatchSessionWaitingEnd).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *batchSessionRepository) Update(ctx context.Context, session *model.BatchUploadSession) error {
	result := r.db.WithContext(ctx).
		Model(&model.BatchUploadSession{}).
		Where("session_id = ?", session.SessionID).
		Updates(map[string]interface{}{
			"start_message_id": session.StartMessageID,
			"end_message_id":   session.EndMessageID,
			"file_count":       session.FileCount,
			"status":           session.Status,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *batchSessionRepository) Delete(ctx context.Context, sessionID string) error {
	result := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.BatchUploadSession{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}
