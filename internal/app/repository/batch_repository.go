package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sifan077/PowerStash/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrBatchNotFound signals that the requested batch does not exist.
	ErrBatchNotFound = errors.New("batch not found")
)

// defaultDueLimit is the ListDue page size when the caller passes none.
const defaultDueLimit = 500

// BatchRepository defines the data access contract for batches.
type BatchRepository interface {
	Create(ctx context.Context, batch *model.BatchRecord) error
	GetByID(ctx context.Context, id uint64) (*model.BatchRecord, error)
	Delete(ctx context.Context, id uint64) error
	ListDue(ctx context.Context, now time.Time, afterID uint64, limit int) ([]model.BatchRecord, error)
	ListIDs(ctx context.Context) ([]uint64, error)
	Count(ctx context.Context) (int64, error)
}

type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository returns a GORM-backed BatchRepository.
func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) Create(ctx context.Context, batch *model.BatchRecord) error {
	if batch.StartMessageID > batch.EndMessageID {
		return errors.New("batch range start is after end")
	}
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *batchRepository) GetByID(ctx context.Context, id uint64) (*model.BatchRecord, error) {
	var batch model.BatchRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (r *batchRepository) Delete(ctx context.Context, id uint64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.BatchRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *batchRepository) ListDue(ctx context.Context, now time.Time, afterID uint64, limit int) ([]model.BatchRecord, error) {
	if limit <= 0 {
		limit = defaultDueLimit
	}

	var batches []model.BatchRecord
	if err := r.db.WithContext(ctx).
		Where("expiry_at IS NOT NULL AND expiry_at <= ? AND id > ?", now.UTC(), afterID).
		Order("id ASC").
		Limit(limit).
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *batchRepository) ListIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	if err := r.db.WithContext(ctx).Model(&model.BatchRecord{}).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *batchRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.BatchRecord{}).Count(&n).Error
	return n, err
}
