package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sifan077/PowerStash/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrFileNotFound signals that the requested file record does not exist.
	ErrFileNotFound = errors.New("file not found")
)

// FileRepository defines the data access contract for stored files.
type FileRepository interface {
	Create(ctx context.Context, file *model.FileRecord) error
	GetByID(ctx context.Context, id uint64) (*model.FileRecord, error)
	Delete(ctx context.Context, id uint64) error
	ListDue(ctx context.Context, now time.Time, afterID uint64, limit int) ([]model.FileRecord, error)
	ListIDs(ctx context.Context) ([]uint64, error)
	Count(ctx context.Context) (int64, error)
	TotalSize(ctx context.Context) (int64, error)
}

type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository returns a GORM-backed FileRepository.
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, file *model.FileRecord) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *fileRepository) GetByID(ctx context.Context, id uint64) (*model.FileRecord, error) {
	var file model.FileRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return &file, nil
}

func (r *fileRepository) Delete(ctx context.Context, id uint64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.FileRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFileNotFound
	}
	return nil
}

// ListDue returns up to limit records with an id above afterID whose
// expiry_at is set and not after now, in id order. Records with ttl 0 have a
// NULL expiry_at and never match.
func (r *fileRepository) ListDue(ctx context.Context, now time.Time, afterID uint64, limit int) ([]model.FileRecord, error) {
	if limit <= 0 {
		limit = defaultDueLimit
	}

	var files []model.FileRecord
	if err := r.db.WithContext(ctx).
		Where("expiry_at IS NOT NULL AND expiry_at <= ? AND id > ?", now.UTC(), afterID).
		Order("id ASC").
		Limit(limit).
		Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (r *fileRepository) ListIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	if err := r.db.WithContext(ctx).Model(&model.FileRecord{}).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *fileRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.FileRecord{}).Count(&n).Error
	return n, err
}

func (r *fileRepository) TotalSize(ctx context.Context) (int64, error) {
	var total int64
	row := r.db.WithContext(ctx).Model(&model.FileRecord{}).Select("COALESCE(SUM(size), 0)").Row()
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
