package repository

import (
	"context"
	"errors"

	"github.com/sifan077/PowerStash/internal/app/model"
	"gorm.io/gorm"
)

var (
	ErrPostNotFound = errors.New("search post not found")
)

// SearchPostRepository defines the data access contract for search posts.
type SearchPostRepository interface {
	Create(ctx context.Context, post *model.SearchPost) error
	GetByID(ctx context.Context, id uint64) (*model.SearchPost, error)
	Delete(ctx context.Context, id uint64) error
	// ListAll returns every post in storage (id) order.
	ListAll(ctx context.Context) ([]model.SearchPost, error)
	// ListRecent returns up to limit posts, most recently added first.
	ListRecent(ctx context.Context, limit int) ([]model.SearchPost, error)
}

type searchPostRepository struct {
	db *gorm.DB
}

func NewSearchPostRepository(db *gorm.DB) SearchPostRepository {
	return &searchPostRepository{db: db}
}

func (r *searchPostRepository) Create(ctx context.Context, post *model.SearchPost) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *searchPostRepository) GetByID(ctx context.Context, id uint64) (*model.SearchPost, error) {
	var post model.SearchPost
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

func (r *searchPostRepository) Delete(ctx context.Context, id uint64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.SearchPost{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *searchPostRepository) ListAll(ctx context.Context) ([]model.SearchPost, error) {
	var posts []model.SearchPost
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *searchPostRepository) ListRecent(ctx context.Context, limit int) ([]model.SearchPost, error) {
	if limit <= 0 {
		limit = 20
	}

	var posts []model.SearchPost
	if err := r.db.WithContext(ctx).
		Order("added_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}
