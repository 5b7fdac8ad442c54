package repository

import (
	"context"

	"github.com/sifan077/PowerStash/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeliveryEventRepository persists delivery audit events.
type DeliveryEventRepository interface {
	Create(ctx context.Context, event *model.DeliveryEvent) error
	CountByKind(ctx context.Context) (map[string]int64, error)
}

type deliveryEventRepository struct {
	db *gorm.DB
}

// NewDeliveryEventRepository returns a GORM-backed DeliveryEventRepository.
func NewDeliveryEventRepository(db *gorm.DB) DeliveryEventRepository {
	return &deliveryEventRepository{db: db}
}

// Create is idempotent on the event id so redelivered stream messages do not
// produce duplicates.
func (r *deliveryEventRepository) Create(ctx context.Context, event *model.DeliveryEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(event).Error
}

func (r *deliveryEventRepository) CountByKind(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Kind  string
		Total int64
	}
	if err := r.db.WithContext(ctx).
		Model(&model.DeliveryEvent{}).
		Select("kind, COUNT(*) AS total").
		Group("kind").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Kind] = row.Total
	}
	return counts, nil
}
