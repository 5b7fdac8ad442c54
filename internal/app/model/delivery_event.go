package model

import "time"

// Delivery kinds carried by DeliveryEvent.
const (
	DeliveryKindFile      = "file"
	DeliveryKindBatch     = "batch"
	DeliveryKindPost      = "post"
	DeliveryKindBroadcast = "broadcast"
	DeliveryKindExpired   = "expired"
)

// DeliveryEvent is an audit record of one replay, broadcast, or expiry.
type DeliveryEvent struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Kind      string    `json:"kind" gorm:"size:16;not null;index"`
	RecordID  uint64    `json:"record_id" gorm:"not null;default:0"`
	UserID    int64     `json:"user_id" gorm:"not null;default:0"`
	Delivered int       `json:"delivered" gorm:"not null;default:0"`
	Failed    int       `json:"failed" gorm:"not null;default:0"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`
}

func (DeliveryEvent) TableName() string {
	return "delivery_events"
}

const (
	DeliveryStreamName     = "DELIVERIES"
	DeliveryStreamSubject  = "deliveries.events"
	DeliveryConsumerName   = "delivery-recorder"
	DeliveryStreamMaxBytes = 1024 * 1024 * 64 // 64MB
)
