package model

import "time"

// BatchRecord addresses an inclusive range of message ids in one storage
// channel. Range membership, not a file list, defines what the batch holds.
type BatchRecord struct {
	ID               uint64     `db:"id" gorm:"primaryKey;autoIncrement"`
	Name             string     `db:"name" gorm:"type:text;not null"`
	StorageChannelID int64      `db:"storage_channel_id" gorm:"not null"`
	StartMessageID   int        `db:"start_message_id" gorm:"not null"`
	EndMessageID     int        `db:"end_message_id" gorm:"not null"`
	CreatorID        int64      `db:"creator_id" gorm:"not null;index"`
	CreatedAt        time.Time  `db:"created_at" gorm:"not null"`
	TTLMinutes       int        `db:"ttl_minutes" gorm:"not null;default:0"`
	ExpiryAt         *time.Time `db:"expiry_at" gorm:"index"`
}

func (BatchRecord) TableName() string {
	return "batches"
}

// FileCount is derived from the id range only. Messages removed from the
// channel by hand are still counted.
func (b *BatchRecord) FileCount() int {
	if b.EndMessageID < b.StartMessageID {
		return 0
	}
	return b.EndMessageID - b.StartMessageID + 1
}

// MessageIDs lists the range in ascending order.
func (b *BatchRecord) MessageIDs() []int {
	ids := make([]int, 0, b.FileCount())
	for id := b.StartMessageID; id <= b.EndMessageID; id++ {
		ids = append(ids, id)
	}
	return ids
}

func (b *BatchRecord) IsExpired(now time.Time) bool {
	return Expired(b.ExpiryAt, now)
}
