package model

import "time"

// FileRecord is a single stored media message. The bytes live in the storage
// channel; the row only keeps the back-reference.
type FileRecord struct {
	ID               uint64     `db:"id" gorm:"primaryKey;autoIncrement"`
	StorageChannelID int64      `db:"storage_channel_id" gorm:"not null"`
	StorageMessageID int        `db:"storage_message_id" gorm:"not null"`
	Name             string     `db:"name" gorm:"type:text;not null"`
	Type             string     `db:"type" gorm:"size:32;not null"`
	Size             int64      `db:"size" gorm:"not null;default:0"`
	UploaderID       int64      `db:"uploader_id" gorm:"not null;index"`
	UploadedAt       time.Time  `db:"uploaded_at" gorm:"not null"`
	TTLMinutes       int        `db:"ttl_minutes" gorm:"not null;default:0"`
	ExpiryAt         *time.Time `db:"expiry_at" gorm:"index"`
}

// TableName keeps the table name the bot has always used.
func (FileRecord) TableName() string {
	return "files"
}

// IsExpired reports whether the record has a deadline that is not after now.
func (f *FileRecord) IsExpired(now time.Time) bool {
	return Expired(f.ExpiryAt, now)
}
