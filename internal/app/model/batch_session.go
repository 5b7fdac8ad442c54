package model

import "time"

const (
	BatchSessionWaitingEnd = "waiting_end"
)

// BatchUploadSession tracks a batch an admin is building by uploading media
// between /startbatch and /endbatch. The range grows with every forwarded
// message; no marker messages are posted to the channel.
type BatchUploadSession struct {
	SessionID        string    `db:"session_id" gorm:"primaryKey;size:64"`
	AdminID          int64     `db:"admin_id" gorm:"not null;index"`
	BatchName        string    `db:"batch_name" gorm:"type:text;not null"`
	StorageChannelID int64     `db:"storage_channel_id" gorm:"not null"`
	StartMessageID   int       `db:"start_message_id" gorm:"not null;default:0"`
	EndMessageID     int       `db:"end_message_id" gorm:"not null;default:0"`
	FileCount        int       `db:"file_count" gorm:"not null;default:0"`
	TTLMinutes       int       `db:"ttl_minutes" gorm:"not null;default:0"`
	Status           string    `db:"status" gorm:"size:16;not null;default:waiting_end"`
	CreatedAt        time.Time `db:"created_at" gorm:"not null"`
}

func (BatchUploadSession) TableName() string {
	return "batch_upload_sessions"
}

// Extend records a newly stored message as part of the session range.
func (s *BatchUploadSession) Extend(messageID int) {
	if s.StartMessageID == 0 || messageID < s.StartMessageID {
		s.StartMessageID = messageID
	}
	if messageID > s.EndMessageID {
		s.EndMessageID = messageID
	}
	s.FileCount++
}
