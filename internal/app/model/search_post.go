package model

import (
	"strings"
	"time"
)

// SearchPost is an admin-curated message that keyword search can return.
type SearchPost struct {
	ID               uint64    `db:"id" gorm:"primaryKey;autoIncrement"`
	Title            string    `db:"title" gorm:"type:text;not null"`
	KeywordText      string    `db:"keyword_text" gorm:"type:text;not null;default:''"`
	StorageChannelID int64     `db:"storage_channel_id" gorm:"not null"`
	StorageMessageID int       `db:"storage_message_id" gorm:"not null"`
	AddedBy          int64     `db:"added_by" gorm:"not null"`
	AddedAt          time.Time `db:"added_at" gorm:"not null;index"`
}

func (SearchPost) TableName() string {
	return "search_posts"
}

// Matches does a case-insensitive substring test of query against the title
// and the keyword text.
func (p *SearchPost) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	return strings.Contains(strings.ToLower(p.Title), q) ||
		strings.Contains(strings.ToLower(p.KeywordText), q)
}
