package model

import "time"

// User is anyone who has talked to the bot.
type User struct {
	ID          int64     `db:"id" gorm:"primaryKey;autoIncrement:false"`
	DisplayName string    `db:"display_name" gorm:"type:text;not null;default:''"`
	Username    *string   `db:"username" gorm:"size:64"`
	JoinedAt    time.Time `db:"joined_at" gorm:"not null"`
	Banned      bool      `db:"banned" gorm:"not null;default:false;index"`
}

func (User) TableName() string {
	return "users"
}
