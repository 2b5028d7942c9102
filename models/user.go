// models/user.go
package models

import (
	"time"
)

type User struct {
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`

	// Progression. XP is the lifetime total; Level is derived from it.
	Level           int `gorm:"default:1" json:"level"`
	XP              int `gorm:"default:0" json:"xp"`
	QuestsCompleted int `gorm:"default:0" json:"quests_completed"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u User) RecordID() string {
	return u.ID
}
