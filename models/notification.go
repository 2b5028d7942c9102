// models/notification.go
package models

import "time"

type Notification struct {
	ID        string         `json:"id" gorm:"primaryKey;size:64"`
	UserID    string         `json:"user_id" gorm:"not null;index;size:64"`
	Kind      string         `json:"kind" gorm:"not null;size:50"`
	Payload   map[string]any `json:"payload" gorm:"serializer:json"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n Notification) RecordID() string {
	return n.ID
}
