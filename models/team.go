// models/team.go
package models

import "time"

type Team struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	Name        string    `json:"name" gorm:"not null;size:100"`
	Description string    `json:"description" gorm:"type:text"`
	IsActive    bool      `json:"is_active" gorm:"index"`
	CreatorID   string    `json:"creator_id" gorm:"not null;size:64"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Team) TableName() string {
	return "teams"
}

func (t Team) RecordID() string {
	return t.ID
}
