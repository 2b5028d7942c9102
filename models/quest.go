// models/quest.go - Quest and QuestAttempt models
package models

import (
	"time"
)

type QuestStatus string

const (
	QuestStatusDraft    QuestStatus = "draft"
	QuestStatusActive   QuestStatus = "active"
	QuestStatusArchived QuestStatus = "archived"
)

// GeoPoint is stored inline with a column prefix.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HourWindow is a wall-clock window [StartHour, EndHour). A window whose end
// is before its start wraps past midnight.
type HourWindow struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// Contains reports whether hour (0-23) falls inside the window.
func (w HourWindow) Contains(hour int) bool {
	if w.StartHour == w.EndHour {
		return true
	}
	if w.StartHour < w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

// QuestRequirement is one check voters answer with a boolean on every ballot.
type QuestRequirement struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

type Quest struct {
	ID          string      `json:"id" gorm:"primaryKey;size:64"`
	Title       string      `json:"title" gorm:"not null;size:200"`
	Description string      `json:"description" gorm:"type:text"`
	Status      QuestStatus `json:"status" gorm:"not null;default:'draft';index"`
	StartDate   *time.Time  `json:"start_date"`
	EndDate     *time.Time  `json:"end_date"`

	Location     GeoPoint `json:"location" gorm:"embedded;embeddedPrefix:location_"`
	RadiusMeters int      `json:"radius_meters" gorm:"default:100"`

	MinLevel       int         `json:"min_level" gorm:"default:1"`
	MaxAttempts    int         `json:"max_attempts" gorm:"default:0"` // 0 = unlimited
	AvailableHours *HourWindow `json:"available_hours,omitempty" gorm:"serializer:json"`

	// Rewards. Zero bonus fields fall back to the configured defaults.
	BaseXP            int `json:"base_xp"`
	SpeedBonusXP      int `json:"speed_bonus_xp" gorm:"default:0"`
	SpeedBonusMinutes int `json:"speed_bonus_minutes" gorm:"default:0"`
	FirstTimeBonusXP  int `json:"first_time_bonus_xp" gorm:"default:0"`

	Requirements []QuestRequirement `json:"requirements" gorm:"serializer:json"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RequirementKeys returns the keys every ballot must answer.
func (q Quest) RequirementKeys() []string {
	keys := make([]string, 0, len(q.Requirements))
	for _, r := range q.Requirements {
		keys = append(keys, r.Key)
	}
	return keys
}

func (Quest) TableName() string {
	return "quests"
}

func (q Quest) RecordID() string {
	return q.ID
}

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in-progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
	AttemptFailed     AttemptStatus = "failed"
)

// IsTerminal reports whether no further transition is defined.
func (s AttemptStatus) IsTerminal() bool {
	return s != AttemptInProgress
}

// QuestAttempt is one user's try at one quest.
type QuestAttempt struct {
	ID                    string        `json:"id" gorm:"primaryKey;size:64"`
	QuestID               string        `json:"quest_id" gorm:"not null;index;size:64"`
	UserID                string        `json:"user_id" gorm:"not null;index;size:64"`
	Status                AttemptStatus `json:"status" gorm:"not null;index;size:20"`
	StartedAt             time.Time     `json:"started_at" gorm:"not null"`
	CompletedAt           *time.Time    `json:"completed_at"`
	StartLocation         GeoPoint      `json:"start_location" gorm:"embedded;embeddedPrefix:start_"`
	ResultingSubmissionID string        `json:"resulting_submission_id,omitempty" gorm:"size:64"`
	XPEarned              int           `json:"xp_earned" gorm:"default:0"`
	FailureReason         string        `json:"failure_reason,omitempty"`
}

func (QuestAttempt) TableName() string {
	return "quest_attempts"
}

func (a QuestAttempt) RecordID() string {
	return a.ID
}

// QuestCompletion marks a user's first completion of a quest. Its key is
// deterministic so only one attempt can claim the first-time bonus.
type QuestCompletion struct {
	ID          string    `json:"id" gorm:"primaryKey;size:140"`
	UserID      string    `json:"user_id" gorm:"not null;index;size:64"`
	QuestID     string    `json:"quest_id" gorm:"not null;size:64"`
	AttemptID   string    `json:"attempt_id" gorm:"not null;size:64"`
	CompletedAt time.Time `json:"completed_at"`
}

func QuestCompletionID(userID, questID string) string {
	return userID + "_" + questID
}

func (QuestCompletion) TableName() string {
	return "quest_completions"
}

func (c QuestCompletion) RecordID() string {
	return c.ID
}
