// models/challenge.go - Team Challenge Data Models
package models

import (
	"time"
)

type ChallengeType string

const (
	ChallengeTypeXP        ChallengeType = "xp"
	ChallengeTypeQuests    ChallengeType = "quests"
	ChallengeTypeLocations ChallengeType = "locations"
	ChallengeTypeTime      ChallengeType = "time"
)

func (t ChallengeType) Valid() bool {
	switch t {
	case ChallengeTypeXP, ChallengeTypeQuests, ChallengeTypeLocations, ChallengeTypeTime:
		return true
	}
	return false
}

// Incremental types grow by deltas reported on quest completion.
func (t ChallengeType) Incremental() bool {
	return t == ChallengeTypeXP || t == ChallengeTypeQuests
}

type ChallengeStatus string

const (
	ChallengeStatusActive    ChallengeStatus = "active"
	ChallengeStatusCompleted ChallengeStatus = "completed"
	ChallengeStatusPaused    ChallengeStatus = "paused"
	ChallengeStatusFailed    ChallengeStatus = "failed"
)

type Contributor struct {
	UserID       string    `json:"user_id"`
	Contribution float64   `json:"contribution"`
	JoinedAt     time.Time `json:"joined_at"`
}

// ChallengeStatistics is stored inline with a stats_ column prefix.
// CompletedBy is written only by the completion transition.
type ChallengeStatistics struct {
	ActiveParticipants  int           `json:"active_participants"`
	AverageContribution float64       `json:"average_contribution"`
	CompletionRate      float64       `json:"completion_rate"`
	CompletedBy         []string      `json:"completed_by" gorm:"serializer:json"`
	TopContributors     []Contributor `json:"top_contributors" gorm:"serializer:json"`
}

// TeamChallenge is a team-scoped goal. CurrentValue, Progress and Statistics
// are derived from the participation ledger and never incremented in place.
type TeamChallenge struct {
	ID           string              `json:"id" gorm:"primaryKey;size:64"`
	TeamID       string              `json:"team_id" gorm:"not null;index;size:64"`
	Name         string              `json:"name" gorm:"not null;size:100"`
	Description  string              `json:"description" gorm:"type:text"`
	Type         ChallengeType       `json:"type" gorm:"not null;size:20"`
	TargetValue  float64             `json:"target_value" gorm:"not null"`
	CurrentValue float64             `json:"current_value" gorm:"default:0"`
	Progress     float64             `json:"progress" gorm:"default:0"`
	Participants []string            `json:"participants" gorm:"serializer:json"`
	Status       ChallengeStatus     `json:"status" gorm:"not null;default:'active';index;size:20"`
	CreatedBy    string              `json:"created_by" gorm:"not null;size:64"`
	CreatedAt    time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time           `json:"updated_at"`
	EndsAt       *time.Time          `json:"ends_at"`
	CompletedAt  *time.Time          `json:"completed_at"`
	Statistics   ChallengeStatistics `json:"statistics" gorm:"embedded;embeddedPrefix:stats_"`
}

func (TeamChallenge) TableName() string {
	return "team_challenges"
}

func (c TeamChallenge) RecordID() string {
	return c.ID
}

// TeamChallengeParticipation is one member's ledger entry for one challenge,
// keyed by ParticipationID(challengeID, userID).
type TeamChallengeParticipation struct {
	ID           string    `json:"id" gorm:"primaryKey;size:140"`
	ChallengeID  string    `json:"challenge_id" gorm:"not null;index;size:64"`
	UserID       string    `json:"user_id" gorm:"not null;index;size:64"`
	TeamID       string    `json:"team_id" gorm:"not null;index;size:64"`
	Contribution float64   `json:"contribution" gorm:"default:0"`
	JoinedAt     time.Time `json:"joined_at" gorm:"not null"`
	LastUpdated  time.Time `json:"last_updated"`
	IsActive     bool      `json:"is_active" gorm:"index"`
}

func ParticipationID(challengeID, userID string) string {
	return challengeID + "_" + userID
}

func (TeamChallengeParticipation) TableName() string {
	return "team_challenge_participations"
}

func (p TeamChallengeParticipation) RecordID() string {
	return p.ID
}
