// models/contest.go - Daily photo contest models
package models

import "time"

// ContestDateLayout is the calendar-day format of DailyContest.Date.
const ContestDateLayout = "2006-01-02"

type ContestStatus string

const (
	ContestStatusOpen      ContestStatus = "open"
	ContestStatusFinalized ContestStatus = "finalized"
)

// DailyContest is keyed by ContestID(date); one contest exists per calendar day.
type DailyContest struct {
	ID                 string        `json:"id" gorm:"primaryKey;size:64"`
	Date               string        `json:"date" gorm:"uniqueIndex;not null;size:10"`
	QuestID            string        `json:"quest_id,omitempty" gorm:"size:64"`
	Status             ContestStatus `json:"status" gorm:"not null;default:'open';size:20"`
	WinnerSubmissionID string        `json:"winner_submission_id,omitempty" gorm:"size:64"`
	FinalizedAt        *time.Time    `json:"finalized_at"`
	CreatedAt          time.Time     `json:"created_at"`
}

func ContestID(date string) string {
	return "contest_" + date
}

func (DailyContest) TableName() string {
	return "daily_contests"
}

func (c DailyContest) RecordID() string {
	return c.ID
}

// Submission is one photo entry. The score fields are derived from its ballots.
type Submission struct {
	ID               string    `json:"id" gorm:"primaryKey;size:64"`
	UserID           string    `json:"user_id" gorm:"not null;index;size:64"`
	QuestID          string    `json:"quest_id" gorm:"not null;index;size:64"`
	ContestID        string    `json:"contest_id" gorm:"index;size:64"`
	AttemptID        string    `json:"attempt_id,omitempty" gorm:"size:64"`
	PhotoURL         string    `json:"photo_url" gorm:"not null"`
	VoteCount        int       `json:"vote_count" gorm:"default:0"`
	AverageRating    float64   `json:"average_rating" gorm:"default:0"`
	RequirementScore float64   `json:"requirement_score" gorm:"default:0"`
	OverallScore     float64   `json:"overall_score" gorm:"default:0;index"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Submission) TableName() string {
	return "submissions"
}

func (s Submission) RecordID() string {
	return s.ID
}

type VotingContext string

const (
	VotingContextGlobal VotingContext = "global"
	VotingContextTeam   VotingContext = "team"
)

// SubmissionVote is one ballot, keyed by BallotID(submissionID, voterID).
type SubmissionVote struct {
	ID                 string          `json:"id" gorm:"primaryKey;size:140"`
	SubmissionID       string          `json:"submission_id" gorm:"not null;index;size:64"`
	VoterID            string          `json:"voter_id" gorm:"not null;index;size:64"`
	ContestID          string          `json:"contest_id" gorm:"not null;index;size:64"`
	VotingContext      VotingContext   `json:"voting_context" gorm:"not null;size:10"`
	TeamID             string          `json:"team_id,omitempty" gorm:"size:64"`
	PhotoQualityRating int             `json:"photo_quality_rating" gorm:"not null"`
	RequirementVotes   map[string]bool `json:"requirement_votes" gorm:"serializer:json"`
	Timestamp          time.Time       `json:"timestamp" gorm:"not null"`
}

func BallotID(submissionID, voterID string) string {
	return submissionID + "_" + voterID
}

func (SubmissionVote) TableName() string {
	return "submission_votes"
}

func (v SubmissionVote) RecordID() string {
	return v.ID
}
