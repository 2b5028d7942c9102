// models/team_member.go
package models

import "time"

type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleAdmin  TeamRole = "admin"
	TeamRoleMember TeamRole = "member"
)

// IsLeader reports whether the role may administer team challenges.
func (r TeamRole) IsLeader() bool {
	return r == TeamRoleOwner || r == TeamRoleAdmin
}

// TeamMember is keyed by TeamMemberID(teamID, userID).
type TeamMember struct {
	ID       string    `json:"id" gorm:"primaryKey;size:140"`
	TeamID   string    `json:"team_id" gorm:"not null;index;size:64"`
	UserID   string    `json:"user_id" gorm:"not null;index;size:64"`
	Role     TeamRole  `json:"role" gorm:"not null;default:'member'"`
	JoinedAt time.Time `json:"joined_at" gorm:"not null"`
	IsActive bool      `json:"is_active" gorm:"index"`
}

func TeamMemberID(teamID, userID string) string {
	return teamID + "_" + userID
}

func (TeamMember) TableName() string {
	return "team_members"
}

func (m TeamMember) RecordID() string {
	return m.ID
}
