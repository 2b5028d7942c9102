// database/migrate.go - Database Migration Runner
package database

import (
	"fmt"
	"log"

	"snapquest/models"

	"gorm.io/gorm"
)

// Migrate creates or updates every table and index the service uses.
func Migrate(db *gorm.DB) error {
	log.Println("🔄 Running database migrations...")

	if err := db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.TeamMember{},
		&models.Quest{},
		&models.QuestAttempt{},
		&models.QuestCompletion{},
		&models.TeamChallenge{},
		&models.TeamChallengeParticipation{},
		&models.DailyContest{},
		&models.Submission{},
		&models.SubmissionVote{},
		&models.Notification{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return err
	}

	log.Println("✅ All migrations completed successfully")
	return nil
}

// createIndexes creates the composite indexes the hot queries filter on.
func createIndexes(db *gorm.DB) error {
	statements := []string{
		// Eligibility: in-progress and historical attempts per (user, quest)
		"CREATE INDEX IF NOT EXISTS idx_attempts_user_quest_status ON quest_attempts(user_id, quest_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_attempts_status_started ON quest_attempts(status, started_at)",

		// Aggregation: active ledger rows per challenge
		"CREATE INDEX IF NOT EXISTS idx_participations_challenge_active ON team_challenge_participations(challenge_id, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_participations_user_active ON team_challenge_participations(user_id, is_active)",

		"CREATE INDEX IF NOT EXISTS idx_team_members_team_active ON team_members(team_id, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_challenges_team_status ON team_challenges(team_id, status)",

		// Contest leaderboard and ballot tallies
		"CREATE INDEX IF NOT EXISTS idx_submissions_contest_score ON submissions(contest_id, overall_score DESC)",
		"CREATE INDEX IF NOT EXISTS idx_votes_submission ON submission_votes(submission_id)",

		"CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at DESC)",
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
