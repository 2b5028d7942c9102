// services/contests.go - Daily contest administration
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"snapquest/database"
	"snapquest/models"

	"github.com/google/uuid"
)

// ContestService runs daily contests: entries, ballots, ranking and the
// one-time finalization.
type ContestService struct {
	Store    database.Store
	Quests   QuestReader
	Window   VotingWindow
	Notifier Notifier
}

func NewContestService(store database.Store, quests QuestReader, window VotingWindow, notifier Notifier) *ContestService {
	if quests == nil {
		quests = StoreQuests{Store: store}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ContestService{Store: store, Quests: quests, Window: window, Notifier: notifier}
}

// Today returns the contest date for the current wall clock.
func (s *ContestService) Today() string {
	return s.Window.now().In(s.Window.loc()).Format(models.ContestDateLayout)
}

// GetContest loads one contest.
func (s *ContestService) GetContest(ctx context.Context, contestID string) (*models.DailyContest, error) {
	var c models.DailyContest
	if err := s.Store.Get(ctx, contestID, &c); err != nil {
		return nil, notFound(err, "contest", contestID)
	}
	return &c, nil
}

// EnsureContest returns the contest for date, creating it on first use.
// Concurrent callers converge on the same record.
func (s *ContestService) EnsureContest(ctx context.Context, date, questID string) (*models.DailyContest, error) {
	if _, err := time.Parse(models.ContestDateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: contest date must be YYYY-MM-DD", ErrInvalidInput)
	}

	contest := &models.DailyContest{
		ID:      models.ContestID(date),
		Date:    date,
		QuestID: questID,
		Status:  models.ContestStatusOpen,
	}
	err := s.Store.Create(ctx, contest)
	if errors.Is(err, database.ErrDuplicate) {
		return s.GetContest(ctx, contest.ID)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("📅 Contest %s created", contest.ID)
	return contest, nil
}

type SubmissionInput struct {
	QuestID   string `json:"quest_id"`
	AttemptID string `json:"attempt_id"`
	PhotoURL  string `json:"photo_url"`
}

// CreateSubmission enters a photo into an open contest. When an attempt is
// named it must belong to the user and to the same quest.
func (s *ContestService) CreateSubmission(ctx context.Context, userID, contestID string, in SubmissionInput) (*models.Submission, error) {
	in.PhotoURL = strings.TrimSpace(in.PhotoURL)
	if in.PhotoURL == "" {
		return nil, fmt.Errorf("%w: photo_url is required", ErrInvalidInput)
	}

	contest, err := s.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest.Status != models.ContestStatusOpen || s.Window.Ended(contest) {
		return nil, ErrVotingClosed
	}

	questID := in.QuestID
	if questID == "" {
		questID = contest.QuestID
	}
	if questID == "" {
		return nil, fmt.Errorf("%w: quest_id is required", ErrInvalidInput)
	}
	if _, err := s.Quests.Get(ctx, questID); err != nil {
		return nil, err
	}

	if in.AttemptID != "" {
		var attempt models.QuestAttempt
		if err := s.Store.Get(ctx, in.AttemptID, &attempt); err != nil {
			return nil, notFound(err, "attempt", in.AttemptID)
		}
		if attempt.UserID != userID || attempt.QuestID != questID {
			return nil, fmt.Errorf("%w: attempt %s is not yours for this quest", ErrNotAuthorized, in.AttemptID)
		}
	}

	sub := &models.Submission{
		ID:        uuid.NewString(),
		UserID:    userID,
		QuestID:   questID,
		ContestID: contest.ID,
		AttemptID: in.AttemptID,
		PhotoURL:  in.PhotoURL,
	}
	if err := s.Store.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Leaderboard ranks a contest's submissions by overall score, then vote
// count, then earliest entry.
func (s *ContestService) Leaderboard(ctx context.Context, contestID string, limit int) ([]models.Submission, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var subs []models.Submission
	err := s.Store.Query(ctx, &subs, database.Query{
		Filters: []database.Filter{database.Eq("contest_id", contestID)},
		OrderBy: "overall_score DESC, vote_count DESC, created_at ASC",
		Limit:   limit,
	})
	return subs, err
}

// FinalizeContest records the winner once the contest day is over. Only the
// call that moves the contest from open to finalized notifies entrants; the
// boolean reports whether this call did.
func (s *ContestService) FinalizeContest(ctx context.Context, contestID string) (*models.DailyContest, bool, error) {
	contest, err := s.GetContest(ctx, contestID)
	if err != nil {
		return nil, false, err
	}
	if contest.Status == models.ContestStatusFinalized {
		return contest, false, nil
	}
	if !s.Window.Ended(contest) {
		return nil, false, fmt.Errorf("%w: contest %s is still running", ErrInvalidInput, contestID)
	}

	top, err := s.Leaderboard(ctx, contestID, 1)
	if err != nil {
		return nil, false, err
	}

	now := s.Window.now()
	contest.Status = models.ContestStatusFinalized
	contest.FinalizedAt = &now
	if len(top) > 0 {
		contest.WinnerSubmissionID = top[0].ID
	}
	applied, err := s.Store.UpdateIf(ctx, contest,
		[]database.Filter{database.Eq("status", models.ContestStatusOpen)},
		"status", "finalized_at", "winner_submission_id",
	)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		current, err := s.GetContest(ctx, contestID)
		return current, false, err
	}

	payload := map[string]any{
		"contest_id":           contest.ID,
		"date":                 contest.Date,
		"winner_submission_id": contest.WinnerSubmissionID,
	}
	if len(top) > 0 {
		payload["winner_user_id"] = top[0].UserID
	}
	entrants, err := s.entrants(ctx, contestID)
	if err != nil {
		log.Printf("⚠️ Could not list entrants for %s: %v", contestID, err)
	}
	log.Printf("🏁 Contest %s finalized, winner=%q", contest.ID, contest.WinnerSubmissionID)
	s.Notifier.Notify(ctx, entrants, EventContestFinalized, payload)
	return contest, true, nil
}

func (s *ContestService) entrants(ctx context.Context, contestID string) ([]string, error) {
	var subs []models.Submission
	if err := s.Store.Query(ctx, &subs, database.Query{
		Filters: []database.Filter{database.Eq("contest_id", contestID)},
		OrderBy: "created_at ASC",
	}); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(subs))
	users := make([]string, 0, len(subs))
	for _, sub := range subs {
		if !seen[sub.UserID] {
			seen[sub.UserID] = true
			users = append(users, sub.UserID)
		}
	}
	return users, nil
}
