// services/voting.go - Contest voting window and ballot validation
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"snapquest/database"
	"snapquest/models"
)

type VotingState string

const (
	VotingNotStarted VotingState = "NOT_STARTED"
	VotingOpen       VotingState = "OPEN"
	VotingClosed     VotingState = "CLOSED"
)

// VotingWindow derives a contest's voting state from the wall clock alone.
// Voting opens at OpenHour on the contest date and runs to the end of that
// day, in Location.
type VotingWindow struct {
	OpenHour int
	Location *time.Location
	Now      func() time.Time
}

func (w VotingWindow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w VotingWindow) loc() *time.Location {
	if w.Location != nil {
		return w.Location
	}
	return time.UTC
}

// bounds returns the start of the contest's day, the opening instant, and
// the end of the day.
func (w VotingWindow) bounds(contest *models.DailyContest) (day, opens, ends time.Time, err error) {
	day, err = time.ParseInLocation(models.ContestDateLayout, contest.Date, w.loc())
	if err != nil {
		return day, opens, ends, fmt.Errorf("contest %s has invalid date %q: %w", contest.ID, contest.Date, err)
	}
	y, m, d := day.Date()
	opens = time.Date(y, m, d, w.OpenHour, 0, 0, 0, w.loc())
	ends = time.Date(y, m, d+1, 0, 0, 0, 0, w.loc())
	return day, opens, ends, nil
}

// StateAt reports the voting state at t. Any day other than the contest's
// own date is CLOSED.
func (w VotingWindow) StateAt(contest *models.DailyContest, t time.Time) VotingState {
	day, opens, ends, err := w.bounds(contest)
	if err != nil {
		return VotingClosed
	}
	switch {
	case t.Before(day) || !t.Before(ends):
		return VotingClosed
	case t.Before(opens):
		return VotingNotStarted
	default:
		return VotingOpen
	}
}

func (w VotingWindow) State(contest *models.DailyContest) VotingState {
	return w.StateAt(contest, w.now())
}

func (w VotingWindow) IsVotingActive(contest *models.DailyContest) bool {
	return w.State(contest) == VotingOpen
}

// Ended reports whether the contest's day is over.
func (w VotingWindow) Ended(contest *models.DailyContest) bool {
	_, _, ends, err := w.bounds(contest)
	if err != nil {
		return false
	}
	return !w.now().Before(ends)
}

// Ballot is one voter's input for a submission.
type Ballot struct {
	VoterID            string               `json:"-"`
	VotingContext      models.VotingContext `json:"voting_context"`
	TeamID             string               `json:"team_id"`
	PhotoQualityRating int                  `json:"photo_quality_rating"`
	RequirementVotes   map[string]bool      `json:"requirement_votes"`
}

// SubmissionScore is the aggregate derived from every ballot on a submission.
type SubmissionScore struct {
	VoteCount        int     `json:"vote_count"`
	AverageRating    float64 `json:"average_rating"`
	RequirementScore float64 `json:"requirement_score"`
	OverallScore     float64 `json:"overall_score"`
}

// ScoreSubmission weighs the mean photo rating (scaled to 100) and the share
// of requirements a strict majority voted met, half each. A quest without
// requirements scores 100 on the requirement half once it has a ballot.
func ScoreSubmission(keys []string, ballots []models.SubmissionVote) SubmissionScore {
	score := SubmissionScore{VoteCount: len(ballots)}
	if len(ballots) == 0 {
		return score
	}

	total := 0
	for _, b := range ballots {
		total += b.PhotoQualityRating
	}
	score.AverageRating = float64(total) / float64(len(ballots))

	if len(keys) == 0 {
		score.RequirementScore = 100
	} else {
		met := 0
		for _, key := range keys {
			yes, votes := 0, 0
			for _, b := range ballots {
				v, ok := b.RequirementVotes[key]
				if !ok {
					continue
				}
				votes++
				if v {
					yes++
				}
			}
			if votes > 0 && yes*2 > votes {
				met++
			}
		}
		score.RequirementScore = float64(met) / float64(len(keys)) * 100
	}

	score.OverallScore = 0.5*(score.AverageRating/5*100) + 0.5*score.RequirementScore
	return score
}

// SubmitBallot validates and stores one ballot, then rescores the
// submission. Rejections are checked in a fixed order and never write. Once
// the ballot is stored the call succeeds; a failed rescore is logged and the
// unscored submission returned, and the next ballot rescores from all votes.
func (s *ContestService) SubmitBallot(ctx context.Context, submissionID string, ballot Ballot) (*models.SubmissionVote, *models.Submission, error) {
	var sub models.Submission
	if err := s.Store.Get(ctx, submissionID, &sub); err != nil {
		return nil, nil, notFound(err, "submission", submissionID)
	}

	ballotID := models.BallotID(submissionID, ballot.VoterID)
	var existing models.SubmissionVote
	err := s.Store.Get(ctx, ballotID, &existing)
	switch {
	case err == nil:
		return nil, nil, ErrAlreadyVoted
	case !errors.Is(err, database.ErrNotFound):
		return nil, nil, err
	}

	if ballot.VoterID == sub.UserID {
		return nil, nil, ErrSelfVote
	}

	var contest models.DailyContest
	if err := s.Store.Get(ctx, sub.ContestID, &contest); err != nil {
		return nil, nil, notFound(err, "contest", sub.ContestID)
	}
	if !s.Window.IsVotingActive(&contest) {
		return nil, nil, ErrVotingClosed
	}

	quest, err := s.Quests.Get(ctx, sub.QuestID)
	if err != nil {
		return nil, nil, err
	}
	if err := validateBallot(quest.RequirementKeys(), &ballot); err != nil {
		return nil, nil, err
	}

	vote := &models.SubmissionVote{
		ID:                 ballotID,
		SubmissionID:       submissionID,
		VoterID:            ballot.VoterID,
		ContestID:          contest.ID,
		VotingContext:      ballot.VotingContext,
		TeamID:             ballot.TeamID,
		PhotoQualityRating: ballot.PhotoQualityRating,
		RequirementVotes:   ballot.RequirementVotes,
		Timestamp:          s.Window.now(),
	}
	if err := s.Store.Create(ctx, vote); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, nil, ErrAlreadyVoted
		}
		return nil, nil, err
	}

	scored := sub
	updated, err := s.rescore(ctx, &scored, quest.RequirementKeys())
	if err != nil {
		log.Printf("⚠️ Ballot %s stored but rescoring submission %s failed: %v", vote.ID, submissionID, err)
		return vote, &sub, nil
	}
	return vote, updated, nil
}

func validateBallot(keys []string, ballot *Ballot) error {
	var missing []string
	for _, key := range keys {
		if _, ok := ballot.RequirementVotes[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &IncompleteBallotError{Missing: missing}
	}

	if ballot.PhotoQualityRating < 1 || ballot.PhotoQualityRating > 5 {
		return &IncompleteBallotError{Reason: fmt.Sprintf("photo quality rating must be between 1 and 5, got %d", ballot.PhotoQualityRating)}
	}

	if ballot.VotingContext == "" {
		ballot.VotingContext = models.VotingContextGlobal
	}
	switch ballot.VotingContext {
	case models.VotingContextGlobal:
		if ballot.TeamID != "" {
			return &IncompleteBallotError{Reason: "team_id is only allowed for team votes"}
		}
	case models.VotingContextTeam:
		if ballot.TeamID == "" {
			return &IncompleteBallotError{Reason: "team votes require a team_id"}
		}
	default:
		return &IncompleteBallotError{Reason: fmt.Sprintf("unknown voting context %q", ballot.VotingContext)}
	}
	return nil
}

// rescore re-derives the submission's score from all of its ballots.
func (s *ContestService) rescore(ctx context.Context, sub *models.Submission, keys []string) (*models.Submission, error) {
	var ballots []models.SubmissionVote
	if err := s.Store.Query(ctx, &ballots, database.Query{
		Filters: []database.Filter{database.Eq("submission_id", sub.ID)},
	}); err != nil {
		return nil, err
	}

	score := ScoreSubmission(keys, ballots)
	sub.VoteCount = score.VoteCount
	sub.AverageRating = score.AverageRating
	sub.RequirementScore = score.RequirementScore
	sub.OverallScore = score.OverallScore
	if err := s.Store.Update(ctx, sub, "vote_count", "average_rating", "requirement_score", "overall_score"); err != nil {
		return nil, notFound(err, "submission", sub.ID)
	}
	return sub, nil
}
