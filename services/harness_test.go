package services

import (
	"context"
	"testing"
	"time"

	"snapquest/database"
	"snapquest/models"
	"snapquest/testutil"
)

type harness struct {
	store         *database.GormStore
	clock         *testutil.Clock
	notes         *testutil.Recorder
	eligibility   *EligibilityEvaluator
	detector      *CompletionDetector
	contributions *ContributionAggregator
	attempts      *AttemptTracker
	teams         *TeamService
	contests      *ContestService
}

var testRewards = RewardPolicy{SpeedBonusXP: 25, SpeedBonusMinutes: 15, FirstTimeBonusXP: 50}

// newHarness wires every service to one in-memory store and a clock fixed at
// 2024-05-01 12:00 UTC.
func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store: testutil.NewStore(t),
		clock: testutil.NewClock(testutil.Date(2024, time.May, 1, 12, 0)),
		notes: &testutil.Recorder{},
	}

	h.eligibility = NewEligibilityEvaluator(h.store, nil, time.UTC)
	h.eligibility.Now = h.clock.Now

	h.detector = NewCompletionDetector(h.store, h.notes)
	h.detector.Now = h.clock.Now

	h.contributions = NewContributionAggregator(h.store, h.detector)
	h.contributions.Now = h.clock.Now

	h.attempts = NewAttemptTracker(h.store, h.eligibility, h.contributions, h.notes, testRewards)
	h.attempts.Now = h.clock.Now

	h.teams = NewTeamService(h.store, h.contributions)
	h.teams.Now = h.clock.Now

	h.contests = NewContestService(h.store, nil, VotingWindow{OpenHour: 18, Location: time.UTC, Now: h.clock.Now}, h.notes)
	return h
}

func (h *harness) user(t *testing.T, id string) *models.User {
	t.Helper()
	var u models.User
	if err := h.store.Get(context.Background(), id, &u); err != nil {
		t.Fatalf("Failed to load user %s: %v", id, err)
	}
	return &u
}

func (h *harness) challenge(t *testing.T, id string) *models.TeamChallenge {
	t.Helper()
	var ch models.TeamChallenge
	if err := h.store.Get(context.Background(), id, &ch); err != nil {
		t.Fatalf("Failed to load challenge %s: %v", id, err)
	}
	return &ch
}

func (h *harness) participation(t *testing.T, challengeID, userID string) *models.TeamChallengeParticipation {
	t.Helper()
	var p models.TeamChallengeParticipation
	if err := h.store.Get(context.Background(), models.ParticipationID(challengeID, userID), &p); err != nil {
		t.Fatalf("Failed to load participation: %v", err)
	}
	return &p
}

// setContribution writes a ledger entry directly, bypassing recalculation.
func (h *harness) setContribution(t *testing.T, challengeID, userID string, value float64) {
	t.Helper()
	p := h.participation(t, challengeID, userID)
	p.Contribution = value
	if err := h.store.Update(context.Background(), p, "contribution"); err != nil {
		t.Fatalf("Failed to set contribution: %v", err)
	}
}

func (h *harness) count(t *testing.T, model database.Record, filters ...database.Filter) int64 {
	t.Helper()
	n, err := h.store.Count(context.Background(), model, filters...)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	return n
}

func (h *harness) createAttempt(t *testing.T, userID, questID string, status models.AttemptStatus) *models.QuestAttempt {
	t.Helper()
	a := &models.QuestAttempt{
		ID:        userID + "-" + questID + "-" + string(status) + "-" + h.clock.Now().Format("150405.000000000"),
		UserID:    userID,
		QuestID:   questID,
		Status:    status,
		StartedAt: h.clock.Now(),
	}
	if err := h.store.Create(context.Background(), a); err != nil {
		t.Fatalf("Failed to create attempt: %v", err)
	}
	h.clock.Advance(time.Millisecond)
	return a
}
