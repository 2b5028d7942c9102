package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"snapquest/models"
	"snapquest/testutil"
)

func TestComputeAggregate(t *testing.T) {
	base := testutil.Date(2024, time.May, 1, 9, 0)
	part := func(user string, contribution float64, joinedOffset time.Duration, active bool) models.TeamChallengeParticipation {
		return models.TeamChallengeParticipation{
			UserID:       user,
			Contribution: contribution,
			JoinedAt:     base.Add(joinedOffset),
			IsActive:     active,
		}
	}

	tests := []struct {
		name           string
		target         float64
		parts          []models.TeamChallengeParticipation
		wantCurrent    float64
		wantProgress   float64
		wantActive     int
		wantAverage    float64
		wantRate       float64
		wantTopUserIDs []string
	}{
		{
			name:           "empty ledger",
			target:         100,
			wantTopUserIDs: []string{},
		},
		{
			name:   "inactive entries are ignored",
			target: 100,
			parts: []models.TeamChallengeParticipation{
				part("a", 30, 0, true),
				part("b", 500, 0, false),
				part("c", 0, 0, true),
			},
			wantCurrent:    30,
			wantProgress:   30,
			wantActive:     2,
			wantAverage:    15,
			wantRate:       50,
			wantTopUserIDs: []string{"a", "c"},
		},
		{
			name:   "progress is capped",
			target: 100,
			parts: []models.TeamChallengeParticipation{
				part("a", 40, 0, true),
				part("b", 65, time.Minute, true),
			},
			wantCurrent:    105,
			wantProgress:   100,
			wantActive:     2,
			wantAverage:    52.5,
			wantRate:       100,
			wantTopUserIDs: []string{"b", "a"},
		},
		{
			name:   "ties go to the earliest joiner and the list stops at five",
			target: 1000,
			parts: []models.TeamChallengeParticipation{
				part("late", 10, 5*time.Minute, true),
				part("early", 10, time.Minute, true),
				part("top", 50, 3*time.Minute, true),
				part("mid", 20, 2*time.Minute, true),
				part("low", 1, 0, true),
				part("lowest", 0, 0, true),
			},
			wantCurrent:    91,
			wantProgress:   9.1,
			wantActive:     6,
			wantAverage:    91.0 / 6,
			wantRate:       500.0 / 6,
			wantTopUserIDs: []string{"top", "mid", "early", "late", "low"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := ComputeAggregate(tt.target, tt.parts)

			if agg.CurrentValue != tt.wantCurrent {
				t.Errorf("CurrentValue = %v, want %v", agg.CurrentValue, tt.wantCurrent)
			}
			if !approx(agg.Progress, tt.wantProgress) {
				t.Errorf("Progress = %v, want %v", agg.Progress, tt.wantProgress)
			}
			if agg.ActiveParticipants != tt.wantActive {
				t.Errorf("ActiveParticipants = %d, want %d", agg.ActiveParticipants, tt.wantActive)
			}
			if !approx(agg.AverageContribution, tt.wantAverage) {
				t.Errorf("AverageContribution = %v, want %v", agg.AverageContribution, tt.wantAverage)
			}
			if !approx(agg.CompletionRate, tt.wantRate) {
				t.Errorf("CompletionRate = %v, want %v", agg.CompletionRate, tt.wantRate)
			}

			top := make([]string, 0, len(agg.TopContributors))
			for _, c := range agg.TopContributors {
				top = append(top, c.UserID)
			}
			if !reflect.DeepEqual(top, tt.wantTopUserIDs) {
				t.Errorf("TopContributors = %v, want %v", top, tt.wantTopUserIDs)
			}
		})
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func TestRecalculateTwoParticipantsCompletes(t *testing.T) {
	h := newHarness(t)
	alice := testutil.CreateUser(t, h.store, "alice")
	bob := testutil.CreateUser(t, h.store, "bob")
	team := testutil.CreateTeam(t, h.store, alice, bob)
	ch := testutil.CreateChallenge(t, h.store, team, models.ChallengeTypeQuests, 100, alice, bob)

	h.setContribution(t, ch.ID, alice.ID, 40)
	h.setContribution(t, ch.ID, bob.ID, 65)

	res, err := h.contributions.Recalculate(context.Background(), ch.ID)
	if err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}
	if !res.Completed {
		t.Errorf("Expected this recalculation to complete the challenge")
	}

	stored := h.challenge(t, ch.ID)
	if stored.CurrentValue != 105 || stored.Progress != 100 {
		t.Errorf("current=%v progress=%v, want 105 and 100", stored.CurrentValue, stored.Progress)
	}
	if stored.Status != models.ChallengeStatusCompleted || stored.CompletedAt == nil {
		t.Errorf("Status = %s completedAt=%v, want completed with timestamp", stored.Status, stored.CompletedAt)
	}

	want := []string{alice.ID, bob.ID}
	sort.Strings(want)
	if !reflect.DeepEqual(stored.Statistics.CompletedBy, want) {
		t.Errorf("CompletedBy = %v, want %v", stored.Statistics.CompletedBy, want)
	}
	if stored.Statistics.TopContributors[0].UserID != bob.ID {
		t.Errorf("Top contributor = %s, want bob", stored.Statistics.TopContributors[0].UserID)
	}

	events := h.notes.Events(EventChallengeCompleted)
	if len(events) != 1 {
		t.Fatalf("Expected 1 completion event, got %d", len(events))
	}
	if events[0].Payload["challenge_id"] != ch.ID || events[0].Payload["team_id"] != team.ID {
		t.Errorf("Unexpected payload: %v", events[0].Payload)
	}
}

func TestRecalculateMissingChallenge(t *testing.T) {
	h := newHarness(t)

	_, err := h.contributions.Recalculate(context.Background(), "no-such-challenge")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "challenge" {
		t.Fatalf("Expected challenge NotFoundError, got %v", err)
	}
}

func TestRecordContribution(t *testing.T) {
	h := newHarness(t)
	alice := testutil.CreateUser(t, h.store, "alice")
	bob := testutil.CreateUser(t, h.store, "bob")
	team := testutil.CreateTeam(t, h.store, alice, bob)
	ch := testutil.CreateChallenge(t, h.store, team, models.ChallengeTypeXP, 1000, alice, bob)
	ctx := context.Background()

	if _, err := h.contributions.RecordContribution(ctx, ch.ID, alice.ID, 120); err != nil {
		t.Fatalf("RecordContribution failed: %v", err)
	}
	h.clock.Advance(time.Minute)
	res, err := h.contributions.RecordContribution(ctx, ch.ID, alice.ID, 30)
	if err != nil {
		t.Fatalf("RecordContribution failed: %v", err)
	}

	if res.Challenge.CurrentValue != 150 || res.Challenge.Progress != 15 {
		t.Errorf("current=%v progress=%v, want 150 and 15", res.Challenge.CurrentValue, res.Challenge.Progress)
	}
	if res.Challenge.Statistics.CompletionRate != 50 {
		t.Errorf("CompletionRate = %v, want 50", res.Challenge.Statistics.CompletionRate)
	}
	p := h.participation(t, ch.ID, alice.ID)
	if p.Contribution != 150 || !p.LastUpdated.Equal(h.clock.Now()) {
		t.Errorf("Ledger entry = %+v", p)
	}

	_, err = h.contributions.RecordContribution(ctx, ch.ID, "stranger", 10)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a user without a ledger entry, got %v", err)
	}
}

func TestRecordContributionInactiveEntry(t *testing.T) {
	h := newHarness(t)
	alice := testutil.CreateUser(t, h.store, "alice")
	bob := testutil.CreateUser(t, h.store, "bob")
	team := testutil.CreateTeam(t, h.store, alice, bob)
	ch := testutil.CreateChallenge(t, h.store, team, models.ChallengeTypeXP, 100, alice, bob)
	ctx := context.Background()

	if _, err := h.teams.LeaveChallenge(ctx, bob.ID, ch.ID); err != nil {
		t.Fatalf("LeaveChallenge failed: %v", err)
	}
	if _, err := h.contributions.RecordContribution(ctx, ch.ID, bob.ID, 10); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for inactive entry, got %v", err)
	}
}

func TestSetContribution(t *testing.T) {
	h := newHarness(t)
	alice := testutil.CreateUser(t, h.store, "alice")
	team := testutil.CreateTeam(t, h.store, alice)
	ch := testutil.CreateChallenge(t, h.store, team, models.ChallengeTypeLocations, 10, alice)
	ctx := context.Background()

	if _, err := h.contributions.SetContribution(ctx, ch.ID, alice.ID, 4); err != nil {
		t.Fatalf("SetContribution failed: %v", err)
	}
	res, err := h.contributions.SetContribution(ctx, ch.ID, alice.ID, 3)
	if err != nil {
		t.Fatalf("SetContribution failed: %v", err)
	}
	if res.Challenge.CurrentValue != 3 {
		t.Errorf("CurrentValue = %v, want 3", res.Challenge.CurrentValue)
	}
	if _, err := h.contributions.SetContribution(ctx, ch.ID, alice.ID, -1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for negative value, got %v", err)
	}
}

// TestConcurrentContributions runs many members writing at once. The ledger
// keeps every write and the final aggregate equals the ledger sum.
func TestConcurrentContributions(t *testing.T) {
	h := newHarness(t)
	owner := testutil.CreateUser(t, h.store, "owner")

	const members = 8
	const writesEach = 5
	users := make([]*models.User, members)
	for i := range users {
		users[i] = testutil.CreateUser(t, h.store, fmt.Sprintf("member%d", i))
	}
	team := testutil.CreateTeam(t, h.store, owner, users...)
	ch := testutil.CreateChallenge(t, h.store, team, models.ChallengeTypeXP, 100000, users...)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, u := range users {
		for j := 0; j < writesEach; j++ {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				if _, err := h.contributions.RecordContribution(ctx, ch.ID, userID, 10); err != nil {
					t.Errorf("RecordContribution failed: %v", err)
				}
			}(u.ID)
		}
	}
	wg.Wait()

	res, err := h.contributions.Recalculate(ctx, ch.ID)
	if err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}
	want := float64(members * writesEach * 10)
	if res.Challenge.CurrentValue != want {
		t.Errorf("CurrentValue = %v, want %v", res.Challenge.CurrentValue, want)
	}
	for _, u := range users {
		if got := h.participation(t, ch.ID, u.ID).Contribution; got != writesEach*10 {
			t.Errorf("Ledger for %s = %v, want %d", u.Username, got, writesEach*10)
		}
	}
}
