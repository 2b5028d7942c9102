package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"snapquest/database"
	"snapquest/models"
	"snapquest/testutil"
)

func TestVotingWindowStates(t *testing.T) {
	contest := &models.DailyContest{ID: models.ContestID("2024-05-01"), Date: "2024-05-01"}
	w := VotingWindow{OpenHour: 18, Location: time.UTC}

	tests := []struct {
		at   time.Time
		want VotingState
	}{
		{testutil.Date(2024, time.April, 30, 20, 0), VotingClosed},
		{testutil.Date(2024, time.May, 1, 0, 0), VotingNotStarted},
		{testutil.Date(2024, time.May, 1, 12, 0), VotingNotStarted},
		{testutil.Date(2024, time.May, 1, 17, 59), VotingNotStarted},
		{testutil.Date(2024, time.May, 1, 18, 0), VotingOpen},
		{testutil.Date(2024, time.May, 1, 23, 59), VotingOpen},
		{testutil.Date(2024, time.May, 2, 0, 0), VotingClosed},
		{testutil.Date(2024, time.May, 2, 19, 0), VotingClosed},
	}

	for _, tt := range tests {
		if got := w.StateAt(contest, tt.at); got != tt.want {
			t.Errorf("StateAt(%s) = %s, want %s", tt.at.Format(time.RFC3339), got, tt.want)
		}
	}
}

func TestVotingWindowUsesContestTimezone(t *testing.T) {
	contest := &models.DailyContest{Date: "2024-05-01"}
	w := VotingWindow{OpenHour: 18, Location: time.FixedZone("UTC+2", 2*60*60)}

	if got := w.StateAt(contest, testutil.Date(2024, time.May, 1, 15, 59)); got != VotingNotStarted {
		t.Errorf("15:59 UTC = %s, want NOT_STARTED", got)
	}
	if got := w.StateAt(contest, testutil.Date(2024, time.May, 1, 16, 0)); got != VotingOpen {
		t.Errorf("16:00 UTC = %s, want OPEN", got)
	}
	if got := w.StateAt(contest, testutil.Date(2024, time.May, 1, 22, 0)); got != VotingClosed {
		t.Errorf("22:00 UTC is the next local day, got %s", got)
	}
}

func TestVotingWindowInvalidDate(t *testing.T) {
	w := VotingWindow{OpenHour: 18, Now: func() time.Time { return testutil.Date(2024, time.May, 1, 19, 0) }}
	if w.IsVotingActive(&models.DailyContest{Date: "May 1st"}) {
		t.Errorf("Contest with an unparseable date should not accept votes")
	}
}

type votingFixture struct {
	h          *harness
	owner      *models.User
	voter      *models.User
	quest      *models.Quest
	contest    *models.DailyContest
	submission *models.Submission
}

func newVotingFixture(t *testing.T) *votingFixture {
	t.Helper()
	h := newHarness(t)
	f := &votingFixture{h: h}
	f.owner = testutil.CreateUser(t, h.store, "owner")
	f.voter = testutil.CreateUser(t, h.store, "voter")
	f.quest = testutil.CreateQuest(t, h.store)
	f.contest = testutil.CreateContest(t, h.store, "2024-05-01", f.quest.ID)
	f.submission = testutil.CreateSubmission(t, h.store, f.contest, f.quest.ID, f.owner)
	return f
}

func fullBallot(voterID string) Ballot {
	return Ballot{
		VoterID:            voterID,
		PhotoQualityRating: 4,
		RequirementVotes:   map[string]bool{"door_visible": true, "daylight": false},
	}
}

// TestSubmitBallotThroughTheDay follows one voter across 2024-05-01.
func TestSubmitBallotThroughTheDay(t *testing.T) {
	f := newVotingFixture(t)
	ctx := context.Background()

	f.h.clock.Set(testutil.Date(2024, time.May, 1, 12, 0))
	if _, _, err := f.h.contests.SubmitBallot(ctx, f.submission.ID, fullBallot(f.voter.ID)); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("12:00: expected ErrVotingClosed, got %v", err)
	}
	if n := f.h.count(t, &models.SubmissionVote{}); n != 0 {
		t.Fatalf("Rejected ballot was stored")
	}

	f.h.clock.Set(testutil.Date(2024, time.May, 1, 19, 0))
	vote, sub, err := f.h.contests.SubmitBallot(ctx, f.submission.ID, fullBallot(f.voter.ID))
	if err != nil {
		t.Fatalf("19:00: expected ballot accepted, got %v", err)
	}
	if vote.ID != models.BallotID(f.submission.ID, f.voter.ID) || vote.VotingContext != models.VotingContextGlobal {
		t.Errorf("Unexpected ballot: %+v", vote)
	}
	if sub.VoteCount != 1 || sub.AverageRating != 4 || sub.RequirementScore != 50 || sub.OverallScore != 65 {
		t.Errorf("Unexpected score: count=%d avg=%v req=%v overall=%v", sub.VoteCount, sub.AverageRating, sub.RequirementScore, sub.OverallScore)
	}

	f.h.clock.Set(testutil.Date(2024, time.May, 1, 20, 0))
	if _, _, err := f.h.contests.SubmitBallot(ctx, f.submission.ID, fullBallot(f.voter.ID)); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("20:00: expected ErrAlreadyVoted, got %v", err)
	}

	// A duplicate after the window closes still reports the duplicate first.
	f.h.clock.Set(testutil.Date(2024, time.May, 2, 9, 0))
	if _, _, err := f.h.contests.SubmitBallot(ctx, f.submission.ID, fullBallot(f.voter.ID)); !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("Next day: expected ErrAlreadyVoted, got %v", err)
	}
	if n := f.h.count(t, &models.SubmissionVote{}); n != 1 {
		t.Errorf("Expected 1 ballot stored, got %d", n)
	}
}

func TestSubmitBallotRejections(t *testing.T) {
	tests := []struct {
		name        string
		ballot      func(f *votingFixture) Ballot
		wantErr     error
		wantMissing []string
	}{
		{
			name: "self vote",
			ballot: func(f *votingFixture) Ballot {
				return fullBallot(f.owner.ID)
			},
			wantErr: ErrSelfVote,
		},
		{
			name: "missing requirement vote",
			ballot: func(f *votingFixture) Ballot {
				b := fullBallot(f.voter.ID)
				delete(b.RequirementVotes, "daylight")
				return b
			},
			wantErr:     ErrIncompleteBallot,
			wantMissing: []string{"daylight"},
		},
		{
			name: "no requirement votes",
			ballot: func(f *votingFixture) Ballot {
				b := fullBallot(f.voter.ID)
				b.RequirementVotes = nil
				return b
			},
			wantErr:     ErrIncompleteBallot,
			wantMissing: []string{"daylight", "door_visible"},
		},
		{
			name: "rating below range",
			ballot: func(f *votingFixture) Ballot {
				b := fullBallot(f.voter.ID)
				b.PhotoQualityRating = 0
				return b
			},
			wantErr: ErrIncompleteBallot,
		},
		{
			name: "rating above range",
			ballot: func(f *votingFixture) Ballot {
				b := fullBallot(f.voter.ID)
				b.PhotoQualityRating = 6
				return b
			},
			wantErr: ErrIncompleteBallot,
		},
		{
			name: "team vote without team",
			ballot: func(f *votingFixture) Ballot {
				b := fullBallot(f.voter.ID)
				b.VotingContext = models.VotingContextTeam
				return b
			},
			wantErr: ErrIncompleteBallot,
		},
		{
			name: "global vote with team",
			ballot: func(f *votingFixture) Ballot {
				b := fullBallot(f.voter.ID)
				b.TeamID = "team-1"
				return b
			},
			wantErr: ErrIncompleteBallot,
		},
		{
			name: "unknown submission",
			ballot: func(f *votingFixture) Ballot {
				f.submission = &models.Submission{ID: "missing"}
				return fullBallot(f.voter.ID)
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newVotingFixture(t)
			f.h.clock.Set(testutil.Date(2024, time.May, 1, 19, 0))

			ballot := tt.ballot(f)
			_, _, err := f.h.contests.SubmitBallot(context.Background(), f.submission.ID, ballot)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantMissing != nil {
				var ib *IncompleteBallotError
				if !errors.As(err, &ib) || !reflect.DeepEqual(ib.Missing, tt.wantMissing) {
					t.Errorf("Missing = %v, want %v", ib, tt.wantMissing)
				}
			}
			if n := f.h.count(t, &models.SubmissionVote{}); n != 0 {
				t.Errorf("Rejected ballot persisted %d records", n)
			}
		})
	}
}

func TestSubmitTeamBallot(t *testing.T) {
	f := newVotingFixture(t)
	f.h.clock.Set(testutil.Date(2024, time.May, 1, 21, 30))

	b := fullBallot(f.voter.ID)
	b.VotingContext = models.VotingContextTeam
	b.TeamID = "team-1"
	vote, _, err := f.h.contests.SubmitBallot(context.Background(), f.submission.ID, b)
	if err != nil {
		t.Fatalf("SubmitBallot failed: %v", err)
	}
	if vote.TeamID != "team-1" || vote.VotingContext != models.VotingContextTeam {
		t.Errorf("Unexpected ballot: %+v", vote)
	}
}

func TestScoreSubmission(t *testing.T) {
	keys := []string{"door_visible", "daylight"}
	ballot := func(rating int, door, daylight bool) models.SubmissionVote {
		return models.SubmissionVote{
			PhotoQualityRating: rating,
			RequirementVotes:   map[string]bool{"door_visible": door, "daylight": daylight},
		}
	}

	tests := []struct {
		name    string
		keys    []string
		ballots []models.SubmissionVote
		want    SubmissionScore
	}{
		{
			name: "no ballots",
			keys: keys,
			want: SubmissionScore{},
		},
		{
			name: "majority per requirement",
			keys: keys,
			ballots: []models.SubmissionVote{
				ballot(5, true, true),
				ballot(4, true, false),
				ballot(3, false, false),
			},
			want: SubmissionScore{VoteCount: 3, AverageRating: 4, RequirementScore: 50, OverallScore: 65},
		},
		{
			name: "a tie is not a majority",
			keys: keys,
			ballots: []models.SubmissionVote{
				ballot(5, true, true),
				ballot(5, false, true),
			},
			want: SubmissionScore{VoteCount: 2, AverageRating: 5, RequirementScore: 50, OverallScore: 75},
		},
		{
			name:    "quest without requirements",
			ballots: []models.SubmissionVote{{PhotoQualityRating: 2}},
			want:    SubmissionScore{VoteCount: 1, AverageRating: 2, RequirementScore: 100, OverallScore: 70},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreSubmission(tt.keys, tt.ballots)
			if got.VoteCount != tt.want.VoteCount || !approx(got.AverageRating, tt.want.AverageRating) ||
				!approx(got.RequirementScore, tt.want.RequirementScore) || !approx(got.OverallScore, tt.want.OverallScore) {
				t.Errorf("ScoreSubmission = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRescoreAcrossVoters(t *testing.T) {
	f := newVotingFixture(t)
	f.h.clock.Set(testutil.Date(2024, time.May, 1, 19, 0))
	ctx := context.Background()

	second := testutil.CreateUser(t, f.h.store, "second")
	if _, _, err := f.h.contests.SubmitBallot(ctx, f.submission.ID, fullBallot(f.voter.ID)); err != nil {
		t.Fatalf("First ballot failed: %v", err)
	}
	b := Ballot{
		VoterID:            second.ID,
		PhotoQualityRating: 2,
		RequirementVotes:   map[string]bool{"door_visible": true, "daylight": true},
	}
	_, sub, err := f.h.contests.SubmitBallot(ctx, f.submission.ID, b)
	if err != nil {
		t.Fatalf("Second ballot failed: %v", err)
	}

	// door_visible 2/2 met, daylight 1/2 not met.
	if sub.VoteCount != 2 || sub.AverageRating != 3 || sub.RequirementScore != 50 || sub.OverallScore != 55 {
		t.Errorf("Unexpected score: %+v", sub)
	}
}

// failingBallotReads fails every ballot query while failing is set.
type failingBallotReads struct {
	database.Store
	failing bool
}

func (s *failingBallotReads) Query(ctx context.Context, dst any, q database.Query) error {
	if _, ok := dst.(*[]models.SubmissionVote); ok && s.failing {
		return errors.New("replica unavailable")
	}
	return s.Store.Query(ctx, dst, q)
}

func TestSubmitBallotKeepsStoredBallotWhenRescoreFails(t *testing.T) {
	f := newVotingFixture(t)
	ctx := context.Background()
	f.h.clock.Set(testutil.Date(2024, time.May, 1, 19, 0))

	store := &failingBallotReads{Store: f.h.store, failing: true}
	f.h.contests.Store = store

	vote, sub, err := f.h.contests.SubmitBallot(ctx, f.submission.ID, fullBallot(f.voter.ID))
	if err != nil {
		t.Fatalf("A stored ballot should be reported as accepted, got %v", err)
	}
	if vote == nil || sub == nil || sub.VoteCount != 0 {
		t.Errorf("Expected the ballot and the unscored submission, got %+v %+v", vote, sub)
	}
	if n := f.h.count(t, &models.SubmissionVote{}); n != 1 {
		t.Fatalf("Expected the ballot stored, got %d", n)
	}
	if _, _, err := f.h.contests.SubmitBallot(ctx, f.submission.ID, fullBallot(f.voter.ID)); !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("Expected ErrAlreadyVoted on retry, got %v", err)
	}

	// The next ballot rescores from every stored vote.
	store.failing = false
	other := testutil.CreateUser(t, f.h.store, "voter2")
	_, sub, err = f.h.contests.SubmitBallot(ctx, f.submission.ID, fullBallot(other.ID))
	if err != nil {
		t.Fatalf("Second ballot failed: %v", err)
	}
	if sub.VoteCount != 2 {
		t.Errorf("VoteCount = %d, want 2", sub.VoteCount)
	}
}
