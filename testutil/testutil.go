// Package testutil provides an in-memory store and record builders for tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"snapquest/database"
	"snapquest/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewStore opens a migrated in-memory sqlite database private to the test.
// The pool holds a single connection, so everything inside a Transaction
// callback must go through the transaction's store.
func NewStore(t *testing.T) *database.GormStore {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	db, err := database.Open(sqlite.Open(dsn), logger.Silent)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	return database.NewStore(db, database.NewFeed())
}

// Clock is a settable time source for the Now fields of services.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{now: t.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Date returns a UTC instant, for readable fixtures.
func Date(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

// CreateUser stores a level 1 user with the given username
func CreateUser(t *testing.T, store database.Store, username string) *models.User {
	t.Helper()

	user := &models.User{
		ID:          uuid.NewString(),
		Username:    username,
		DisplayName: username,
		Level:       1,
	}
	if err := store.Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// CreateTeam stores an active team owned by owner with members added
func CreateTeam(t *testing.T, store database.Store, owner *models.User, members ...*models.User) *models.Team {
	t.Helper()
	ctx := context.Background()

	team := &models.Team{
		ID:        uuid.NewString(),
		Name:      owner.Username + "'s team",
		IsActive:  true,
		CreatorID: owner.ID,
	}
	if err := store.Create(ctx, team); err != nil {
		t.Fatalf("Failed to create test team: %v", err)
	}

	addMember(t, store, team.ID, owner.ID, models.TeamRoleOwner)
	for _, m := range members {
		addMember(t, store, team.ID, m.ID, models.TeamRoleMember)
	}
	return team
}

func addMember(t *testing.T, store database.Store, teamID, userID string, role models.TeamRole) {
	t.Helper()

	member := &models.TeamMember{
		ID:       models.TeamMemberID(teamID, userID),
		TeamID:   teamID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
		IsActive: true,
	}
	if err := store.Create(context.Background(), member); err != nil {
		t.Fatalf("Failed to add team member: %v", err)
	}
}

// CreateQuest stores an active quest worth 100 XP with two requirements.
// Options run before the insert.
func CreateQuest(t *testing.T, store database.Store, opts ...func(*models.Quest)) *models.Quest {
	t.Helper()

	quest := &models.Quest{
		ID:       uuid.NewString(),
		Title:    "Find the red door",
		Status:   models.QuestStatusActive,
		Location: models.GeoPoint{Lat: 51.5072, Lng: -0.1276},
		MinLevel: 1,
		BaseXP:   100,
		Requirements: []models.QuestRequirement{
			{Key: "door_visible", Description: "A red door is visible"},
			{Key: "daylight", Description: "Taken in daylight"},
		},
	}
	for _, opt := range opts {
		opt(quest)
	}
	if err := store.Create(context.Background(), quest); err != nil {
		t.Fatalf("Failed to create test quest: %v", err)
	}
	return quest
}

// CreateChallenge stores an active challenge with an empty ledger entry per
// participant
func CreateChallenge(t *testing.T, store database.Store, team *models.Team, typ models.ChallengeType, target float64, participants ...*models.User) *models.TeamChallenge {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ID)
	}
	challenge := &models.TeamChallenge{
		ID:           uuid.NewString(),
		TeamID:       team.ID,
		Name:         "Test challenge",
		Type:         typ,
		TargetValue:  target,
		Participants: ids,
		Status:       models.ChallengeStatusActive,
		CreatedBy:    team.CreatorID,
		CreatedAt:    now,
	}
	if err := store.Create(ctx, challenge); err != nil {
		t.Fatalf("Failed to create test challenge: %v", err)
	}

	for i, userID := range ids {
		p := &models.TeamChallengeParticipation{
			ID:          models.ParticipationID(challenge.ID, userID),
			ChallengeID: challenge.ID,
			UserID:      userID,
			TeamID:      team.ID,
			JoinedAt:    now.Add(time.Duration(i) * time.Second),
			LastUpdated: now,
			IsActive:    true,
		}
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("Failed to create test participation: %v", err)
		}
	}
	return challenge
}

// CreateContest stores an open contest for date (YYYY-MM-DD)
func CreateContest(t *testing.T, store database.Store, date, questID string) *models.DailyContest {
	t.Helper()

	contest := &models.DailyContest{
		ID:      models.ContestID(date),
		Date:    date,
		QuestID: questID,
		Status:  models.ContestStatusOpen,
	}
	if err := store.Create(context.Background(), contest); err != nil {
		t.Fatalf("Failed to create test contest: %v", err)
	}
	return contest
}

// CreateSubmission stores a submission by owner in contest
func CreateSubmission(t *testing.T, store database.Store, contest *models.DailyContest, questID string, owner *models.User) *models.Submission {
	t.Helper()

	sub := &models.Submission{
		ID:        uuid.NewString(),
		UserID:    owner.ID,
		QuestID:   questID,
		ContestID: contest.ID,
		PhotoURL:  "https://cdn.example.com/" + owner.Username + ".jpg",
	}
	if err := store.Create(context.Background(), sub); err != nil {
		t.Fatalf("Failed to create test submission: %v", err)
	}
	return sub
}

// Recorder is a Notifier that keeps every call.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

type Event struct {
	UserIDs []string
	Kind    string
	Payload map[string]any
}

func (r *Recorder) Notify(_ context.Context, userIDs []string, kind string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{UserIDs: userIDs, Kind: kind, Payload: payload})
}

// Events returns the recorded calls of kind ("" for all).
func (r *Recorder) Events(kind string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
