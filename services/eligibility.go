// services/eligibility.go - Quest attempt eligibility
package services

import (
	"context"
	"fmt"
	"time"

	"snapquest/database"
	"snapquest/models"
)

// QuestReader is satisfied by QuestCache and by StoreQuests.
type QuestReader interface {
	Get(ctx context.Context, id string) (*models.Quest, error)
}

// StoreQuests reads quests straight from the store.
type StoreQuests struct {
	Store database.Store
}

func (s StoreQuests) Get(ctx context.Context, id string) (*models.Quest, error) {
	var q models.Quest
	if err := s.Store.Get(ctx, id, &q); err != nil {
		return nil, notFound(err, "quest", id)
	}
	return &q, nil
}

type Eligibility struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func denied(format string, args ...any) Eligibility {
	return Eligibility{Reason: fmt.Sprintf(format, args...)}
}

// EligibilityEvaluator decides whether a user may start an attempt. It only
// reads.
type EligibilityEvaluator struct {
	Store    database.Store
	Quests   QuestReader
	Now      func() time.Time
	Location *time.Location // wall clock for quest hour windows
}

func NewEligibilityEvaluator(store database.Store, quests QuestReader, loc *time.Location) *EligibilityEvaluator {
	if quests == nil {
		quests = StoreQuests{Store: store}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &EligibilityEvaluator{Store: store, Quests: quests, Now: time.Now, Location: loc}
}

// CanAttempt runs the checks in order and stops at the first failure.
func (e *EligibilityEvaluator) CanAttempt(ctx context.Context, userID, questID string) (Eligibility, error) {
	return e.evaluate(ctx, e.Store, e.Quests, userID, questID)
}

// evaluate runs every read against store and quests, so a transaction can
// pass its own handles.
func (e *EligibilityEvaluator) evaluate(ctx context.Context, store database.Store, quests QuestReader, userID, questID string) (Eligibility, error) {
	quest, err := quests.Get(ctx, questID)
	if err != nil {
		return Eligibility{}, err
	}
	var user models.User
	if err := store.Get(ctx, userID, &user); err != nil {
		return Eligibility{}, notFound(err, "user", userID)
	}

	now := e.Now()

	if quest.Status != models.QuestStatusActive {
		return denied("quest is not active"), nil
	}
	if quest.StartDate != nil && now.Before(*quest.StartDate) {
		return denied("quest opens on %s", quest.StartDate.Format("Jan 2, 2006")), nil
	}
	if quest.EndDate != nil && now.After(*quest.EndDate) {
		return denied("quest ended on %s", quest.EndDate.Format("Jan 2, 2006")), nil
	}

	if user.Level < quest.MinLevel {
		return denied("requires level %d (you are level %d)", quest.MinLevel, user.Level), nil
	}

	inProgress, err := store.Count(ctx, &models.QuestAttempt{},
		database.Eq("user_id", userID),
		database.Eq("quest_id", questID),
		database.Eq("status", models.AttemptInProgress),
	)
	if err != nil {
		return Eligibility{}, err
	}
	if inProgress > 0 {
		return denied("you already have an attempt in progress for this quest"), nil
	}

	if quest.MaxAttempts > 0 {
		total, err := store.Count(ctx, &models.QuestAttempt{},
			database.Eq("user_id", userID),
			database.Eq("quest_id", questID),
		)
		if err != nil {
			return Eligibility{}, err
		}
		if total >= int64(quest.MaxAttempts) {
			return denied("maximum attempts reached (%d)", quest.MaxAttempts), nil
		}
	}

	if w := quest.AvailableHours; w != nil && !w.Contains(now.In(e.Location).Hour()) {
		return denied("quest is only available between %02d:00 and %02d:00", w.StartHour, w.EndHour), nil
	}

	return Eligibility{Allowed: true}, nil
}
