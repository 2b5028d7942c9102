// services/attempts.go - Quest attempt lifecycle
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"snapquest/database"
	"snapquest/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const contributionFanOut = 4

// AttemptTracker owns the in-progress -> terminal transitions of attempts.
// Every transition is a conditional write on the attempt, so a retried call on
// a terminal attempt fails without granting anything. Completion commits the
// transition and the reward in one transaction.
type AttemptTracker struct {
	Store         database.Store
	Eligibility   *EligibilityEvaluator
	Contributions *ContributionAggregator
	Notifier      Notifier
	Rewards       RewardPolicy
	Now           func() time.Time
}

func NewAttemptTracker(store database.Store, eligibility *EligibilityEvaluator, contributions *ContributionAggregator, notifier Notifier, rewards RewardPolicy) *AttemptTracker {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &AttemptTracker{
		Store:         store,
		Eligibility:   eligibility,
		Contributions: contributions,
		Notifier:      notifier,
		Rewards:       rewards,
		Now:           time.Now,
	}
}

// CompletionResult describes one successful completion. ContributionErr is
// set when some challenge updates failed; the completion itself stands.
type CompletionResult struct {
	Attempt         models.QuestAttempt `json:"attempt"`
	Reward          Reward              `json:"reward"`
	Progression     Progression         `json:"progression"`
	Challenges      []RecalcResult      `json:"challenges"`
	ContributionErr error               `json:"-"`
}

// Get returns one attempt.
func (t *AttemptTracker) Get(ctx context.Context, attemptID string) (*models.QuestAttempt, error) {
	var a models.QuestAttempt
	if err := t.Store.Get(ctx, attemptID, &a); err != nil {
		return nil, notFound(err, "attempt", attemptID)
	}
	return &a, nil
}

// Start re-checks eligibility inside a transaction and creates the attempt.
// On stores without serializable transactions two racing starts can both
// succeed; each resulting attempt still resolves exactly once.
func (t *AttemptTracker) Start(ctx context.Context, userID, questID string, location models.GeoPoint) (*models.QuestAttempt, error) {
	attempt := &models.QuestAttempt{
		ID:            uuid.NewString(),
		QuestID:       questID,
		UserID:        userID,
		Status:        models.AttemptInProgress,
		StartLocation: location,
	}

	err := t.Store.Transaction(ctx, func(tx database.Store) error {
		res, err := t.Eligibility.evaluate(ctx, tx, StoreQuests{Store: tx}, userID, questID)
		if err != nil {
			return err
		}
		if !res.Allowed {
			return &IneligibleError{Reason: res.Reason}
		}
		attempt.StartedAt = t.Now()
		return tx.Create(ctx, attempt)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🎯 Attempt %s started: user=%s quest=%s", attempt.ID, userID, questID)
	return attempt, nil
}

// Cancel abandons an attempt. Only its owner may cancel it and no reward is
// granted.
func (t *AttemptTracker) Cancel(ctx context.Context, attemptID, userID string) (*models.QuestAttempt, error) {
	attempt, err := t.load(ctx, attemptID, models.AttemptAbandoned)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, fmt.Errorf("%w: attempt %s belongs to another user", ErrNotAuthorized, attemptID)
	}
	if err := transition(ctx, t.Store, attempt, models.AttemptAbandoned, "status"); err != nil {
		return nil, err
	}
	return attempt, nil
}

// Fail moves an in-progress attempt to failed with a reason.
func (t *AttemptTracker) Fail(ctx context.Context, attemptID, reason string) (*models.QuestAttempt, error) {
	attempt, err := t.load(ctx, attemptID, models.AttemptFailed)
	if err != nil {
		return nil, err
	}
	attempt.FailureReason = reason
	if err := transition(ctx, t.Store, attempt, models.AttemptFailed, "status", "failure_reason"); err != nil {
		return nil, err
	}
	return attempt, nil
}

// Complete finishes an attempt, grants its reward, and fans contribution
// updates out to the user's active xp and quests challenges.
func (t *AttemptTracker) Complete(ctx context.Context, attemptID, submissionID string) (*CompletionResult, error) {
	attempt, err := t.load(ctx, attemptID, models.AttemptCompleted)
	if err != nil {
		return nil, err
	}

	quest, err := t.Eligibility.Quests.Get(ctx, attempt.QuestID)
	if err != nil {
		return nil, err
	}

	// The bonus claim, the transition and the XP grant commit together, so a
	// failed grant leaves the attempt in progress and retryable.
	now := t.Now()
	var (
		reward      Reward
		progression Progression
	)
	err = t.Store.Transaction(ctx, func(tx database.Store) error {
		completedBefore, err := tx.Count(ctx, &models.QuestAttempt{},
			database.Eq("user_id", attempt.UserID),
			database.Eq("quest_id", attempt.QuestID),
			database.Eq("status", models.AttemptCompleted),
		)
		if err != nil {
			return err
		}
		first, err := tx.CreateIfAbsent(ctx, &models.QuestCompletion{
			ID:          models.QuestCompletionID(attempt.UserID, attempt.QuestID),
			UserID:      attempt.UserID,
			QuestID:     attempt.QuestID,
			AttemptID:   attempt.ID,
			CompletedAt: now,
		})
		if err != nil {
			return err
		}

		reward = t.Rewards.Compute(quest, attempt.StartedAt, now, first && completedBefore == 0)
		attempt.CompletedAt = &now
		attempt.ResultingSubmissionID = submissionID
		attempt.XPEarned = reward.Total
		if err := transition(ctx, tx, attempt, models.AttemptCompleted,
			"status", "completed_at", "resulting_submission_id", "xp_earned",
		); err != nil {
			return err
		}

		progression, err = grantXP(ctx, tx, attempt.UserID, reward.Total)
		if err != nil {
			return fmt.Errorf("grant xp for attempt %s: %w", attemptID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Attempt %s completed: +%d XP (level %d)", attemptID, reward.Total, progression.Level)

	t.Notifier.Notify(ctx, []string{attempt.UserID}, EventQuestCompleted, map[string]any{
		"attempt_id": attempt.ID,
		"quest_id":   attempt.QuestID,
		"xp_earned":  reward.Total,
		"level":      progression.Level,
		"leveled_up": progression.LeveledUp,
	})

	result := &CompletionResult{Attempt: *attempt, Reward: reward, Progression: progression}
	result.Challenges, result.ContributionErr = t.fanOutContributions(ctx, attempt.UserID, reward.Total)
	return result, nil
}

// load reads an attempt that is about to move to "to". A missing or terminal
// attempt is a TransitionError.
func (t *AttemptTracker) load(ctx context.Context, attemptID string, to models.AttemptStatus) (*models.QuestAttempt, error) {
	var attempt models.QuestAttempt
	if err := t.Store.Get(ctx, attemptID, &attempt); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, &TransitionError{AttemptID: attemptID, To: to}
		}
		return nil, err
	}
	if attempt.Status.IsTerminal() {
		return nil, &TransitionError{AttemptID: attemptID, From: attempt.Status, To: to}
	}
	return &attempt, nil
}

// transition writes the new status only if the stored attempt is still in
// progress.
func transition(ctx context.Context, store database.Store, attempt *models.QuestAttempt, to models.AttemptStatus, columns ...string) error {
	attempt.Status = to
	applied, err := store.UpdateIf(ctx, attempt,
		[]database.Filter{database.Eq("status", models.AttemptInProgress)},
		columns...,
	)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	var stored models.QuestAttempt
	if err := store.Get(ctx, attempt.ID, &stored); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return &TransitionError{AttemptID: attempt.ID, To: to}
		}
		return err
	}
	return &TransitionError{AttemptID: attempt.ID, From: stored.Status, To: to}
}

// fanOutContributions credits every active incremental challenge the user
// participates in. Failures are logged and joined; the successes are kept.
func (t *AttemptTracker) fanOutContributions(ctx context.Context, userID string, xp int) ([]RecalcResult, error) {
	if t.Contributions == nil {
		return nil, nil
	}

	var parts []models.TeamChallengeParticipation
	if err := t.Store.Query(ctx, &parts, database.Query{
		Filters: []database.Filter{
			database.Eq("user_id", userID),
			database.Eq("is_active", true),
		},
	}); err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.ChallengeID)
	}
	var challenges []models.TeamChallenge
	if err := t.Store.Query(ctx, &challenges, database.Query{
		Filters: []database.Filter{
			database.In("id", ids),
			database.Eq("status", models.ChallengeStatusActive),
			database.In("type", []models.ChallengeType{models.ChallengeTypeXP, models.ChallengeTypeQuests}),
		},
		OrderBy: "id",
	}); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []RecalcResult
		errs    []error
	)
	var g errgroup.Group
	g.SetLimit(contributionFanOut)
	for _, ch := range challenges {
		ch := ch
		delta := 1.0
		if ch.Type == models.ChallengeTypeXP {
			delta = float64(xp)
		}
		g.Go(func() error {
			res, err := t.Contributions.RecordContribution(ctx, ch.ID, userID, delta)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("⚠️ Contribution to challenge %s for %s failed: %v", ch.ID, userID, err)
				errs = append(errs, fmt.Errorf("challenge %s: %w", ch.ID, err))
				return nil
			}
			results = append(results, *res)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
