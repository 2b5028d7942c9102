// services/contributions.go - Team challenge contribution ledger and aggregation
package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"snapquest/database"
	"snapquest/models"
)

const topContributorLimit = 5

// Aggregate is the derived state of a challenge, computed from its active
// participation records alone.
type Aggregate struct {
	CurrentValue        float64
	Progress            float64
	ActiveParticipants  int
	AverageContribution float64
	CompletionRate      float64
	TopContributors     []models.Contributor
	ActiveUserIDs       []string
}

// ComputeAggregate sums the active ledger. Inactive records are ignored.
func ComputeAggregate(target float64, parts []models.TeamChallengeParticipation) Aggregate {
	agg := Aggregate{ActiveUserIDs: make([]string, 0, len(parts))}
	active := make([]models.TeamChallengeParticipation, 0, len(parts))
	contributed := 0
	for _, p := range parts {
		if !p.IsActive {
			continue
		}
		active = append(active, p)
		agg.CurrentValue += p.Contribution
		agg.ActiveUserIDs = append(agg.ActiveUserIDs, p.UserID)
		if p.Contribution > 0 {
			contributed++
		}
	}
	sort.Strings(agg.ActiveUserIDs)

	agg.ActiveParticipants = len(active)
	if agg.ActiveParticipants > 0 {
		agg.AverageContribution = agg.CurrentValue / float64(agg.ActiveParticipants)
		agg.CompletionRate = float64(contributed) * 100 / float64(agg.ActiveParticipants)
	}
	if target > 0 {
		agg.Progress = min(100, agg.CurrentValue*100/target)
	}

	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.Contribution != b.Contribution {
			return a.Contribution > b.Contribution
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
	n := min(topContributorLimit, len(active))
	agg.TopContributors = make([]models.Contributor, 0, n)
	for _, p := range active[:n] {
		agg.TopContributors = append(agg.TopContributors, models.Contributor{
			UserID:       p.UserID,
			Contribution: p.Contribution,
			JoinedAt:     p.JoinedAt,
		})
	}
	return agg
}

type RecalcResult struct {
	Challenge models.TeamChallenge `json:"challenge"`
	// Completed is true only for the call that performed the completion.
	Completed bool `json:"completed"`
}

// ContributionAggregator owns writes to the participation ledger and the
// derived challenge aggregate. The aggregate is always re-derived from the
// ledger, never adjusted by a delta.
type ContributionAggregator struct {
	Store    database.Store
	Detector *CompletionDetector
	Now      func() time.Time
}

func NewContributionAggregator(store database.Store, detector *CompletionDetector) *ContributionAggregator {
	return &ContributionAggregator{Store: store, Detector: detector, Now: time.Now}
}

// RecordContribution adds delta to one member's ledger entry with a single
// atomic write and recalculates the challenge.
func (a *ContributionAggregator) RecordContribution(ctx context.Context, challengeID, userID string, delta float64) (*RecalcResult, error) {
	p, err := a.activeParticipation(ctx, challengeID, userID)
	if err != nil {
		return nil, err
	}

	if err := a.Store.Increment(ctx, p, p.ID, "contribution", delta); err != nil {
		return nil, notFound(err, "participation", p.ID)
	}
	p.LastUpdated = a.Now()
	if err := a.Store.Update(ctx, p, "last_updated"); err != nil {
		return nil, notFound(err, "participation", p.ID)
	}

	return a.Recalculate(ctx, challengeID)
}

// SetContribution overwrites one member's ledger entry, for challenge types
// whose contribution is a measured total rather than a running sum.
func (a *ContributionAggregator) SetContribution(ctx context.Context, challengeID, userID string, value float64) (*RecalcResult, error) {
	if value < 0 {
		return nil, fmt.Errorf("%w: contribution cannot be negative", ErrInvalidInput)
	}
	p, err := a.activeParticipation(ctx, challengeID, userID)
	if err != nil {
		return nil, err
	}

	p.Contribution = value
	p.LastUpdated = a.Now()
	if err := a.Store.Update(ctx, p, "contribution", "last_updated"); err != nil {
		return nil, notFound(err, "participation", p.ID)
	}

	return a.Recalculate(ctx, challengeID)
}

func (a *ContributionAggregator) activeParticipation(ctx context.Context, challengeID, userID string) (*models.TeamChallengeParticipation, error) {
	id := models.ParticipationID(challengeID, userID)
	var p models.TeamChallengeParticipation
	if err := a.Store.Get(ctx, id, &p); err != nil {
		return nil, notFound(err, "participation", id)
	}
	if !p.IsActive {
		return nil, fmt.Errorf("%w: %s is no longer participating in challenge %s", ErrInvalidInput, userID, challengeID)
	}
	return &p, nil
}

// Recalculate re-derives the challenge aggregate from every active ledger
// entry, writes it back, and lets the detector complete the challenge.
// Two racing calls on the same challenge can leave a slightly stale
// aggregate; the next call corrects it.
func (a *ContributionAggregator) Recalculate(ctx context.Context, challengeID string) (*RecalcResult, error) {
	var ch models.TeamChallenge
	if err := a.Store.Get(ctx, challengeID, &ch); err != nil {
		return nil, notFound(err, "challenge", challengeID)
	}

	var parts []models.TeamChallengeParticipation
	if err := a.Store.Query(ctx, &parts, database.Query{
		Filters: []database.Filter{
			database.Eq("challenge_id", challengeID),
			database.Eq("is_active", true),
		},
	}); err != nil {
		return nil, err
	}

	prevStatus := ch.Status
	agg := ComputeAggregate(ch.TargetValue, parts)

	ch.Participants = agg.ActiveUserIDs
	ch.CurrentValue = agg.CurrentValue
	ch.Progress = agg.Progress
	ch.Statistics.ActiveParticipants = agg.ActiveParticipants
	ch.Statistics.AverageContribution = agg.AverageContribution
	ch.Statistics.CompletionRate = agg.CompletionRate
	ch.Statistics.TopContributors = agg.TopContributors
	ch.UpdatedAt = a.Now()

	if err := a.Store.Update(ctx, &ch,
		"participants", "current_value", "progress",
		"stats_active_participants", "stats_average_contribution",
		"stats_completion_rate", "stats_top_contributors", "updated_at",
	); err != nil {
		return nil, notFound(err, "challenge", challengeID)
	}

	result := &RecalcResult{Challenge: ch}
	if a.Detector != nil {
		completed, err := a.Detector.Observe(ctx, &result.Challenge, prevStatus, agg)
		if err != nil {
			return nil, err
		}
		result.Completed = completed
	}
	return result, nil
}
