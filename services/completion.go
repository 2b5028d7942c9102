// services/completion.go - One-time team challenge completion
package services

import (
	"context"
	"log"
	"time"

	"snapquest/database"
	"snapquest/models"
)

// CompletionEvent is handed to the notifier as an opaque payload.
type CompletionEvent struct {
	ChallengeID string   `json:"challenge_id"`
	TeamID      string   `json:"team_id"`
	CompletedBy []string `json:"completed_by"`
}

func (e CompletionEvent) payload() map[string]any {
	return map[string]any{
		"challenge_id": e.ChallengeID,
		"team_id":      e.TeamID,
		"completed_by": e.CompletedBy,
	}
}

// CompletionDetector flips a challenge to completed the first time its
// progress reaches 100. The check is gated on the prior status, and the write
// is conditional on the stored status still being active, so replays and
// racing recalculations emit at most one event.
type CompletionDetector struct {
	Store    database.Store
	Notifier Notifier
	Now      func() time.Time
}

func NewCompletionDetector(store database.Store, notifier Notifier) *CompletionDetector {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &CompletionDetector{Store: store, Notifier: notifier, Now: time.Now}
}

// Observe is called after every recalculation with the status read before it.
// ch is updated in place to the stored state.
func (d *CompletionDetector) Observe(ctx context.Context, ch *models.TeamChallenge, prev models.ChallengeStatus, agg Aggregate) (bool, error) {
	if prev != models.ChallengeStatusActive || agg.Progress < 100 {
		return false, nil
	}

	now := d.Now()
	next := *ch
	next.Status = models.ChallengeStatusCompleted
	next.CompletedAt = &now
	next.Statistics.CompletedBy = agg.ActiveUserIDs

	applied, err := d.Store.UpdateIf(ctx, &next,
		[]database.Filter{database.Eq("status", models.ChallengeStatusActive)},
		"status", "completed_at", "stats_completed_by",
	)
	if err != nil {
		return false, err
	}
	if !applied {
		// Another writer moved it first; report what is stored.
		if err := d.Store.Get(ctx, ch.ID, ch); err != nil {
			return false, notFound(err, "challenge", ch.ID)
		}
		return false, nil
	}

	*ch = next
	event := CompletionEvent{ChallengeID: ch.ID, TeamID: ch.TeamID, CompletedBy: ch.Statistics.CompletedBy}
	log.Printf("🏆 Challenge %s completed by %d participants", ch.ID, len(event.CompletedBy))
	d.Notifier.Notify(ctx, event.CompletedBy, EventChallengeCompleted, event.payload())
	return true, nil
}
