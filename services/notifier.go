// services/notifier.go - Event delivery seam
package services

import (
	"context"
	"log"
	"time"

	"snapquest/database"
	"snapquest/models"

	"github.com/google/uuid"
)

const (
	EventChallengeCompleted = "challenge_completed"
	EventQuestCompleted     = "quest_completed"
	EventContestFinalized   = "contest_finalized"
)

// Notifier delivers user-facing events. The core only decides when to call
// it; delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, userIDs []string, kind string, payload map[string]any)
}

type NotifierFunc func(ctx context.Context, userIDs []string, kind string, payload map[string]any)

func (f NotifierFunc) Notify(ctx context.Context, userIDs []string, kind string, payload map[string]any) {
	f(ctx, userIDs, kind, payload)
}

// StoreNotifier persists one notification per recipient. Clients receive
// them through the change feed or by polling.
type StoreNotifier struct {
	Store database.Store
	Now   func() time.Time
}

func NewStoreNotifier(store database.Store) *StoreNotifier {
	return &StoreNotifier{Store: store, Now: time.Now}
}

func (n *StoreNotifier) Notify(ctx context.Context, userIDs []string, kind string, payload map[string]any) {
	now := n.Now()
	for _, userID := range userIDs {
		note := &models.Notification{
			ID:        uuid.NewString(),
			UserID:    userID,
			Kind:      kind,
			Payload:   payload,
			CreatedAt: now,
		}
		if err := n.Store.Create(ctx, note); err != nil {
			log.Printf("⚠️ Failed to store %s notification for %s: %v", kind, userID, err)
		}
	}
}

// ListNotifications returns a user's most recent notifications.
func ListNotifications(ctx context.Context, store database.Store, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var notes []models.Notification
	err := store.Query(ctx, &notes, database.Query{
		Filters: []database.Filter{database.Eq("user_id", userID)},
		OrderBy: "created_at DESC",
		Limit:   limit,
	})
	return notes, err
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, []string, string, map[string]any) {}
