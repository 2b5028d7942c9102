package services

import (
	"context"
	"errors"
	"testing"

	"snapquest/database"
	"snapquest/models"
	"snapquest/testutil"
)

func TestQuestCacheInvalidatesOnWrite(t *testing.T) {
	h := newHarness(t)
	quest := testutil.CreateQuest(t, h.store)
	ctx := context.Background()

	before := h.store.Feed().Len()
	cache, err := NewQuestCache(h.store, 16)
	if err != nil {
		t.Fatalf("NewQuestCache failed: %v", err)
	}
	if h.store.Feed().Len() != before+1 {
		t.Fatalf("Expected the cache to subscribe to the feed")
	}

	got, err := cache.Get(ctx, quest.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got.Title = "mutated by caller"
	if cache.Len() != 1 {
		t.Fatalf("Expected 1 cached quest, got %d", cache.Len())
	}
	again, _ := cache.Get(ctx, quest.ID)
	if again.Title != quest.Title {
		t.Errorf("Cached value was mutated through a returned pointer: %q", again.Title)
	}

	quest.Title = "Find the blue door"
	if err := h.store.Update(ctx, quest, "title"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("Expected the write to evict the quest, %d left", cache.Len())
	}
	fresh, err := cache.Get(ctx, quest.ID)
	if err != nil || fresh.Title != "Find the blue door" {
		t.Errorf("Expected the updated quest, got %+v (%v)", fresh, err)
	}

	if _, err := cache.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	cache.Close()
	cache.Close()
	if h.store.Feed().Len() != before {
		t.Errorf("Close should release the subscription")
	}
}

// archivingStore archives the quest right after its first read, as if another
// writer landed between the cache's read and its fill.
type archivingStore struct {
	database.Store
	archived bool
}

func (s *archivingStore) Get(ctx context.Context, id string, dst database.Record) error {
	if err := s.Store.Get(ctx, id, dst); err != nil {
		return err
	}
	if q, ok := dst.(*models.Quest); ok && !s.archived {
		s.archived = true
		fresh := *q
		fresh.Status = models.QuestStatusArchived
		return s.Store.Update(ctx, &fresh, "status")
	}
	return nil
}

func TestQuestCacheSkipsFillAfterRacingWrite(t *testing.T) {
	h := newHarness(t)
	quest := testutil.CreateQuest(t, h.store)
	ctx := context.Background()

	cache, err := NewQuestCache(&archivingStore{Store: h.store}, 16)
	if err != nil {
		t.Fatalf("NewQuestCache failed: %v", err)
	}
	defer cache.Close()

	stale, err := cache.Get(ctx, quest.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stale.Status != models.QuestStatusActive {
		t.Fatalf("First read should see the quest before the racing write, got %s", stale.Status)
	}
	if cache.Len() != 0 {
		t.Errorf("A read that raced an invalidation was cached")
	}

	fresh, err := cache.Get(ctx, quest.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fresh.Status != models.QuestStatusArchived {
		t.Errorf("Status = %s, want archived", fresh.Status)
	}
}

func TestQuestCacheCopiesRequirements(t *testing.T) {
	h := newHarness(t)
	quest := testutil.CreateQuest(t, h.store)
	ctx := context.Background()

	cache, err := NewQuestCache(h.store, 16)
	if err != nil {
		t.Fatalf("NewQuestCache failed: %v", err)
	}
	defer cache.Close()

	got, err := cache.Get(ctx, quest.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Requirements) == 0 {
		t.Fatalf("Fixture quest should carry requirements")
	}
	want := got.Requirements[0].Key
	got.Requirements[0].Key = "mutated"

	again, _ := cache.Get(ctx, quest.ID)
	if again.Requirements[0].Key != want {
		t.Errorf("Cached requirements were mutated through a returned quest: %q", again.Requirements[0].Key)
	}
}
