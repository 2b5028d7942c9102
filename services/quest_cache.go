// services/quest_cache.go - Read-through quest cache
package services

import (
	"context"
	"slices"
	"sync"

	"snapquest/database"
	"snapquest/models"

	lru "github.com/hashicorp/golang-lru"
)

// QuestCache keeps recently read quests in memory and drops an entry whenever
// the quests collection reports a change for it.
type QuestCache struct {
	store database.Store
	cache *lru.Cache
	sub   *database.Subscription

	// gen counts invalidations; a read that raced one is not cached.
	mu  sync.Mutex
	gen uint64
}

func NewQuestCache(store database.Store, size int) (*QuestCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}

	c := &QuestCache{store: store, cache: cache}
	c.sub = store.OnChange(models.Quest{}.TableName(), func(ch database.Change) {
		c.mu.Lock()
		c.gen++
		c.cache.Remove(ch.Key)
		c.mu.Unlock()
	})
	return c, nil
}

// Get returns a copy of the quest so callers cannot mutate the cached value.
func (c *QuestCache) Get(ctx context.Context, id string) (*models.Quest, error) {
	if v, ok := c.cache.Get(id); ok {
		return copyQuest(v.(models.Quest)), nil
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	var q models.Quest
	if err := c.store.Get(ctx, id, &q); err != nil {
		return nil, notFound(err, "quest", id)
	}

	c.mu.Lock()
	if c.gen == gen {
		c.cache.Add(id, q)
	}
	c.mu.Unlock()
	return copyQuest(q), nil
}

func copyQuest(q models.Quest) *models.Quest {
	q.Requirements = slices.Clone(q.Requirements)
	if q.AvailableHours != nil {
		w := *q.AvailableHours
		q.AvailableHours = &w
	}
	if q.StartDate != nil {
		d := *q.StartDate
		q.StartDate = &d
	}
	if q.EndDate != nil {
		d := *q.EndDate
		q.EndDate = &d
	}
	return &q
}

func (c *QuestCache) Len() int {
	return c.cache.Len()
}

// Close releases the change-feed subscription.
func (c *QuestCache) Close() {
	c.sub.Unsubscribe()
}
