// database/feed.go - In-process change feed for store writes
package database

import (
	"sync"
)

type ChangeKind string

const (
	ChangeSet    ChangeKind = "set"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change describes one committed write. Record is nil for deletes and must be
// treated as read-only by subscribers.
type Change struct {
	Collection string     `json:"collection"`
	Key        string     `json:"key"`
	Kind       ChangeKind `json:"kind"`
	Record     Record     `json:"record,omitempty"`
}

type subscriber struct {
	collection string
	fn         func(Change)
}

// Feed fans committed changes out to subscribers. Callbacks run synchronously
// on the writing goroutine, so they must not block.
type Feed struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]subscriber
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]subscriber)}
}

// Subscribe registers fn for changes to collection ("" for every collection).
// The caller owns the returned handle and must Unsubscribe it.
func (f *Feed) Subscribe(collection string, fn func(Change)) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	f.subs[f.next] = subscriber{collection: collection, fn: fn}
	return &Subscription{feed: f, id: f.next}
}

func (f *Feed) Publish(ch Change) {
	f.mu.RLock()
	targets := make([]func(Change), 0, len(f.subs))
	for _, s := range f.subs {
		if s.collection == "" || s.collection == ch.Collection {
			targets = append(targets, s.fn)
		}
	}
	f.mu.RUnlock()

	for _, fn := range targets {
		fn(ch)
	}
}

// Len returns the number of live subscriptions.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *Feed) remove(id uint64) {
	f.mu.Lock()
	delete(f.subs, id)
	f.mu.Unlock()
}

// Subscription is a handle on one feed registration.
type Subscription struct {
	feed *Feed
	id   uint64
	once sync.Once
}

// Unsubscribe stops delivery. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.feed.remove(s.id)
	})
}
