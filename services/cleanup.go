// services/cleanup.go - Background sweeps for stale attempts and overdue challenges
package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"snapquest/database"
	"snapquest/models"
)

const sweepBatchSize = 200

// Sweeper fails in-progress attempts that outlived MaxAttemptAge and active
// challenges whose deadline has passed.
type Sweeper struct {
	Store         database.Store
	Attempts      *AttemptTracker
	MaxAttemptAge time.Duration
	Interval      time.Duration
	Now           func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(store database.Store, attempts *AttemptTracker, maxAttemptAge, interval time.Duration) *Sweeper {
	return &Sweeper{
		Store:         store,
		Attempts:      attempts,
		MaxAttemptAge: maxAttemptAge,
		Interval:      interval,
		Now:           time.Now,
	}
}

// Start runs a sweep every Interval until ctx ends or Stop is called.
// Calling Start on a running sweeper does nothing.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		log.Printf("🧹 Sweeper started (every %s)", s.Interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}(s.done)
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Println("🧹 Sweeper stopped")
}

// RunOnce performs one sweep and logs what it changed.
func (s *Sweeper) RunOnce(ctx context.Context) {
	attempts, err := s.ExpireStaleAttempts(ctx)
	if err != nil {
		log.Printf("⚠️ Sweeper: expiring attempts failed: %v", err)
	}
	challenges, err := s.ExpireOverdueChallenges(ctx)
	if err != nil {
		log.Printf("⚠️ Sweeper: expiring challenges failed: %v", err)
	}
	if attempts > 0 || challenges > 0 {
		log.Printf("✅ Sweeper: failed %d stale attempts and %d overdue challenges", attempts, challenges)
	}
}

// ExpireStaleAttempts fails in-progress attempts started before the cutoff.
// An attempt resolved concurrently by its owner is skipped.
func (s *Sweeper) ExpireStaleAttempts(ctx context.Context) (int, error) {
	if s.MaxAttemptAge <= 0 {
		return 0, nil
	}
	cutoff := s.Now().Add(-s.MaxAttemptAge)

	var stale []models.QuestAttempt
	if err := s.Store.Query(ctx, &stale, database.Query{
		Filters: []database.Filter{
			database.Eq("status", models.AttemptInProgress),
			database.Lt("started_at", cutoff),
		},
		OrderBy: "started_at ASC",
		Limit:   sweepBatchSize,
	}); err != nil {
		return 0, err
	}

	failed := 0
	for _, a := range stale {
		_, err := s.Attempts.Fail(ctx, a.ID, "attempt expired")
		switch {
		case err == nil:
			failed++
		case errors.Is(err, ErrInvalidTransition):
		default:
			return failed, err
		}
	}
	return failed, nil
}

// ExpireOverdueChallenges fails active challenges whose ends_at has passed.
// The write is conditional on the challenge still being active, so a
// challenge completed in the meantime keeps its completion.
func (s *Sweeper) ExpireOverdueChallenges(ctx context.Context) (int, error) {
	now := s.Now()

	var overdue []models.TeamChallenge
	if err := s.Store.Query(ctx, &overdue, database.Query{
		Filters: []database.Filter{
			database.Eq("status", models.ChallengeStatusActive),
			database.Lt("ends_at", now),
		},
		Limit: sweepBatchSize,
	}); err != nil {
		return 0, err
	}

	failed := 0
	for i := range overdue {
		ch := &overdue[i]
		ch.Status = models.ChallengeStatusFailed
		ch.UpdatedAt = now
		applied, err := s.Store.UpdateIf(ctx, ch,
			[]database.Filter{database.Eq("status", models.ChallengeStatusActive)},
			"status", "updated_at",
		)
		if err != nil {
			return failed, err
		}
		if applied {
			failed++
		}
	}
	return failed, nil
}
