// services/rewards.go - Quest rewards and level progression
package services

import (
	"context"
	"math"
	"time"

	"snapquest/database"
	"snapquest/models"
)

// RewardPolicy holds the default bonuses used when a quest leaves its own
// bonus fields at zero.
type RewardPolicy struct {
	SpeedBonusXP      int
	SpeedBonusMinutes int
	FirstTimeBonusXP  int
}

type Reward struct {
	Base      int `json:"base"`
	Speed     int `json:"speed"`
	FirstTime int `json:"first_time"`
	Total     int `json:"total"`
}

// Compute returns the XP for one completion. Bonuses are additive.
func (p RewardPolicy) Compute(q *models.Quest, startedAt, completedAt time.Time, firstCompletion bool) Reward {
	r := Reward{Base: q.BaseXP}

	threshold := q.SpeedBonusMinutes
	if threshold == 0 {
		threshold = p.SpeedBonusMinutes
	}
	if threshold > 0 && completedAt.Sub(startedAt) < time.Duration(threshold)*time.Minute {
		r.Speed = q.SpeedBonusXP
		if r.Speed == 0 {
			r.Speed = p.SpeedBonusXP
		}
	}

	if firstCompletion {
		r.FirstTime = q.FirstTimeBonusXP
		if r.FirstTime == 0 {
			r.FirstTime = p.FirstTimeBonusXP
		}
	}

	r.Total = r.Base + r.Speed + r.FirstTime
	return r
}

// XPForLevel is the XP needed to advance from level-1 to level.
func XPForLevel(level int) int {
	return int(100 * math.Pow(float64(level), 1.5))
}

// LevelForXP derives the level reached with a lifetime XP total, and the XP
// earned toward the next level.
func LevelForXP(total int) (level, intoLevel int) {
	level = 1
	remaining := total
	for {
		needed := XPForLevel(level + 1)
		if remaining < needed {
			return level, remaining
		}
		remaining -= needed
		level++
	}
}

type Progression struct {
	Level         int  `json:"level"`
	XP            int  `json:"xp"`
	XPIntoLevel   int  `json:"xp_into_level"`
	XPToNextLevel int  `json:"xp_to_next_level"`
	LeveledUp     bool `json:"leveled_up"`
}

func progressionOf(u *models.User, leveledUp bool) Progression {
	level, into := LevelForXP(u.XP)
	return Progression{
		Level:         level,
		XP:            u.XP,
		XPIntoLevel:   into,
		XPToNextLevel: XPForLevel(level + 1),
		LeveledUp:     leveledUp,
	}
}

// GetProgression reads a user's level and XP standing.
func GetProgression(ctx context.Context, store database.Store, userID string) (Progression, error) {
	var user models.User
	if err := store.Get(ctx, userID, &user); err != nil {
		return Progression{}, notFound(err, "user", userID)
	}
	return progressionOf(&user, false), nil
}

// grantXP adds xp to the user's lifetime total with single-record atomic
// increments and raises the stored level to match. Concurrent grants never
// lower the level because the level write is conditional.
func grantXP(ctx context.Context, store database.Store, userID string, xp int) (Progression, error) {
	var user models.User
	if err := store.Increment(ctx, &user, userID, "xp", xp); err != nil {
		return Progression{}, notFound(err, "user", userID)
	}
	if err := store.Increment(ctx, &user, userID, "quests_completed", 1); err != nil {
		return Progression{}, err
	}

	oldLevel := user.Level
	newLevel, _ := LevelForXP(user.XP)
	leveledUp := false
	if newLevel > oldLevel {
		user.Level = newLevel
		applied, err := store.UpdateIf(ctx, &user, []database.Filter{database.Lt("level", newLevel)}, "level")
		if err != nil {
			return Progression{}, err
		}
		leveledUp = applied
	}
	return progressionOf(&user, leveledUp), nil
}
