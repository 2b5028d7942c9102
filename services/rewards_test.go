package services

import (
	"context"
	"testing"
	"time"

	"snapquest/models"
	"snapquest/testutil"
)

func TestLevelCurve(t *testing.T) {
	if got := XPForLevel(2); got != 282 {
		t.Errorf("XPForLevel(2) = %d, want 282", got)
	}
	if got := XPForLevel(3); got != 519 {
		t.Errorf("XPForLevel(3) = %d, want 519", got)
	}

	tests := []struct {
		total     int
		wantLevel int
		wantInto  int
	}{
		{0, 1, 0},
		{281, 1, 281},
		{282, 2, 0},
		{800, 2, 518},
		{801, 3, 0},
	}
	for _, tt := range tests {
		level, into := LevelForXP(tt.total)
		if level != tt.wantLevel || into != tt.wantInto {
			t.Errorf("LevelForXP(%d) = (%d, %d), want (%d, %d)", tt.total, level, into, tt.wantLevel, tt.wantInto)
		}
	}
}

func TestRewardCompute(t *testing.T) {
	start := testutil.Date(2024, time.May, 1, 12, 0)
	quest := &models.Quest{BaseXP: 100}
	custom := &models.Quest{BaseXP: 100, SpeedBonusXP: 40, SpeedBonusMinutes: 5, FirstTimeBonusXP: 10}

	tests := []struct {
		name    string
		quest   *models.Quest
		elapsed time.Duration
		first   bool
		want    Reward
	}{
		{"slow repeat", quest, time.Hour, false, Reward{Base: 100, Total: 100}},
		{"fast repeat", quest, 10 * time.Minute, false, Reward{Base: 100, Speed: 25, Total: 125}},
		{"slow first", quest, time.Hour, true, Reward{Base: 100, FirstTime: 50, Total: 150}},
		{"fast first", quest, time.Minute, true, Reward{Base: 100, Speed: 25, FirstTime: 50, Total: 175}},
		{"exactly at threshold", quest, 15 * time.Minute, false, Reward{Base: 100, Total: 100}},
		{"quest overrides", custom, 4 * time.Minute, true, Reward{Base: 100, Speed: 40, FirstTime: 10, Total: 150}},
		{"quest threshold is shorter", custom, 10 * time.Minute, false, Reward{Base: 100, Total: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testRewards.Compute(tt.quest, start, start.Add(tt.elapsed), tt.first)
			if got != tt.want {
				t.Errorf("Compute = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGetProgression(t *testing.T) {
	h := newHarness(t)
	alice := testutil.CreateUser(t, h.store, "alice")
	ctx := context.Background()

	if _, err := grantXP(ctx, h.store, alice.ID, 300); err != nil {
		t.Fatalf("grantXP failed: %v", err)
	}
	p, err := GetProgression(ctx, h.store, alice.ID)
	if err != nil {
		t.Fatalf("GetProgression failed: %v", err)
	}
	if p.Level != 2 || p.XP != 300 || p.XPIntoLevel != 18 || p.XPToNextLevel != 519 {
		t.Errorf("Unexpected progression: %+v", p)
	}
	if got := h.user(t, alice.ID); got.Level != 2 || got.QuestsCompleted != 1 {
		t.Errorf("Stored user = %+v", got)
	}

	if _, err := GetProgression(ctx, h.store, "ghost"); err == nil {
		t.Errorf("Expected an error for an unknown user")
	}
}
