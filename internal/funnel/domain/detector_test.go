package domain

import (
	"errors"
	"testing"
)

func TestTierForScore(t *testing.T) {
	t.Parallel()

	cases := []struct {
		score float64
		want  Tier
	}{
		{0, TierCold},
		{9.9, TierCold},
		{10, TierWarm},
		{21.9, TierWarm},
		{22, TierHot},
		{100, TierHot},
	}
	for _, tc := range cases {
		if got := TierForScore(tc.score); got != tc.want {
			t.Errorf("TierForScore(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestDetectCrossingNeverRegresses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		previous    Tier
		score       float64
		wantTier    Tier
		wantCrossed bool
	}{
		{TierCold, 5, TierCold, false},
		{TierCold, 13, TierWarm, true},
		{TierCold, 30, TierHot, true},
		{TierWarm, 15, TierWarm, false},
		{TierWarm, 22, TierHot, true},
		// A score below the stored tier's threshold keeps the stored tier.
		{TierHot, 5, TierHot, false},
		{TierWarm, 3, TierWarm, false},
	}
	for _, tc := range cases {
		tier, crossed := DetectCrossing(tc.previous, tc.score)
		if tier != tc.wantTier || crossed != tc.wantCrossed {
			t.Errorf("DetectCrossing(%q, %v) = (%q, %v), want (%q, %v)",
				tc.previous, tc.score, tier, crossed, tc.wantTier, tc.wantCrossed)
		}
	}
}

func TestActionKindWeights(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind ActionKind
		want float64
	}{
		{ActionViewed, 1},
		{ActionCompared, 3},
		{ActionContactedDealer, 4},
		{ActionCheckedAvailability, 5},
		{ActionRanFinancing, 6},
		{ActionScheduledTestDrive, 8},
		{ActionReserved, 9},
		{ActionSubmittedDeposit, 10},
	}
	for _, tc := range cases {
		got, err := tc.kind.Weight()
		if err != nil {
			t.Fatalf("Weight(%q): %v", tc.kind, err)
		}
		if got != tc.want {
			t.Errorf("Weight(%q) = %v, want %v", tc.kind, got, tc.want)
		}
	}

	if _, err := ActionKind("tire_kicked").Weight(); !errors.Is(err, ErrUnknownActionKind) {
		t.Fatalf("expected ErrUnknownActionKind, got %v", err)
	}
}
