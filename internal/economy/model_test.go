package economy

import (
	"testing"
	"time"
)

func TestStageForRarity(t *testing.T) {
	tests := []struct {
		rarity   string
		number   int
		duration time.Duration
		prob     float64
	}{
		{rarity: "C", number: 1, duration: 15 * time.Minute, prob: 0.85},
		{rarity: "R", number: 2, duration: 30 * time.Minute, prob: 0.65},
		{rarity: "SR", number: 3, duration: 5 * time.Hour, prob: 0.40},
		{rarity: "UR", number: 4, duration: 12 * time.Hour, prob: 0.15},
		{rarity: "EX", number: 5, duration: 24 * time.Hour, prob: 0.05},
	}
	for _, tc := range tests {
		st, ok := StageForRarity(tc.rarity)
		if !ok {
			t.Fatalf("rarity %q has no stage", tc.rarity)
		}
		if st.Number != tc.number || st.Duration != tc.duration || st.SuccessProb != tc.prob {
			t.Fatalf("rarity %q got %+v", tc.rarity, st)
		}
	}
	if _, ok := StageForRarity("LEGENDARY"); ok {
		t.Fatalf("unknown rarity should have no stage")
	}
}

func TestSubscribeQualifies(t *testing.T) {
	if SubscribeQualifies("C") {
		t.Fatalf("commons must not qualify for subscribe")
	}
	for _, r := range []string{"R", "SR", "UR", "EX"} {
		if !SubscribeQualifies(r) {
			t.Fatalf("expected rarity %q to qualify", r)
		}
	}
	if SubscribeQualifies("nope") {
		t.Fatalf("unknown rarity must not qualify")
	}
}

func TestSuperchatCostIncreases(t *testing.T) {
	prev := int64(0)
	for n := int64(0); n < 10; n++ {
		cost := SuperchatCost(n)
		if cost <= prev {
			t.Fatalf("cost at prior=%d is %d, not above %d", n, cost, prev)
		}
		prev = cost
	}
	if got := SuperchatCost(0); got != SuperchatBaseCost {
		t.Fatalf("first superchat costs %d, want %d", got, SuperchatBaseCost)
	}
}

func TestSuperchatPoints(t *testing.T) {
	if got := SuperchatPoints(SuperchatCost(0)); got != 10 {
		t.Fatalf("first superchat points = %d, want 10", got)
	}
	if got := SuperchatPoints(500); got != 50 {
		t.Fatalf("points for 500 = %d, want 50", got)
	}
}
