package economy

import (
	"testing"
	"time"
)

func planTiers(plan []PlannedAward, userID string) []string {
	var out []string
	for _, p := range plan {
		if p.UserID == userID {
			out = append(out, p.Tier)
		}
	}
	return out
}

func TestBuildAwardPlanRanking(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	standings := []StandingRow{
		{UserID: "third", Points: 50, FirstContributionAt: base},
		{UserID: "first", Points: 500, FirstContributionAt: base.Add(time.Hour)},
		{UserID: "second", Points: 200, FirstContributionAt: base},
		{UserID: "fourth", Points: 10, FirstContributionAt: base},
	}

	plan := BuildAwardPlan(standings)

	if got := planTiers(plan, "first"); len(got) != 3 {
		t.Fatalf("rank 1 awards = %v, want rank1 + rank1-bonus + participation", got)
	}
	if got := planTiers(plan, "second"); len(got) != 2 || got[0] != "rank2" {
		t.Fatalf("rank 2 awards = %v", got)
	}
	if got := planTiers(plan, "third"); len(got) != 2 || got[0] != "rank3" {
		t.Fatalf("rank 3 awards = %v", got)
	}
	if got := planTiers(plan, "fourth"); len(got) != 1 || got[0] != "participation" {
		t.Fatalf("rank 4 awards = %v, want participation only", got)
	}
}

func TestBuildAwardPlanTieBreaksOnFirstContribution(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	standings := []StandingRow{
		{UserID: "late", Points: 100, FirstContributionAt: base.Add(time.Minute)},
		{UserID: "early", Points: 100, FirstContributionAt: base},
	}

	plan := BuildAwardPlan(standings)
	if plan[0].UserID != "early" || plan[0].Tier != "rank1" {
		t.Fatalf("earliest contributor should win the tie, got %+v", plan[0])
	}
	if got := planTiers(plan, "late"); got[0] != "rank2" {
		t.Fatalf("late contributor awards = %v", got)
	}
}

func TestBuildAwardPlanExcludesZeroPointUsers(t *testing.T) {
	standings := []StandingRow{
		{UserID: "active", Points: 10, FirstContributionAt: time.Now()},
		{UserID: "lurker", Points: 0, FirstContributionAt: time.Now()},
	}
	plan := BuildAwardPlan(standings)
	if got := planTiers(plan, "lurker"); len(got) != 0 {
		t.Fatalf("zero-point user must receive nothing, got %v", got)
	}
	if got := planTiers(plan, "active"); len(got) != 3 {
		t.Fatalf("sole contributor awards = %v", got)
	}
}

func TestBuildAwardPlanEmpty(t *testing.T) {
	if plan := BuildAwardPlan(nil); len(plan) != 0 {
		t.Fatalf("empty standings should yield an empty plan, got %v", plan)
	}
}
