package catalog

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Suisei 001", want: "suisei001"},
		{in: "  Hoshino-Suisei  ", want: "hoshinosuisei"},
		{in: "GLOW STICK!", want: "glowstick"},
		{in: "", want: ""},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewRejectsUnknownRarity(t *testing.T) {
	_, err := New(Config{
		Rarities: []string{"C", "R"},
		Items:    []Item{{Name: "Mystery", Rarity: "EX"}},
	})
	if err == nil {
		t.Fatalf("expected error for item with unknown rarity")
	}
}

func TestNewRejectsEmptyRarities(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty rarity list")
	}
}

func TestMoreCommonWalksTowardFront(t *testing.T) {
	cat, err := New(Config{Rarities: []string{"C", "R", "SR"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	next, ok := cat.MoreCommon("SR")
	if !ok || next != "R" {
		t.Fatalf("MoreCommon(SR) = %q %v", next, ok)
	}
	next, ok = cat.MoreCommon("R")
	if !ok || next != "C" {
		t.Fatalf("MoreCommon(R) = %q %v", next, ok)
	}
	if _, ok := cat.MoreCommon("C"); ok {
		t.Fatalf("most common tier has no fallback")
	}
	if _, ok := cat.MoreCommon("EX"); ok {
		t.Fatalf("unknown tier has no fallback")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cat, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("default config should build: %v", err)
	}
	for _, slotName := range []string{"pack", "participation", "rank1", "rank2", "rank3"} {
		slot := cat.Slot(slotName)
		if len(slot) == 0 {
			t.Fatalf("default slot %q is empty", slotName)
		}
		for _, e := range slot {
			if !cat.HasRarity(e.Rarity) {
				t.Fatalf("slot %q references unknown rarity %q", slotName, e.Rarity)
			}
			if len(cat.ItemsByRarity(e.Rarity)) == 0 && e.Weight > 0 {
				t.Fatalf("slot %q can draw rarity %q with no items", slotName, e.Rarity)
			}
		}
	}
	if len(cat.BonusPool()) == 0 {
		t.Fatalf("default bonus pool is empty")
	}
}

func TestAliasesNormalizeSubject(t *testing.T) {
	cat, err := New(Config{
		Rarities: []string{"C"},
		Aliases:  map[string][]string{"suisei": {"comet"}},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := cat.Aliases("Sui-Sei"); len(got) != 1 || got[0] != "comet" {
		t.Fatalf("Aliases should look up the normalized subject, got %v", got)
	}
}
