package economy

import (
	"math"
	"testing"

	"encore/internal/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(catalog.Config{
		Rarities: []string{"C", "R", "SR", "UR", "EX"},
		Items: []catalog.Item{
			{Name: "Hoshino Suisei 001", Rarity: "C", Subject: "suisei"},
			{Name: "Hoshino Suisei 002", Rarity: "C", Subject: "suisei"},
			{Name: "Glow Stick", Rarity: "C"},
			{Name: "Suisei Stage Outfit", Rarity: "R", Subject: "suisei"},
			{Name: "Hikari Debut", Rarity: "R", Subject: "hikari"},
			{Name: "Comet Fragment", Rarity: "SR"},
			{Name: "Nova Ascendant", Rarity: "UR"},
		},
		Aliases: map[string][]string{
			"suisei": {"comet", "hoshino"},
		},
		Slots: map[string][]catalog.SlotEntry{
			"pack": {{Rarity: "C", Weight: 85}, {Rarity: "R", Weight: 10}, {Rarity: "SR", Weight: 5}},
		},
	})
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	return cat
}

func weightsOf(entries []catalog.SlotEntry) map[string]float64 {
	out := make(map[string]float64, len(entries))
	for _, e := range entries {
		out[e.Rarity] = e.Weight
	}
	return out
}

func TestScaleSlotZeroRate(t *testing.T) {
	slot := []catalog.SlotEntry{{Rarity: "C", Weight: 85}, {Rarity: "R", Weight: 10}, {Rarity: "SR", Weight: 5}}
	got := weightsOf(ScaleSlot(slot, 0))
	if got["C"] != 100 || got["R"] != 0 || got["SR"] != 0 {
		t.Fatalf("zero rate should collapse to base, got %v", got)
	}
}

func TestScaleSlotDoublesNonBase(t *testing.T) {
	slot := []catalog.SlotEntry{{Rarity: "C", Weight: 95}, {Rarity: "R", Weight: 5}}
	got := weightsOf(ScaleSlot(slot, 2))
	if got["R"] != 10 {
		t.Fatalf("R weight = %v, want 10", got["R"])
	}
	if got["C"] != 90 {
		t.Fatalf("C weight = %v, want 90", got["C"])
	}
}

func TestScaleSlotBaseClampsAtZero(t *testing.T) {
	slot := []catalog.SlotEntry{{Rarity: "C", Weight: 50}, {Rarity: "R", Weight: 30}, {Rarity: "SR", Weight: 20}}
	got := weightsOf(ScaleSlot(slot, 3))
	if got["C"] != 0 {
		t.Fatalf("base should clamp to zero, got %v", got["C"])
	}
	if got["R"] != 90 || got["SR"] != 60 {
		t.Fatalf("non-base weights wrong: %v", got)
	}
}

func TestApplyOverridesPinsWeight(t *testing.T) {
	entries := []catalog.SlotEntry{{Rarity: "C", Weight: 85}, {Rarity: "R", Weight: 10}, {Rarity: "SR", Weight: 5}}
	out, clamped := ApplyOverrides(entries, map[string]float64{"SR": 20})
	if clamped {
		t.Fatalf("unexpected clamp")
	}
	got := weightsOf(out)
	if got["SR"] != 20 {
		t.Fatalf("SR = %v, want 20", got["SR"])
	}
	if math.Abs(got["C"]-70) > 1e-9 {
		t.Fatalf("base should absorb remainder, C = %v", got["C"])
	}
	if got["R"] != 10 {
		t.Fatalf("unpinned R changed: %v", got["R"])
	}
}

func TestApplyOverridesClampsBase(t *testing.T) {
	entries := []catalog.SlotEntry{{Rarity: "C", Weight: 85}, {Rarity: "R", Weight: 10}, {Rarity: "SR", Weight: 5}}
	out, clamped := ApplyOverrides(entries, map[string]float64{"R": 60, "SR": 50})
	if !clamped {
		t.Fatalf("expected clamp when overrides exceed 100")
	}
	got := weightsOf(out)
	if got["C"] != 0 {
		t.Fatalf("base must clamp to zero, got %v", got["C"])
	}
}

func TestApplyOverridesNoOverrides(t *testing.T) {
	entries := []catalog.SlotEntry{{Rarity: "C", Weight: 85}, {Rarity: "R", Weight: 15}}
	out, clamped := ApplyOverrides(entries, nil)
	if clamped {
		t.Fatalf("unexpected clamp")
	}
	got := weightsOf(out)
	if got["C"] != 85 || got["R"] != 15 {
		t.Fatalf("entries should be unchanged, got %v", got)
	}
}

func TestDrawRarityBoundaries(t *testing.T) {
	entries := []catalog.SlotEntry{{Rarity: "C", Weight: 85}, {Rarity: "R", Weight: 10}, {Rarity: "SR", Weight: 5}}
	tests := []struct {
		roll float64
		want string
	}{
		{roll: 0, want: "C"},
		{roll: 0.849, want: "C"},
		{roll: 0.85, want: "R"},
		{roll: 0.949, want: "R"},
		{roll: 0.95, want: "SR"},
		{roll: 0.999, want: "SR"},
	}
	for _, tc := range tests {
		if got := drawRarity(entries, tc.roll); got != tc.want {
			t.Fatalf("roll=%v got %q want %q", tc.roll, got, tc.want)
		}
	}
}

func TestDrawRarityAllZeroWeights(t *testing.T) {
	entries := []catalog.SlotEntry{{Rarity: "C", Weight: 0}, {Rarity: "R", Weight: 0}}
	if got := drawRarity(entries, 0.5); got != "C" {
		t.Fatalf("degenerate table should fall back to base, got %q", got)
	}
}

func firstIndex(int) int { return 0 }

func TestResolveItemExactSubject(t *testing.T) {
	cat := testCatalog(t)
	item, err := resolveItem(cat, "R", "suisei", "", firstIndex)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item.Name != "Suisei Stage Outfit" {
		t.Fatalf("got %q, want the exact-subject R card", item.Name)
	}
}

func TestResolveItemAliasToken(t *testing.T) {
	cat := testCatalog(t)
	// No SR card carries the suisei subject; the alias token "comet"
	// matches Comet Fragment by name.
	item, err := resolveItem(cat, "SR", "suisei", "", firstIndex)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item.Name != "Comet Fragment" {
		t.Fatalf("got %q, want alias match", item.Name)
	}
}

func TestResolveItemSubstring(t *testing.T) {
	cat := testCatalog(t)
	item, err := resolveItem(cat, "UR", "nova", "", firstIndex)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item.Name != "Nova Ascendant" {
		t.Fatalf("got %q, want substring match", item.Name)
	}
}

func TestResolveItemTierWalk(t *testing.T) {
	cat := testCatalog(t)
	// hikari has no UR or SR card; the walk lands on the R tier.
	item, err := resolveItem(cat, "UR", "hikari", "", firstIndex)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item.Name != "Hikari Debut" {
		t.Fatalf("got %q, want the more-common hikari card", item.Name)
	}
}

func TestResolveItemUniformFallback(t *testing.T) {
	cat := testCatalog(t)
	// No card anywhere matches this subject; fall back to a uniform pick
	// within the originally drawn tier.
	item, err := resolveItem(cat, "SR", "unknownsubject", "", firstIndex)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item.Rarity != "SR" {
		t.Fatalf("fallback must stay in original tier, got %q", item.Rarity)
	}
}

func TestResolveItemEmptyTier(t *testing.T) {
	cat := testCatalog(t)
	if _, err := resolveItem(cat, "EX", "unknownsubject", "", firstIndex); err == nil {
		t.Fatalf("expected error for a tier with no items and no match anywhere")
	}
}

func TestPickAvoidingSkipsLast(t *testing.T) {
	items := []catalog.Item{
		{Name: "A", Rarity: "C"},
		{Name: "B", Rarity: "C"},
	}
	got := pickAvoiding(items, "A", firstIndex)
	if got.Name != "B" {
		t.Fatalf("got %q, want the non-repeated item", got.Name)
	}
}

func TestPickAvoidingSingleItem(t *testing.T) {
	items := []catalog.Item{{Name: "A", Rarity: "C"}}
	got := pickAvoiding(items, "A", firstIndex)
	if got.Name != "A" {
		t.Fatalf("single item must be returned even if it repeats, got %q", got.Name)
	}
}
