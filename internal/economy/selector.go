package economy

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"encore/internal/catalog"
)

// ScaleSlot applies a per-user rate multiplier to a slot table. The first
// entry is the base rarity: every other weight is multiplied by rate and the
// base absorbs whatever mass is left of 100. A rate of zero or below
// collapses the slot to 100% base.
func ScaleSlot(slot []catalog.SlotEntry, rate float64) []catalog.SlotEntry {
	if len(slot) == 0 {
		return nil
	}
	out := make([]catalog.SlotEntry, len(slot))
	copy(out, slot)
	if rate <= 0 {
		out[0].Weight = 100
		for i := 1; i < len(out); i++ {
			out[i].Weight = 0
		}
		return out
	}
	var sum float64
	for i := 1; i < len(out); i++ {
		out[i].Weight *= rate
		sum += out[i].Weight
	}
	base := 100 - sum
	if base < 0 {
		base = 0
	}
	out[0].Weight = base
	return out
}

// ApplyOverrides pins absolute weights for specific rarities after scaling.
// The base again absorbs the remainder; when overrides alone exceed 100 the
// base clamps to zero and clamped is reported so the caller can log it.
func ApplyOverrides(entries []catalog.SlotEntry, overrides map[string]float64) (out []catalog.SlotEntry, clamped bool) {
	if len(entries) == 0 {
		return nil, false
	}
	out = make([]catalog.SlotEntry, len(entries))
	copy(out, entries)
	if len(overrides) == 0 {
		return out, false
	}
	var pinned float64
	var free float64
	for i := 1; i < len(out); i++ {
		if w, ok := overrides[out[i].Rarity]; ok {
			out[i].Weight = w
			pinned += w
		} else {
			free += out[i].Weight
		}
	}
	base := 100 - pinned - free
	if base < 0 {
		base = 0
		clamped = true
	}
	if w, ok := overrides[out[0].Rarity]; ok {
		out[0].Weight = w
	} else {
		out[0].Weight = base
	}
	return out, clamped
}

// drawRarity performs a weighted draw over the final table. roll must be in
// [0, 1).
func drawRarity(entries []catalog.SlotEntry, roll float64) string {
	var total float64
	for _, e := range entries {
		total += e.Weight
	}
	if total <= 0 {
		return entries[0].Rarity
	}
	target := roll * total
	for _, e := range entries {
		if target < e.Weight {
			return e.Rarity
		}
		target -= e.Weight
	}
	return entries[len(entries)-1].Rarity
}

// A matcher narrows a rarity tier's items for a subject. Matchers run in
// order; the first non-empty result wins.
type matcher func(items []catalog.Item, subject string, aliases []string) []catalog.Item

var matcherChain = []matcher{matchExactSubject, matchAlias, matchSubstring}

func matchExactSubject(items []catalog.Item, subject string, _ []string) []catalog.Item {
	var out []catalog.Item
	for _, it := range items {
		if catalog.Normalize(it.Subject) == subject {
			out = append(out, it)
		}
	}
	return out
}

func matchAlias(items []catalog.Item, _ string, aliases []string) []catalog.Item {
	var out []catalog.Item
	for _, it := range items {
		name := catalog.Normalize(it.Name)
		for _, token := range aliases {
			if strings.Contains(name, catalog.Normalize(token)) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

func matchSubstring(items []catalog.Item, subject string, _ []string) []catalog.Item {
	var out []catalog.Item
	for _, it := range items {
		if strings.Contains(catalog.Normalize(it.Name), subject) {
			out = append(out, it)
		}
	}
	return out
}

// resolveItem walks the matcher cascade: exact subject, alias tokens,
// substring, then the next more-common tier, and as a last resort a uniform
// pick among all items of the originally chosen tier. pickAt supplies
// randomness; last is the previous pick for this (rarity, subject) pair and
// is avoided when alternatives exist.
func resolveItem(cat *catalog.Catalog, rarity, subject, last string, pickAt func(n int) int) (catalog.Item, error) {
	subject = catalog.Normalize(subject)
	tier := rarity
	for {
		items := cat.ItemsByRarity(tier)
		if len(items) > 0 {
			aliases := cat.Aliases(subject)
			for _, m := range matcherChain {
				if found := m(items, subject, aliases); len(found) > 0 {
					return pickAvoiding(found, last, pickAt), nil
				}
			}
		}
		next, ok := cat.MoreCommon(tier)
		if !ok {
			break
		}
		tier = next
	}
	original := cat.ItemsByRarity(rarity)
	if len(original) == 0 {
		return catalog.Item{}, fmt.Errorf("no items in rarity tier %q", rarity)
	}
	return pickAvoiding(original, last, pickAt), nil
}

func pickAvoiding(items []catalog.Item, last string, pickAt func(n int) int) catalog.Item {
	if len(items) == 1 {
		return items[0]
	}
	if last != "" {
		filtered := items[:0:0]
		for _, it := range items {
			if it.Name != last {
				filtered = append(filtered, it)
			}
		}
		if len(filtered) > 0 {
			items = filtered
		}
	}
	return items[pickAt(len(items))]
}

// ResolveReward picks a concrete catalog item for a chosen rarity and
// subject, remembering the pick to avoid an immediate repeat.
func (s *Service) ResolveReward(rarity, subject string) (catalog.Item, error) {
	key := rarity + "|" + catalog.Normalize(subject)
	s.pickMu.Lock()
	last := s.lastPick[key]
	s.pickMu.Unlock()

	item, err := resolveItem(s.cat, rarity, subject, last, s.nextIndex)
	if err != nil {
		return catalog.Item{}, err
	}
	s.pickMu.Lock()
	s.lastPick[key] = item.Name
	s.pickMu.Unlock()
	return item, nil
}

// pickRarity builds the final weight table for a named slot under the
// user's rate profile and draws from it.
func (s *Service) pickRarity(slotName string, rate float64) (string, error) {
	slot := s.cat.Slot(slotName)
	if len(slot) == 0 {
		return "", fmt.Errorf("slot %q is empty", slotName)
	}
	scaled := ScaleSlot(slot, rate)
	final, clamped := ApplyOverrides(scaled, s.cat.Overrides())
	if clamped {
		s.log.Warn("slot overrides exceed 100, base clamped to zero", "slot", slotName)
	}
	return drawRarity(final, s.nextFloat()), nil
}

// DrawWeightedReward draws a rarity from the slot scaled by the user's rate
// profile, resolves it against the subject, and credits the card.
func (s *Service) DrawWeightedReward(ctx context.Context, in DrawInput) (DrawResult, error) {
	var out DrawResult
	if in.SlotName == "" {
		in.SlotName = "pack"
	}

	rate := 1.0
	err := s.db.QueryRow(ctx, `
		SELECT draw_rate FROM users.profiles WHERE user_id = $1
	`, in.UserID).Scan(&rate)
	if err != nil && err != pgx.ErrNoRows {
		return out, err
	}

	item, err := s.drawItem(in.SlotName, in.Subject, rate)
	if err != nil {
		return out, err
	}

	err = s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, "draw"); err != nil {
			return err
		}
		return creditTx(ctx, tx, in.UserID, item.Name, item.Rarity, 1)
	})
	if err != nil {
		return out, err
	}
	out.Name = item.Name
	out.Rarity = item.Rarity
	return out, nil
}

// drawItem is the selector pipeline with a configuration-error fallback: a
// broken slot or empty catalog substitutes the safe default reward instead
// of failing the caller.
func (s *Service) drawItem(slotName, subject string, rate float64) (catalog.Item, error) {
	rarity, err := s.pickRarity(slotName, rate)
	if err != nil {
		s.log.Error("reward slot misconfigured, substituting default", "slot", slotName, "err", err)
		return s.safeDefaultReward()
	}
	item, err := s.ResolveReward(rarity, subject)
	if err != nil {
		s.log.Error("reward resolution failed, substituting default", "rarity", rarity, "subject", subject, "err", err)
		return s.safeDefaultReward()
	}
	return item, nil
}

func (s *Service) safeDefaultReward() (catalog.Item, error) {
	pool := s.cat.BonusPool()
	if len(pool) > 0 {
		return pool[0], nil
	}
	for _, r := range s.cat.Rarities() {
		if items := s.cat.ItemsByRarity(r); len(items) > 0 {
			return items[0], nil
		}
	}
	return catalog.Item{}, fmt.Errorf("catalog is empty")
}
