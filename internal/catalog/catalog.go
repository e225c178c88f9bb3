// Package catalog holds the read-only card catalog: items grouped by rarity
// tier and subject, alias tokens used for subject matching, and the named
// weighted slot tables the reward selector draws from.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Item struct {
	Name    string `yaml:"name"`
	Rarity  string `yaml:"rarity"`
	Subject string `yaml:"subject"`
}

// SlotEntry is one (rarity, weight) row of a slot table. The first entry of
// a slot is the base rarity and absorbs unassigned probability mass.
type SlotEntry struct {
	Rarity string  `yaml:"rarity"`
	Weight float64 `yaml:"weight"`
}

type Config struct {
	// Rarities is ordered most common first. Tier-walk fallbacks move toward
	// the front of this list.
	Rarities  []string               `yaml:"rarities"`
	Items     []Item                 `yaml:"items"`
	Aliases   map[string][]string    `yaml:"aliases"`
	Slots     map[string][]SlotEntry `yaml:"slots"`
	// Overrides pins absolute post-scaling weights for specific rarities.
	Overrides map[string]float64 `yaml:"overrides"`
	BonusPool []Item             `yaml:"bonus_pool"`
}

type Catalog struct {
	cfg        Config
	byRarity   map[string][]Item
	rarityRank map[string]int
}

func New(cfg Config) (*Catalog, error) {
	if len(cfg.Rarities) == 0 {
		return nil, fmt.Errorf("catalog: no rarities configured")
	}
	c := &Catalog{
		cfg:        cfg,
		byRarity:   make(map[string][]Item),
		rarityRank: make(map[string]int),
	}
	for i, r := range cfg.Rarities {
		c.rarityRank[r] = i
	}
	for _, item := range cfg.Items {
		if _, ok := c.rarityRank[item.Rarity]; !ok {
			return nil, fmt.Errorf("catalog: item %q has unknown rarity %q", item.Name, item.Rarity)
		}
		c.byRarity[item.Rarity] = append(c.byRarity[item.Rarity], item)
	}
	return c, nil
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("catalog yaml: %w", err)
	}
	return New(cfg)
}

// LoadOrDefault falls back to the compiled-in catalog when no path is set.
func LoadOrDefault(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return New(DefaultConfig())
	}
	return Load(path)
}

func (c *Catalog) Rarities() []string {
	return c.cfg.Rarities
}

func (c *Catalog) HasRarity(rarity string) bool {
	_, ok := c.rarityRank[rarity]
	return ok
}

func (c *Catalog) ItemsByRarity(rarity string) []Item {
	return c.byRarity[rarity]
}

// MoreCommon returns the next more-common tier, or false at the front of the
// ordering.
func (c *Catalog) MoreCommon(rarity string) (string, bool) {
	rank, ok := c.rarityRank[rarity]
	if !ok || rank == 0 {
		return "", false
	}
	return c.cfg.Rarities[rank-1], true
}

func (c *Catalog) Aliases(subject string) []string {
	return c.cfg.Aliases[Normalize(subject)]
}

func (c *Catalog) Slot(name string) []SlotEntry {
	return c.cfg.Slots[name]
}

func (c *Catalog) Overrides() map[string]float64 {
	return c.cfg.Overrides
}

func (c *Catalog) BonusPool() []Item {
	return c.cfg.BonusPool
}

// Normalize lowercases and strips everything but letters and digits so that
// "Suisei 001" and "suisei001" compare equal.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
