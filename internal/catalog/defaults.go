package catalog

// DefaultConfig is the compiled-in catalog used when no catalog file is
// configured. Deployments override it with ENCORE_CATALOG_PATH.
func DefaultConfig() Config {
	return Config{
		Rarities: []string{"C", "R", "SR", "UR", "EX"},
		Items: []Item{
			{Name: "Suisei 001", Rarity: "R", Subject: "suisei"},
			{Name: "Suisei 002", Rarity: "R", Subject: "suisei"},
			{Name: "Suisei Comet", Rarity: "SR", Subject: "suisei"},
			{Name: "Suisei Stellar", Rarity: "UR", Subject: "suisei"},
			{Name: "Suisei Encore", Rarity: "EX", Subject: "suisei"},
			{Name: "Hikari 001", Rarity: "C", Subject: "hikari"},
			{Name: "Hikari 002", Rarity: "C", Subject: "hikari"},
			{Name: "Hikari Dawn", Rarity: "R", Subject: "hikari"},
			{Name: "Hikari Radiant", Rarity: "SR", Subject: "hikari"},
			{Name: "Nova 001", Rarity: "C", Subject: "nova"},
			{Name: "Nova Burst", Rarity: "R", Subject: "nova"},
			{Name: "Nova Supernova", Rarity: "UR", Subject: "nova"},
			{Name: "Aria 001", Rarity: "C", Subject: "aria"},
			{Name: "Aria 002", Rarity: "C", Subject: "aria"},
			{Name: "Aria Cadenza", Rarity: "SR", Subject: "aria"},
			{Name: "Aria Finale", Rarity: "EX", Subject: "aria"},
			{Name: "Stage Pass", Rarity: "C", Subject: "none"},
			{Name: "Glow Stick", Rarity: "C", Subject: "none"},
			{Name: "Signed Poster", Rarity: "R", Subject: "none"},
			{Name: "Backstage Key", Rarity: "SR", Subject: "none"},
		},
		Aliases: map[string][]string{
			"suisei": {"sui", "comet"},
			"hikari": {"hika", "sun"},
			"nova":   {"supernova"},
			"aria":   {"songbird"},
		},
		Slots: map[string][]SlotEntry{
			"pack":          {{Rarity: "C", Weight: 85}, {Rarity: "R", Weight: 10}, {Rarity: "SR", Weight: 4}, {Rarity: "UR", Weight: 0.9}, {Rarity: "EX", Weight: 0.1}},
			"participation": {{Rarity: "C", Weight: 70}, {Rarity: "R", Weight: 25}, {Rarity: "SR", Weight: 5}},
			"rank1":         {{Rarity: "SR", Weight: 50}, {Rarity: "UR", Weight: 40}, {Rarity: "EX", Weight: 10}},
			"rank2":         {{Rarity: "R", Weight: 60}, {Rarity: "SR", Weight: 35}, {Rarity: "UR", Weight: 5}},
			"rank3":         {{Rarity: "R", Weight: 80}, {Rarity: "SR", Weight: 20}},
		},
		BonusPool: []Item{
			{Name: "Glow Stick", Rarity: "C", Subject: "none"},
			{Name: "Stage Pass", Rarity: "C", Subject: "none"},
			{Name: "Signed Poster", Rarity: "R", Subject: "none"},
		},
	}
}
