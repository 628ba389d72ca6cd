package entities

// Settings are the persisted user toggles that feed the calculations.
// Overrides are keyed by train key, which is stable across rebuilds.
type Settings struct {
	Toxicity              ToxicityPreference `json:"toxicity" yaml:"toxicity"`
	SafetyFactorOverrides map[string]float64 `json:"safetyFactorOverrides,omitempty" yaml:"safetyFactorOverrides,omitempty"`
	SSAOverrides          map[string]float64 `json:"ssaOverrides,omitempty" yaml:"ssaOverrides,omitempty"`
	StageOrder            []string           `json:"stageOrder,omitempty" yaml:"stageOrder,omitempty"`
}
