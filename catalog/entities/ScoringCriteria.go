package entities

// Scoring categories understood by the scoring engine.
const (
	CategorySolubility      = "solubility"
	CategoryTherapeuticDose = "therapeuticDose"
	CategoryCleanability    = "cleanability"
	CategoryPDE             = "pde"
	CategoryLD50            = "ld50"
	CategoryRPN             = "rpn"
)

// RuleType selects how a Rule matches a raw attribute.
type RuleType string

const (
	RuleExactMatch   RuleType = "exactMatch"
	RuleRange        RuleType = "range"
	RuleRPNThreshold RuleType = "rpn_threshold"
)

// Rule maps a raw attribute to a score (exactMatch, range) or an RPN band to a
// rating (rpn_threshold). A nil Min or Max is an open bound.
type Rule struct {
	Type         RuleType `json:"type" yaml:"type"`
	Value        string   `json:"value,omitempty" yaml:"value,omitempty"`
	Min          *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max          *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	MinInclusive bool     `json:"minInclusive,omitempty" yaml:"minInclusive,omitempty"`
	MaxInclusive bool     `json:"maxInclusive,omitempty" yaml:"maxInclusive,omitempty"`
	Score        int      `json:"score,omitempty" yaml:"score,omitempty"`
	Rating       string   `json:"rating,omitempty" yaml:"rating,omitempty"`
}

// Criterion is the ordered rule list of one category.
type Criterion struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// ScoringCriteria holds the user-editable scoring tables keyed by category.
type ScoringCriteria struct {
	Version    int                  `json:"version" yaml:"version"`
	Categories map[string]Criterion `json:"categories" yaml:"categories"`
}

// ToxicityPreference hides one of the toxicity dimensions from RPN and MACO.
type ToxicityPreference struct {
	PDEHidden  bool `json:"pdeHidden" yaml:"pdeHidden"`
	LD50Hidden bool `json:"ld50Hidden" yaml:"ld50Hidden"`
}
