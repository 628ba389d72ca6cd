package entities

// SafetyFactorRange is the admissible safety factor for one worst-case dosage form category.
type SafetyFactorRange struct {
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Route string  `json:"route" yaml:"route"`
}

// SafetyFactorConfig maps dosage form categories to safety factor ranges.
// DosageFormCategories resolves free-text dosage forms (e.g. "Tablets") to a category.
type SafetyFactorConfig struct {
	Categories           map[string]SafetyFactorRange `json:"categories" yaml:"categories"`
	DosageFormCategories map[string]string            `json:"dosageFormCategories" yaml:"dosageFormCategories"`
	DefaultCategory      string                       `json:"defaultCategory" yaml:"defaultCategory"`
}
