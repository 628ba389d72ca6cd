package engine

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/text/cases"

	"github.com/giygas/cleaning-validation-api/catalog/entities"
)

// FallbackMaco is the limit, in mg, reported when no candidate is positive and
// finite. It is small enough to be the most conservative limit any real train
// could get and keeps the per-area and per-swab divisions defined.
const FallbackMaco = 1e-6

// DefaultSafetyFactor applies when the safety factor configuration has no
// usable category at all.
const DefaultSafetyFactor = 1000.0

// Visual clean limit in mg per cm² of shared surface.
const visualCleanLimitPerCm2 = 0.004

// NOEL derivation constants: reference body weight (kg) and empirical factor.
const (
	bodyWeightKg = 70.0
	noelFactor   = 2000.0
)

const (
	MethodTherapeuticDose = "Therapeutic Dose"
	Method10PPM           = "10 ppm Criterion"
	MethodPDE             = "Health-Based Limit (PDE)"
	MethodNOEL            = "Health-Based Limit (NOEL)"
	MethodVisualClean     = "Visual Clean Limit"
)

// Candidate is one MACO limit candidate. Value is 0 when the formula did not
// produce a finite number; Eligible reports whether it took part in selection.
type Candidate struct {
	Method   string  `json:"method"`
	Value    float64 `json:"value"`
	Eligible bool    `json:"eligible"`
}

// MacoResult is the MACO breakdown of one train.
type MacoResult struct {
	TrainKey        string      `json:"trainKey"`
	TrainNumber     int         `json:"trainNumber"`
	SafetyFactor    float64     `json:"safetyFactor"`
	LineLargestESSA float64     `json:"lineLargestEssa"`
	Candidates      []Candidate `json:"candidates"`
	FinalMaco       float64     `json:"finalMaco"`
	SelectedMethod  string      `json:"selectedMethod"`
	MacoPerArea     float64     `json:"macoPerArea"`
	MacoPerSwab     float64     `json:"macoPerSwab"`
	Degenerate      bool        `json:"degenerate,omitempty"`
	Warnings        []string    `json:"warnings,omitempty"`
}

// CalculateMaco computes the candidate limits of a train and selects the
// smallest positive finite one. It never fails: bad inputs make candidates
// ineligible and, when none is left, the result falls back to FallbackMaco.
func CalculateMaco(t Train, lineLargestESSA, sf float64, pref entities.ToxicityPreference) MacoResult {
	res := MacoResult{
		TrainKey:        t.Key,
		TrainNumber:     t.Number,
		SafetyFactor:    sf,
		LineLargestESSA: lineLargestESSA,
	}
	if !isPositive(sf) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("invalid safety factor %v, dose based limits skipped", sf))
	}

	res.add(MethodTherapeuticDose, t.LowestLTD.Value*t.MinBsMddRatio.Value/sf)
	res.add(Method10PPM, 10*t.MinMBSKg.Value)

	if t.LowestPDE != nil && !pref.PDEHidden {
		res.add(MethodPDE, *t.LowestPDE*t.MinBsMddRatio.Value)
	}

	if t.LowestLD50 != nil && !pref.LD50Hidden {
		if t.MinMddG <= 0 {
			res.Warnings = append(res.Warnings, "no valid MDD in train, NOEL limit skipped")
		}
		noelG := *t.LowestLD50 * bodyWeightKg / noelFactor
		res.add(MethodNOEL, noelG*t.MinMBSKg.Value*1000/(sf*t.MinMddG))
	}

	res.add(MethodVisualClean, visualCleanLimitPerCm2*lineLargestESSA)

	best := -1
	for i, c := range res.Candidates {
		if c.Eligible && (best < 0 || c.Value < res.Candidates[best].Value) {
			best = i
		}
	}

	if best < 0 {
		res.FinalMaco = FallbackMaco
		res.SelectedMethod = "Fallback"
		res.Degenerate = true
		res.Warnings = append(res.Warnings, fmt.Sprintf("no positive finite MACO candidate, using fallback %g mg", FallbackMaco))
	} else {
		res.FinalMaco = res.Candidates[best].Value
		res.SelectedMethod = res.Candidates[best].Method
	}

	if lineLargestESSA > 0 && isFinite(lineLargestESSA) {
		res.MacoPerArea = res.FinalMaco / lineLargestESSA
	} else {
		res.Warnings = append(res.Warnings, "line largest ESSA is 0, per-area limit not available")
	}
	res.MacoPerSwab = res.MacoPerArea * t.AssumedSSA
	if !isFinite(res.MacoPerSwab) {
		res.Warnings = append(res.Warnings, "per-swab limit overflows, reported as 0")
		res.MacoPerSwab = 0
	}

	return res
}

func (r *MacoResult) add(method string, v float64) {
	c := Candidate{Method: method, Value: v, Eligible: isPositive(v)}
	if !isFinite(v) {
		c.Value = 0
	}
	r.Candidates = append(r.Candidates, c)
}

// SafetyFactorChoice is the safety factor applied to a train and where it came from.
type SafetyFactorChoice struct {
	Value      float64                    `json:"value"`
	Category   string                     `json:"category"`
	Range      entities.SafetyFactorRange `json:"range"`
	Overridden bool                       `json:"overridden"`
}

// ResolveSafetyFactor picks the safety factor for a dosage form. The dosage
// form is matched case-insensitively against the category names, then against
// the dosage form aliases, then falls back to the default category. The value
// is the category maximum unless an override is given, which is clamped into
// the category range.
func ResolveSafetyFactor(cfg entities.SafetyFactorConfig, dosageForm string, override *float64) (SafetyFactorChoice, []string) {
	var warnings []string

	name, rng, ok := lookupCategory(cfg, dosageForm)
	if !ok {
		warnings = append(warnings, fmt.Sprintf("no safety factor category for %q, using %v", dosageForm, DefaultSafetyFactor))
		choice := SafetyFactorChoice{Value: DefaultSafetyFactor}
		if override != nil && isPositive(*override) {
			choice.Value = *override
			choice.Overridden = true
		}
		return choice, warnings
	}

	choice := SafetyFactorChoice{Value: rng.Max, Category: name, Range: rng}
	if override == nil {
		return choice, warnings
	}

	v := *override
	switch {
	case math.IsNaN(v):
		warnings = append(warnings, "ignoring NaN safety factor override")
		return choice, warnings
	case v < rng.Min:
		warnings = append(warnings, fmt.Sprintf("safety factor override %v below %s minimum, clamped to %v", v, name, rng.Min))
		v = rng.Min
	case v > rng.Max:
		warnings = append(warnings, fmt.Sprintf("safety factor override %v above %s maximum, clamped to %v", v, name, rng.Max))
		v = rng.Max
	}
	choice.Value = v
	choice.Overridden = true
	return choice, warnings
}

func lookupCategory(cfg entities.SafetyFactorConfig, dosageForm string) (string, entities.SafetyFactorRange, bool) {
	fold := cases.Fold()
	form := fold.String(dosageForm)

	findCategory := func(name string) (string, entities.SafetyFactorRange, bool) {
		if rng, ok := cfg.Categories[name]; ok {
			return name, rng, true
		}
		target := fold.String(name)
		for _, k := range sortedKeys(cfg.Categories) {
			if fold.String(k) == target {
				return k, cfg.Categories[k], true
			}
		}
		return "", entities.SafetyFactorRange{}, false
	}

	if name, rng, ok := findCategory(dosageForm); ok {
		return name, rng, true
	}
	for _, alias := range sortedKeys(cfg.DosageFormCategories) {
		if fold.String(alias) == form {
			if name, rng, ok := findCategory(cfg.DosageFormCategories[alias]); ok {
				return name, rng, true
			}
		}
	}
	if cfg.DefaultCategory != "" {
		return findCategory(cfg.DefaultCategory)
	}
	return "", entities.SafetyFactorRange{}, false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultSafetyFactors is the built-in route based safety factor table.
func DefaultSafetyFactors() entities.SafetyFactorConfig {
	return entities.SafetyFactorConfig{
		Categories: map[string]entities.SafetyFactorRange{
			"Topical":    {Min: 10, Max: 100, Route: "topical"},
			"Oral":       {Min: 100, Max: 1000, Route: "oral"},
			"Parenteral": {Min: 1000, Max: 10000, Route: "parenteral"},
			"Inhalation": {Min: 1000, Max: 10000, Route: "inhalation"},
		},
		DosageFormCategories: map[string]string{
			"Tablets":    "Oral",
			"Tablet":     "Oral",
			"Capsules":   "Oral",
			"Capsule":    "Oral",
			"Syrup":      "Oral",
			"Suspension": "Oral",
			"Powder":     "Oral",
			"Granules":   "Oral",
			"Cream":      "Topical",
			"Ointment":   "Topical",
			"Gel":        "Topical",
			"Lotion":     "Topical",
			"Injection":  "Parenteral",
			"Injectable": "Parenteral",
			"Vial":       "Parenteral",
			"Ampoule":    "Parenteral",
			"Inhaler":    "Inhalation",
			"Aerosol":    "Inhalation",
		},
		DefaultCategory: "Oral",
	}
}
