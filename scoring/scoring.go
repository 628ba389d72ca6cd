// Package scoring computes the Risk Priority Number (RPN) of an active ingredient
// from its solubility, cleanability and toxicity classification using the
// configurable scoring tables.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/giygas/cleaning-validation-api/catalog/entities"
)

// NoRating is reported when no rpn_threshold band contains the RPN.
const NoRating = "N/A"

var (
	// ErrInvalidIngredient marks ingredient data that cannot be scored.
	ErrInvalidIngredient = errors.New("invalid ingredient data")
	// ErrNoMatchingRule marks a raw attribute that no rule of its category matches.
	ErrNoMatchingRule = errors.New("no matching scoring rule")
)

// ToxicitySource names the attribute the toxicity score was derived from.
type ToxicitySource string

const (
	ToxicityFromPDE  ToxicitySource = "pde"
	ToxicityFromLD50 ToxicitySource = "ld50"
)

// ToxicityScore is the toxicity dimension of an ingredient, when it has one.
type ToxicityScore struct {
	Source ToxicitySource `json:"source"`
	Score  int            `json:"score"`
}

// Scores is the full scoring breakdown of one ingredient.
type Scores struct {
	SolubilityScore      int            `json:"solubilityScore"`
	TherapeuticDoseScore int            `json:"therapeuticDoseScore"`
	CleanabilityScore    int            `json:"cleanabilityScore"`
	Toxicity             *ToxicityScore `json:"toxicity,omitempty"`
	RPN                  int            `json:"rpn"`
	Rating               string         `json:"rating"`
}

// Calculate scores an ingredient. RPN is solubility × cleanability, multiplied by
// the toxicity score when the ingredient has a visible PDE or LD50.
func Calculate(ing entities.Ingredient, criteria entities.ScoringCriteria, pref entities.ToxicityPreference) (Scores, error) {
	if strings.TrimSpace(ing.Solubility) == "" {
		return Scores{}, fmt.Errorf("%w: %q has no solubility", ErrInvalidIngredient, ing.Name)
	}
	if strings.TrimSpace(ing.Cleanability) == "" {
		return Scores{}, fmt.Errorf("%w: %q has no cleanability", ErrInvalidIngredient, ing.Name)
	}
	if !isPositive(ing.TherapeuticDose) {
		return Scores{}, fmt.Errorf("%w: %q therapeutic dose %v", ErrInvalidIngredient, ing.Name, ing.TherapeuticDose)
	}

	var s Scores
	var err error

	if s.SolubilityScore, err = scoreText(criteria, entities.CategorySolubility, ing.Solubility); err != nil {
		return Scores{}, err
	}
	if s.TherapeuticDoseScore, err = scoreValue(criteria, entities.CategoryTherapeuticDose, ing.TherapeuticDose); err != nil {
		return Scores{}, err
	}
	if s.CleanabilityScore, err = scoreText(criteria, entities.CategoryCleanability, ing.Cleanability); err != nil {
		return Scores{}, err
	}

	s.Toxicity, err = scoreToxicity(ing, criteria, pref)
	if err != nil {
		return Scores{}, err
	}

	// The therapeutic dose score is reported but is not a risk factor of the
	// RPN: the dose already enters the MACO through the therapeutic dose limit.
	s.RPN = s.SolubilityScore * s.CleanabilityScore
	if s.Toxicity != nil {
		s.RPN *= s.Toxicity.Score
	}
	s.Rating = Rate(s.RPN, criteria)

	return s, nil
}

// scoreToxicity prefers PDE, then LD50. Hidden or absent values are skipped;
// an ingredient with neither has no toxicity dimension.
func scoreToxicity(ing entities.Ingredient, criteria entities.ScoringCriteria, pref entities.ToxicityPreference) (*ToxicityScore, error) {
	switch {
	case ing.HasPDE() && !pref.PDEHidden:
		if !isNonNegative(*ing.PDE) {
			return nil, fmt.Errorf("%w: %q pde %v", ErrInvalidIngredient, ing.Name, *ing.PDE)
		}
		score, err := scoreValue(criteria, entities.CategoryPDE, *ing.PDE)
		if err != nil {
			return nil, err
		}
		return &ToxicityScore{Source: ToxicityFromPDE, Score: score}, nil

	case ing.HasLD50() && !pref.LD50Hidden:
		if !isNonNegative(*ing.LD50) {
			return nil, fmt.Errorf("%w: %q ld50 %v", ErrInvalidIngredient, ing.Name, *ing.LD50)
		}
		score, err := scoreValue(criteria, entities.CategoryLD50, *ing.LD50)
		if err != nil {
			return nil, err
		}
		return &ToxicityScore{Source: ToxicityFromLD50, Score: score}, nil

	default:
		return nil, nil
	}
}

// Rate returns the rating of the rpn_threshold band [min, max) containing rpn.
func Rate(rpn int, criteria entities.ScoringCriteria) string {
	value := float64(rpn)
	for _, rule := range criteria.Categories[entities.CategoryRPN].Rules {
		if rule.Type != entities.RuleRPNThreshold {
			continue
		}
		if rule.Min != nil && value < *rule.Min {
			continue
		}
		if rule.Max != nil && value >= *rule.Max {
			continue
		}
		return rule.Rating
	}
	return NoRating
}

func scoreText(criteria entities.ScoringCriteria, category, raw string) (int, error) {
	for _, rule := range criteria.Categories[category].Rules {
		if rule.Type == entities.RuleExactMatch && rule.Value == raw {
			return rule.Score, nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q", ErrNoMatchingRule, category, raw)
}

func scoreValue(criteria entities.ScoringCriteria, category string, raw float64) (int, error) {
	for _, rule := range criteria.Categories[category].Rules {
		if rule.Type == entities.RuleRange && inRange(rule, raw) {
			return rule.Score, nil
		}
	}
	return 0, fmt.Errorf("%w: %s %v", ErrNoMatchingRule, category, raw)
}

func inRange(rule entities.Rule, v float64) bool {
	if rule.Min != nil {
		if rule.MinInclusive && v < *rule.Min {
			return false
		}
		if !rule.MinInclusive && v <= *rule.Min {
			return false
		}
	}
	if rule.Max != nil {
		if rule.MaxInclusive && v > *rule.Max {
			return false
		}
		if !rule.MaxInclusive && v >= *rule.Max {
			return false
		}
	}
	return true
}

func isPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func isNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
