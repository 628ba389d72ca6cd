package scoring

import (
	"fmt"
	"math"

	"github.com/giygas/cleaning-validation-api/catalog/entities"
)

// CriteriaVersion is the schema version of the built-in scoring tables.
const CriteriaVersion = 1

// DefaultCriteria returns the built-in scoring tables. Higher scores mean higher risk.
func DefaultCriteria() entities.ScoringCriteria {
	return entities.ScoringCriteria{
		Version: CriteriaVersion,
		Categories: map[string]entities.Criterion{
			entities.CategorySolubility: {Rules: []entities.Rule{
				exact("Freely soluble", 1),
				exact("Soluble", 2),
				exact("Slightly soluble", 3),
				exact("Practically insoluble", 4),
			}},
			entities.CategoryCleanability: {Rules: []entities.Rule{
				exact("Easy", 1),
				exact("Medium", 2),
				exact("Hard", 3),
			}},
			// mg: the more potent the dose, the higher the score.
			entities.CategoryTherapeuticDose: {Rules: []entities.Rule{
				between(0, 10, 4),
				between(10, 100, 3),
				between(100, 1000, 2),
				atLeast(1000, 1),
			}},
			// mg/day
			entities.CategoryPDE: {Rules: []entities.Rule{
				between(0, 0.1, 5),
				between(0.1, 1, 4),
				between(1, 10, 3),
				between(10, 100, 2),
				atLeast(100, 1),
			}},
			// mg/kg
			entities.CategoryLD50: {Rules: []entities.Rule{
				between(0, 5, 5),
				between(5, 50, 4),
				between(50, 300, 3),
				between(300, 2000, 2),
				atLeast(2000, 1),
			}},
			entities.CategoryRPN: {Rules: []entities.Rule{
				band(0, 20, "Low"),
				band(20, 60, "Medium"),
				{Type: entities.RuleRPNThreshold, Min: entities.Float(60), Rating: "High"},
			}},
		},
	}
}

// ValidateCriteria checks that user-edited tables can drive Calculate.
func ValidateCriteria(c entities.ScoringCriteria) error {
	required := []string{
		entities.CategorySolubility,
		entities.CategoryTherapeuticDose,
		entities.CategoryCleanability,
		entities.CategoryRPN,
	}
	for _, category := range required {
		if len(c.Categories[category].Rules) == 0 {
			return fmt.Errorf("category %s has no rules", category)
		}
	}

	for category, criterion := range c.Categories {
		for i, rule := range criterion.Rules {
			if err := validateRule(rule); err != nil {
				return fmt.Errorf("category %s rule %d: %w", category, i, err)
			}
		}
	}

	return nil
}

func validateRule(rule entities.Rule) error {
	switch rule.Type {
	case entities.RuleExactMatch:
		if rule.Value == "" {
			return fmt.Errorf("exactMatch rule needs a value")
		}
	case entities.RuleRange, entities.RuleRPNThreshold:
		if rule.Min != nil && math.IsNaN(*rule.Min) || rule.Max != nil && math.IsNaN(*rule.Max) {
			return fmt.Errorf("bounds must be numbers")
		}
		if rule.Min != nil && rule.Max != nil && *rule.Min > *rule.Max {
			return fmt.Errorf("min %v is greater than max %v", *rule.Min, *rule.Max)
		}
		if rule.Type == entities.RuleRPNThreshold && rule.Rating == "" {
			return fmt.Errorf("rpn_threshold rule needs a rating")
		}
	default:
		return fmt.Errorf("unknown rule type %q", rule.Type)
	}
	return nil
}

func exact(value string, score int) entities.Rule {
	return entities.Rule{Type: entities.RuleExactMatch, Value: value, Score: score}
}

// between is the half-open range [min, max).
func between(min, max float64, score int) entities.Rule {
	return entities.Rule{
		Type:         entities.RuleRange,
		Min:          entities.Float(min),
		Max:          entities.Float(max),
		MinInclusive: true,
		Score:        score,
	}
}

func atLeast(min float64, score int) entities.Rule {
	return entities.Rule{Type: entities.RuleRange, Min: entities.Float(min), MinInclusive: true, Score: score}
}

func band(min, max float64, rating string) entities.Rule {
	return entities.Rule{Type: entities.RuleRPNThreshold, Min: entities.Float(min), Max: entities.Float(max), Rating: rating}
}
