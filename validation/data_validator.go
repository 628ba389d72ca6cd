// Package validation provides data validation functionality for the cleaning validation API.
package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/giygas/cleaning-validation-api/catalog/entities"
	"github.com/giygas/cleaning-validation-api/interfaces"
)

var (
	// ErrInvalid marks an entity rejected at the CRUD boundary.
	ErrInvalid = errors.New("invalid data")
	// ErrDuplicateCode is returned when a product code is already taken.
	ErrDuplicateCode = errors.New("duplicate product code")
	// ErrLastIngredient is returned when removing the only active ingredient of a product.
	ErrLastIngredient = errors.New("cannot remove the last active ingredient")
)

var (
	// Filter values are compared verbatim with catalog labels, so only
	// control and format characters are refused.
	controlRegex = regexp.MustCompile(`[\p{Cc}\p{Cf}]`)

	fold = cases.Fold()
)

// Upper bounds of physical quantities. Anything larger is a typo or a unit
// error and would overflow the train aggregates.
const (
	MaxBatchSizeKg   = 1e6 // 1000 t
	MaxDoseMg        = 1e7 // therapeutic dose, MDD and PDE
	MaxLD50MgPerKg   = 1e7
	MaxMachineAreaCm = 1e8 // 10 000 m²
)

// MaxInputLength caps free text filter values, in characters.
const MaxInputLength = 100

// Compile-time check to ensure DataValidatorImpl implements DataValidator
var _ interfaces.DataValidator = (*DataValidatorImpl)(nil)

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() interfaces.DataValidator {
	return &DataValidatorImpl{}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// ValidateProduct checks if a product entity is valid
func (v *DataValidatorImpl) ValidateProduct(p *entities.Product) error {
	if p == nil {
		return invalid("product is nil")
	}

	if strings.TrimSpace(p.ProductCode) == "" {
		return invalid("empty product code")
	}
	if len(p.ProductCode) > 50 {
		return invalid("product code too long: %d characters", len(p.ProductCode))
	}

	if strings.TrimSpace(p.Name) == "" {
		return invalid("empty name for product %s", p.ProductCode)
	}
	if len(p.Name) > 200 {
		return invalid("name too long for product %s: %d characters", p.ProductCode, len(p.Name))
	}

	if !isPositive(p.BatchSizeKg) {
		return invalid("batch size must be greater than 0 for product %s", p.ProductCode)
	}
	if p.BatchSizeKg > MaxBatchSizeKg {
		return invalid("batch size %g kg exceeds %g kg for product %s", p.BatchSizeKg, float64(MaxBatchSizeKg), p.ProductCode)
	}

	if p.IsCritical && strings.TrimSpace(p.CriticalReason) == "" {
		return invalid("critical product %s needs a reason", p.ProductCode)
	}

	seen := make(map[int]bool, len(p.MachineIDs))
	for _, id := range p.MachineIDs {
		if id <= 0 {
			return invalid("invalid machine id %d for product %s", id, p.ProductCode)
		}
		if seen[id] {
			return invalid("machine %d listed twice for product %s", id, p.ProductCode)
		}
		seen[id] = true
	}

	if len(p.ActiveIngredients) == 0 {
		return invalid("product %s needs at least one active ingredient", p.ProductCode)
	}
	for i := range p.ActiveIngredients {
		if err := v.ValidateIngredient(&p.ActiveIngredients[i]); err != nil {
			return fmt.Errorf("product %s: %w", p.ProductCode, err)
		}
	}

	return nil
}

// ValidateIngredient checks if an active ingredient is valid
func (v *DataValidatorImpl) ValidateIngredient(ing *entities.Ingredient) error {
	if ing == nil {
		return invalid("ingredient is nil")
	}

	if strings.TrimSpace(ing.Name) == "" {
		return invalid("empty ingredient name")
	}
	if !isPositive(ing.TherapeuticDose) || ing.TherapeuticDose > MaxDoseMg {
		return invalid("therapeutic dose must be in (0, %g] mg for %s", float64(MaxDoseMg), ing.Name)
	}
	if !isPositive(ing.MDD) || ing.MDD > MaxDoseMg {
		return invalid("MDD must be in (0, %g] mg for %s", float64(MaxDoseMg), ing.Name)
	}
	if strings.TrimSpace(ing.Solubility) == "" {
		return invalid("missing solubility for %s", ing.Name)
	}
	if strings.TrimSpace(ing.Cleanability) == "" {
		return invalid("missing cleanability for %s", ing.Name)
	}

	if !ing.HasPDE() && !ing.HasLD50() {
		return invalid("%s needs a PDE or an LD50", ing.Name)
	}
	if ing.HasPDE() && (!isPositive(*ing.PDE) || *ing.PDE > MaxDoseMg) {
		return invalid("PDE must be in (0, %g] mg for %s", float64(MaxDoseMg), ing.Name)
	}
	if ing.HasLD50() && (!isPositive(*ing.LD50) || *ing.LD50 > MaxLD50MgPerKg) {
		return invalid("LD50 must be in (0, %g] mg/kg for %s", float64(MaxLD50MgPerKg), ing.Name)
	}

	return nil
}

// ValidateMachine checks if a machine entity is valid
func (v *DataValidatorImpl) ValidateMachine(m *entities.Machine) error {
	if m == nil {
		return invalid("machine is nil")
	}

	if strings.TrimSpace(m.Name) == "" {
		return invalid("empty machine name")
	}
	if len(m.Name) > 200 {
		return invalid("machine name too long: %d characters", len(m.Name))
	}
	if math.IsNaN(m.Area) || m.Area < 0 || m.Area > MaxMachineAreaCm {
		return invalid("area must be between 0 and %g cm² for machine %s", float64(MaxMachineAreaCm), m.Name)
	}

	return nil
}

// CheckDuplicateProductCodes validates that product codes are unique, ignoring case
func (v *DataValidatorImpl) CheckDuplicateProductCodes(products []entities.Product) error {
	if dups := duplicateCodes(products); len(dups) > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, strings.Join(dups, ", "))
	}
	return nil
}

// CodeTaken reports whether code is used by a product other than exceptID, ignoring case.
func CodeTaken(products []entities.Product, code string, exceptID int) bool {
	key := codeKey(code)
	for _, p := range products {
		if p.ID != exceptID && codeKey(p.ProductCode) == key {
			return true
		}
	}
	return false
}

// ValidateDataIntegrity performs comprehensive data validation
func (v *DataValidatorImpl) ValidateDataIntegrity(products []entities.Product, machines []entities.Machine) error {
	machineIDs := make(map[int]bool, len(machines))
	for i := range machines {
		if machineIDs[machines[i].ID] {
			return fmt.Errorf("duplicate machine ID found: %d", machines[i].ID)
		}
		machineIDs[machines[i].ID] = true

		if err := v.ValidateMachine(&machines[i]); err != nil {
			return fmt.Errorf("invalid machine %d: %w", machines[i].ID, err)
		}
	}

	productIDs := make(map[int]bool, len(products))
	for i := range products {
		if productIDs[products[i].ID] {
			return fmt.Errorf("duplicate product ID found: %d", products[i].ID)
		}
		productIDs[products[i].ID] = true

		if err := v.ValidateProduct(&products[i]); err != nil {
			return fmt.Errorf("invalid product %d: %w", products[i].ID, err)
		}

		for _, id := range products[i].MachineIDs {
			if !machineIDs[id] {
				return fmt.Errorf("machine %d of product %s not found in machine list", id, products[i].ProductCode)
			}
		}
	}

	return v.CheckDuplicateProductCodes(products)
}

// ReportDataQuality lists every data quality issue without failing on the first one
func (v *DataValidatorImpl) ReportDataQuality(products []entities.Product, machines []entities.Machine) *interfaces.DataQualityReport {
	report := &interfaces.DataQualityReport{
		DuplicateProductCodes:      duplicateCodes(products),
		DuplicateProductIDs:        []int{},
		DuplicateMachineIDs:        []int{},
		DanglingMachineRefsIDs:     []int{},
		ProductsWithoutMachinesIDs: []int{},
		IngredientsWithoutMDDIDs:   []int{},
	}
	if report.DuplicateProductCodes == nil {
		report.DuplicateProductCodes = []string{}
	}

	// Check 1: duplicate machine ids
	machineIDs := make(map[int]bool, len(machines))
	for _, m := range machines {
		if machineIDs[m.ID] {
			report.DuplicateMachineIDs = append(report.DuplicateMachineIDs, m.ID)
		}
		machineIDs[m.ID] = true
	}

	used := make(map[int]bool)
	productIDs := make(map[int]bool, len(products))
	for _, p := range products {
		// Check 2: duplicate product ids
		if productIDs[p.ID] {
			report.DuplicateProductIDs = append(report.DuplicateProductIDs, p.ID)
		}
		productIDs[p.ID] = true

		// Check 3: products outside any train (store first 10 ids)
		if len(p.MachineIDs) == 0 {
			report.ProductsWithoutMachines++
			if len(report.ProductsWithoutMachinesIDs) < 10 {
				report.ProductsWithoutMachinesIDs = append(report.ProductsWithoutMachinesIDs, p.ID)
			}
		}

		// Check 4: machine references missing from the machine list
		dangling := false
		for _, id := range p.MachineIDs {
			used[id] = true
			if !machineIDs[id] {
				report.DanglingMachineRefs++
				dangling = true
			}
		}
		if dangling && len(report.DanglingMachineRefsIDs) < 10 {
			report.DanglingMachineRefsIDs = append(report.DanglingMachineRefsIDs, p.ID)
		}

		// Check 5: ingredients the MACO formulas cannot use
		missingMDD := false
		for _, ing := range p.ActiveIngredients {
			if !isPositive(ing.MDD) {
				report.IngredientsWithoutMDD++
				missingMDD = true
			}
			if !ing.HasPDE() && !ing.HasLD50() {
				report.IngredientsWithoutToxicity++
			}
		}
		if missingMDD && len(report.IngredientsWithoutMDDIDs) < 10 {
			report.IngredientsWithoutMDDIDs = append(report.IngredientsWithoutMDDIDs, p.ID)
		}
	}

	// Check 6: machines no product runs on
	for id := range machineIDs {
		if !used[id] {
			report.UnusedMachines++
		}
	}

	return report
}

// ValidateInput validates a free text filter value. Any printable text of
// at most MaxInputLength characters is accepted, including punctuation such
// as "Solids & Liquids".
func (v *DataValidatorImpl) ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("input cannot be empty")
	}

	if !utf8.ValidString(input) {
		return fmt.Errorf("input is not valid UTF-8")
	}

	if utf8.RuneCountInString(input) > MaxInputLength {
		return fmt.Errorf("input too long: maximum %d characters", MaxInputLength)
	}

	if controlRegex.MatchString(input) {
		return fmt.Errorf("input contains control characters")
	}

	return nil
}

// ValidateID validates numeric path identifiers
// No regex used - strconv.Atoi() validates numeric format for free
func (v *DataValidatorImpl) ValidateID(input string) (int, error) {
	trimmedInput := strings.TrimSpace(input)
	if trimmedInput == "" {
		return -1, fmt.Errorf("input cannot be empty")
	}

	if len(input) != len(trimmedInput) {
		return -1, fmt.Errorf("input contains invalid characters. Only numeric characters are allowed")
	}

	if len(trimmedInput) > 9 {
		return -1, fmt.Errorf("id too long: maximum 9 digits")
	}

	id, err := strconv.Atoi(trimmedInput)
	if err != nil {
		return -1, fmt.Errorf("input contains invalid characters. Only numeric characters are allowed")
	}
	if id <= 0 {
		return -1, fmt.Errorf("id must be positive")
	}

	return id, nil
}

func duplicateCodes(products []entities.Product) []string {
	seen := make(map[string]bool, len(products))
	reported := make(map[string]bool)
	var dups []string
	for _, p := range products {
		key := codeKey(p.ProductCode)
		if seen[key] && !reported[key] {
			dups = append(dups, p.ProductCode)
			reported[key] = true
		}
		seen[key] = true
	}
	return dups
}

func codeKey(code string) string {
	return fold.String(strings.TrimSpace(code))
}

func isPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
