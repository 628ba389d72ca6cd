package entities

import "strings"

// DefaultLine is used for products that were never assigned to a production line.
const DefaultLine = "Unassigned"

// DefaultDosageForm is used for products without a product type.
const DefaultDosageForm = "Other"

// Product is a manufactured item and the ordered list of machines it passes through.
type Product struct {
	ID                int          `json:"id" yaml:"id"`
	ProductCode       string       `json:"productCode" yaml:"productCode"`
	Name              string       `json:"name" yaml:"name"`
	ProductType       string       `json:"productType" yaml:"productType"`
	Line              string       `json:"line" yaml:"line"`
	BatchSizeKg       float64      `json:"batchSizeKg" yaml:"batchSizeKg"`
	MachineIDs        []int        `json:"machineIds" yaml:"machineIds"`
	ActiveIngredients []Ingredient `json:"activeIngredients" yaml:"activeIngredients"`
	IsCritical        bool         `json:"isCritical" yaml:"isCritical"`
	CriticalReason    string       `json:"criticalReason,omitempty" yaml:"criticalReason,omitempty"`
}

// LineOrDefault returns the production line, falling back to DefaultLine.
func (p Product) LineOrDefault() string {
	if line := strings.TrimSpace(p.Line); line != "" {
		return line
	}
	return DefaultLine
}

// DosageForm returns the product type used as dosage form, falling back to DefaultDosageForm.
func (p Product) DosageForm() string {
	if form := strings.TrimSpace(p.ProductType); form != "" {
		return form
	}
	return DefaultDosageForm
}

// Ingredient is one active pharmaceutical ingredient within a product.
// MDD is stored in milligrams; formulas convert to grams with MgToG.
type Ingredient struct {
	ID              int      `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	TherapeuticDose float64  `json:"therapeuticDose" yaml:"therapeuticDose"`
	MDD             float64  `json:"mdd" yaml:"mdd"`
	Solubility      string   `json:"solubility" yaml:"solubility"`
	Cleanability    string   `json:"cleanability" yaml:"cleanability"`
	PDE             *float64 `json:"pde,omitempty" yaml:"pde,omitempty"`
	LD50            *float64 `json:"ld50,omitempty" yaml:"ld50,omitempty"`
}

// HasPDE reports whether a PDE value was recorded.
func (i Ingredient) HasPDE() bool { return i.PDE != nil }

// HasLD50 reports whether an LD50 value was recorded.
func (i Ingredient) HasLD50() bool { return i.LD50 != nil }

// MgToG converts milligrams to grams.
func MgToG(mg float64) float64 {
	return mg / 1000
}

// KgToG converts kilograms to grams.
func KgToG(kg float64) float64 {
	return kg * 1000
}

// Float returns a pointer to v, handy for optional toxicity values.
func Float(v float64) *float64 {
	return &v
}
