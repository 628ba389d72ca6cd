// Package engine groups products into shared-equipment trains and derives the
// train aggregates, MACO limits and the cleaning validation study plan from an
// immutable catalog snapshot.
package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/giygas/cleaning-validation-api/catalog/entities"
	"github.com/giygas/cleaning-validation-api/logging"
	"github.com/giygas/cleaning-validation-api/scoring"
)

// DefaultAssumedSSA is the swab sample area in cm² used when a train has no override.
const DefaultAssumedSSA = 25.0

// Aggregate is a minimum over the train together with the product it came from.
type Aggregate struct {
	Value     float64 `json:"value"`
	ProductID int     `json:"productId,omitempty"`
}

// WorstProduct is the highest-RPN ingredient found in a train.
type WorstProduct struct {
	ProductID      int    `json:"productId"`
	ProductName    string `json:"productName"`
	IngredientName string `json:"ingredientName"`
	RPN            int    `json:"rpn"`
	Rating         string `json:"rating"`
}

// MachineRef is one machine of a train path as resolved against the machine catalog.
type MachineRef struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	MachineNumber string  `json:"machineNumber"`
	Stage         string  `json:"stage"`
	Area          float64 `json:"area"`
	Missing       bool    `json:"missing,omitempty"`
}

// Train is the maximal group of products sharing line, dosage form and machine set.
// Key is deterministic for the same inputs; ID only within one build; Number is
// assigned by OrderTrains.
type Train struct {
	Key           string             `json:"key"`
	ID            int                `json:"id"`
	Number        int                `json:"number"`
	Line          string             `json:"line"`
	DosageForm    string             `json:"dosageForm"`
	MachineIDs    []int              `json:"machineIds"`
	Path          []MachineRef       `json:"path"`
	Products      []entities.Product `json:"products"`
	ESSA          float64            `json:"essa"`
	AssumedSSA    float64            `json:"assumedSsa"`
	LowestLTD     Aggregate          `json:"lowestLtd"`
	LowestPDE     *float64           `json:"lowestPde"`
	LowestLD50    *float64           `json:"lowestLd50"`
	MinMBSKg      Aggregate          `json:"minMbsKg"`
	MinBsMddRatio Aggregate          `json:"minBsMddRatio"`
	MinMddG       float64            `json:"minMddG"`
	WorstProduct  *WorstProduct      `json:"worstProductRpn"`
	Warnings      []string           `json:"warnings,omitempty"`
}

// GroupKey identifies a (line, dosage form) group.
type GroupKey struct {
	Line       string `json:"line"`
	DosageForm string `json:"dosageForm"`
}

// Group returns the (line, dosage form) group of the train.
func (t Train) Group() GroupKey {
	return GroupKey{Line: t.Line, DosageForm: t.DosageForm}
}

// WorstRPN returns the RPN of the worst product, 0 when none could be scored.
func (t Train) WorstRPN() int {
	if t.WorstProduct == nil {
		return 0
	}
	return t.WorstProduct.RPN
}

// BuildOptions carries the configuration the builder needs besides the catalog.
type BuildOptions struct {
	Criteria     entities.ScoringCriteria
	Toxicity     entities.ToxicityPreference
	SSAOverrides map[string]float64
	StageOrder   []string
}

// TrainKey derives the deterministic key of a train from its line, dosage form
// and machine ids. The ids are sorted, so input order does not matter.
func TrainKey(line, dosageForm string, machineIDs []int) string {
	ids := sortedIDs(machineIDs)
	raw, err := json.Marshal([]any{line, dosageForm, ids})
	if err != nil {
		// Strings and ints always marshal.
		panic(fmt.Sprintf("engine: marshal train key: %v", err))
	}
	return string(raw)
}

// BuildTrains partitions the products into trains and computes their aggregates.
// Products without machines are skipped. Trains come back in discovery order with
// IDs 1..N; call OrderTrains to number them.
func BuildTrains(products []entities.Product, machines []entities.Machine, opts BuildOptions) []Train {
	machineByID := make(map[int]entities.Machine, len(machines))
	for _, m := range machines {
		machineByID[m.ID] = m
	}

	var trains []Train
	index := make(map[string]int)

	for _, p := range products {
		if len(p.MachineIDs) == 0 {
			continue
		}

		line := p.LineOrDefault()
		form := p.DosageForm()
		key := TrainKey(line, form, p.MachineIDs)

		i, ok := index[key]
		if !ok {
			trains = append(trains, Train{
				Key:        key,
				ID:         len(trains) + 1,
				Line:       line,
				DosageForm: form,
				MachineIDs: sortedIDs(p.MachineIDs),
			})
			i = len(trains) - 1
			index[key] = i
		}
		trains[i].Products = append(trains[i].Products, p)
	}

	for i := range trains {
		t := &trains[i]
		t.Path, t.ESSA = resolvePath(t, machineByID, opts.StageOrder)
		t.AssumedSSA = assumedSSA(t, opts.SSAOverrides)
		aggregate(t, opts)
	}

	return trains
}

// resolvePath looks up the train's distinct machines and sums their area.
// Unknown machine ids contribute no area.
func resolvePath(t *Train, machineByID map[int]entities.Machine, stageOrder []string) ([]MachineRef, float64) {
	seen := make(map[int]bool, len(t.MachineIDs))
	path := make([]MachineRef, 0, len(t.MachineIDs))
	essa := 0.0

	for _, id := range t.MachineIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		m, ok := machineByID[id]
		if !ok {
			logging.Warn("Train references unknown machine", "train_key", t.Key, "machine_id", id)
			t.Warnings = append(t.Warnings, fmt.Sprintf("machine %d not found in machine catalog, area counted as 0", id))
			path = append(path, MachineRef{ID: id, Missing: true})
			continue
		}

		area := m.Area
		if !isFinite(area) || area < 0 {
			t.Warnings = append(t.Warnings, fmt.Sprintf("machine %d has invalid area %v, counted as 0", id, area))
			area = 0
		}
		essa += area
		path = append(path, MachineRef{
			ID:            m.ID,
			Name:          m.Name,
			MachineNumber: m.MachineNumber,
			Stage:         m.Stage,
			Area:          area,
		})
	}

	if !isFinite(essa) {
		t.Warnings = append(t.Warnings, "shared surface area overflows, ESSA counted as 0")
		essa = 0
	}

	sortPathByStage(path, stageOrder)
	return path, essa
}

func assumedSSA(t *Train, overrides map[string]float64) float64 {
	v, ok := overrides[t.Key]
	if !ok {
		return DefaultAssumedSSA
	}
	if !isPositive(v) {
		t.Warnings = append(t.Warnings, fmt.Sprintf("ignoring swab area override %v, using %v cm²", v, DefaultAssumedSSA))
		return DefaultAssumedSSA
	}
	return v
}

// aggregate folds over the train's products and ingredients. Values that cannot
// be used (missing, non-positive, non-finite) are skipped with a warning and the
// aggregate falls back to 0 rather than a sentinel.
func aggregate(t *Train, opts BuildOptions) {
	var (
		ltd, mbs, ratio *Aggregate
		pde, ld50, mddG *float64
		worst           *WorstProduct
	)

	for _, p := range t.Products {
		batchOK := isPositive(p.BatchSizeKg)
		if batchOK {
			if mbs == nil || p.BatchSizeKg < mbs.Value {
				mbs = &Aggregate{Value: p.BatchSizeKg, ProductID: p.ID}
			}
		} else {
			t.Warnings = append(t.Warnings, fmt.Sprintf("product %s has invalid batch size %v", p.ProductCode, p.BatchSizeKg))
		}

		for _, ing := range p.ActiveIngredients {
			if isPositive(ing.TherapeuticDose) {
				if ltd == nil || ing.TherapeuticDose < ltd.Value {
					ltd = &Aggregate{Value: ing.TherapeuticDose, ProductID: p.ID}
				}
			}

			if ing.PDE != nil && isPositive(*ing.PDE) && (pde == nil || *ing.PDE < *pde) {
				pde = entities.Float(*ing.PDE)
			}
			if ing.LD50 != nil && isPositive(*ing.LD50) && (ld50 == nil || *ing.LD50 < *ld50) {
				ld50 = entities.Float(*ing.LD50)
			}

			if isPositive(ing.MDD) {
				g := entities.MgToG(ing.MDD)
				if mddG == nil || g < *mddG {
					mddG = entities.Float(g)
				}
				if batchOK {
					r := entities.KgToG(p.BatchSizeKg) / g
					switch {
					case !isPositive(r):
						t.Warnings = append(t.Warnings, fmt.Sprintf("batch size / MDD ratio of %s in product %s is not finite, skipped", ing.Name, p.ProductCode))
					case ratio == nil || r < ratio.Value:
						ratio = &Aggregate{Value: r, ProductID: p.ID}
					}
				}
			} else {
				t.Warnings = append(t.Warnings, fmt.Sprintf("ingredient %s of product %s has invalid MDD %v", ing.Name, p.ProductCode, ing.MDD))
			}

			rpn, rating := 0, scoring.NoRating
			scores, err := scoring.Calculate(ing, opts.Criteria, opts.Toxicity)
			if err != nil {
				logging.Warn("Skipping ingredient in risk ranking", "train_key", t.Key, "product", p.ProductCode, "ingredient", ing.Name, "error", err)
				t.Warnings = append(t.Warnings, fmt.Sprintf("ingredient %s of product %s ranked as RPN 0: %v", ing.Name, p.ProductCode, err))
			} else {
				rpn, rating = scores.RPN, scores.Rating
			}
			if worst == nil || rpn > worst.RPN {
				worst = &WorstProduct{
					ProductID:      p.ID,
					ProductName:    p.Name,
					IngredientName: ing.Name,
					RPN:            rpn,
					Rating:         rating,
				}
			}
		}
	}

	t.LowestLTD = orZero(ltd, t, "lowest therapeutic dose")
	t.MinMBSKg = orZero(mbs, t, "minimum batch size")
	t.MinBsMddRatio = orZero(ratio, t, "minimum batch size / MDD ratio")
	t.LowestPDE = pde
	t.LowestLD50 = ld50
	if mddG != nil {
		t.MinMddG = *mddG
	}
	t.WorstProduct = worst
}

func orZero(a *Aggregate, t *Train, name string) Aggregate {
	if a == nil {
		t.Warnings = append(t.Warnings, fmt.Sprintf("no valid value for %s, defaulting to 0", name))
		return Aggregate{}
	}
	return *a
}

func sortPathByStage(path []MachineRef, stageOrder []string) {
	rank := make(map[string]int, len(stageOrder))
	for i, stage := range stageOrder {
		rank[stage] = i
	}
	stageRank := func(stage string) int {
		if r, ok := rank[stage]; ok {
			return r
		}
		return len(stageOrder)
	}

	sort.SliceStable(path, func(i, j int) bool {
		ri, rj := stageRank(path[i].Stage), stageRank(path[j].Stage)
		if ri != rj {
			return ri < rj
		}
		if path[i].Stage != path[j].Stage {
			return path[i].Stage < path[j].Stage
		}
		return path[i].ID < path[j].ID
	})
}

func sortedIDs(ids []int) []int {
	out := make([]int, len(ids))
	copy(out, ids)
	sort.Ints(out)
	return out
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

func isPositive(v float64) bool {
	return v > 0 && isFinite(v)
}
