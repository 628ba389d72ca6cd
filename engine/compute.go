package engine

import (
	"fmt"

	"github.com/giygas/cleaning-validation-api/catalog/entities"
)

// Snapshot is an immutable view of everything the engine reads.
type Snapshot struct {
	Products      []entities.Product          `json:"products"`
	Machines      []entities.Machine          `json:"machines"`
	Criteria      entities.ScoringCriteria    `json:"scoringCriteria"`
	SafetyFactors entities.SafetyFactorConfig `json:"safetyFactors"`
	Settings      entities.Settings           `json:"settings"`
}

// TrainMaco pairs a train's MACO breakdown with the safety factor it used.
type TrainMaco struct {
	MacoResult
	SafetyFactorChoice SafetyFactorChoice `json:"safetyFactorChoice"`
}

// DerivedView is everything computed from a Snapshot.
type DerivedView struct {
	Trains   []Train              `json:"trains"`
	Maco     map[string]TrainMaco `json:"maco"`
	Studies  StudyPlan            `json:"studies"`
	Warnings []string             `json:"warnings"`
}

// Compute builds the trains of a snapshot, numbers them, calculates their MACO
// and plans the required studies. It only reads the snapshot, so concurrent
// calls are safe.
func Compute(s Snapshot) DerivedView {
	trains := OrderTrains(BuildTrains(s.Products, s.Machines, BuildOptions{
		Criteria:     s.Criteria,
		Toxicity:     s.Settings.Toxicity,
		SSAOverrides: s.Settings.SSAOverrides,
		StageOrder:   s.Settings.StageOrder,
	}))

	largest := LargestESSAByGroup(trains)
	view := DerivedView{
		Trains: trains,
		Maco:   make(map[string]TrainMaco, len(trains)),
	}

	for _, t := range trains {
		var override *float64
		if v, ok := s.Settings.SafetyFactorOverrides[t.Key]; ok {
			override = entities.Float(v)
		}
		choice, sfWarnings := ResolveSafetyFactor(s.SafetyFactors, t.DosageForm, override)

		res := CalculateMaco(t, largest[t.Group()], choice.Value, s.Settings.Toxicity)
		res.Warnings = append(sfWarnings, res.Warnings...)
		view.Maco[t.Key] = TrainMaco{MacoResult: res, SafetyFactorChoice: choice}

		for _, w := range t.Warnings {
			view.Warnings = append(view.Warnings, fmt.Sprintf("train %d: %s", t.Number, w))
		}
		for _, w := range res.Warnings {
			view.Warnings = append(view.Warnings, fmt.Sprintf("train %d MACO: %s", t.Number, w))
		}
	}

	view.Studies = PlanStudies(trains)
	return view
}

// TrainByNumber returns the train with the given display number.
func (v DerivedView) TrainByNumber(n int) (Train, bool) {
	if n < 1 || n > len(v.Trains) {
		return Train{}, false
	}
	t := v.Trains[n-1]
	return t, t.Number == n
}

// TrainByKey returns the train with the given key.
func (v DerivedView) TrainByKey(key string) (Train, bool) {
	for _, t := range v.Trains {
		if t.Key == key {
			return t, true
		}
	}
	return Train{}, false
}
