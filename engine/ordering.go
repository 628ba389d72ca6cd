package engine

import "sort"

// OrderTrains returns a copy of the trains sorted by line, then dosage form,
// then discovery order, with Number assigned 1..N. The input is not modified.
func OrderTrains(trains []Train) []Train {
	ordered := make([]Train, len(trains))
	copy(ordered, trains)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.DosageForm != b.DosageForm {
			return a.DosageForm < b.DosageForm
		}
		return a.ID < b.ID
	})

	for i := range ordered {
		ordered[i].Number = i + 1
	}
	return ordered
}

// LargestESSAByGroup returns the largest ESSA among the trains of each
// (line, dosage form) group.
func LargestESSAByGroup(trains []Train) map[GroupKey]float64 {
	largest := make(map[GroupKey]float64)
	for _, t := range trains {
		g := t.Group()
		if t.ESSA > largest[g] {
			largest[g] = t.ESSA
		}
	}
	return largest
}
