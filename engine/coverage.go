package engine

import "sort"

// StudyRef is a train selected as a cleaning validation study.
type StudyRef struct {
	TrainKey      string `json:"trainKey"`
	TrainNumber   int    `json:"trainNumber"`
	RPN           int    `json:"rpn"`
	MachineIDs    []int  `json:"machineIds"`
	NewMachineIDs []int  `json:"newMachineIds"`
}

// GroupStudies is the study selection of one (line, dosage form) group.
type GroupStudies struct {
	Line              string     `json:"line"`
	DosageForm        string     `json:"dosageForm"`
	Count             int        `json:"count"`
	Selected          []StudyRef `json:"selectedTrains"`
	CoveredMachineIDs []int      `json:"coveredMachineIds"`
	TrainCount        int        `json:"trainCount"`
}

// StudyPlan is the study selection over all groups.
type StudyPlan struct {
	Groups []GroupStudies `json:"groups"`
	Total  int            `json:"total"`
}

// SelectRequiredStudies picks the trains to validate within one group. Trains
// are walked from highest to lowest worst-case RPN (stable on ties) and a train
// is selected when it brings at least one machine not covered yet. This is a
// greedy approximation of the minimum set cover, not an optimal one.
func SelectRequiredStudies(group []Train) GroupStudies {
	var gs GroupStudies
	if len(group) > 0 {
		gs.Line, gs.DosageForm = group[0].Line, group[0].DosageForm
	}
	gs.TrainCount = len(group)

	ranked := make([]Train, len(group))
	copy(ranked, group)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WorstRPN() > ranked[j].WorstRPN()
	})

	covered := make(map[int]bool)
	for _, t := range ranked {
		var fresh []int
		for _, id := range t.MachineIDs {
			if !covered[id] {
				covered[id] = true
				fresh = append(fresh, id)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		gs.Count++
		gs.Selected = append(gs.Selected, StudyRef{
			TrainKey:      t.Key,
			TrainNumber:   t.Number,
			RPN:           t.WorstRPN(),
			MachineIDs:    t.MachineIDs,
			NewMachineIDs: fresh,
		})
	}

	gs.CoveredMachineIDs = make([]int, 0, len(covered))
	for id := range covered {
		gs.CoveredMachineIDs = append(gs.CoveredMachineIDs, id)
	}
	sort.Ints(gs.CoveredMachineIDs)
	return gs
}

// PlanStudies runs SelectRequiredStudies for every (line, dosage form) group.
// Groups are reported sorted by line then dosage form; trains keep their input
// order within a group.
func PlanStudies(trains []Train) StudyPlan {
	groups := make(map[GroupKey][]Train)
	var keys []GroupKey
	for _, t := range trains {
		g := t.Group()
		if _, ok := groups[g]; !ok {
			keys = append(keys, g)
		}
		groups[g] = append(groups[g], t)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Line != keys[j].Line {
			return keys[i].Line < keys[j].Line
		}
		return keys[i].DosageForm < keys[j].DosageForm
	})

	plan := StudyPlan{Groups: make([]GroupStudies, 0, len(keys))}
	for _, k := range keys {
		gs := SelectRequiredStudies(groups[k])
		plan.Groups = append(plan.Groups, gs)
		plan.Total += gs.Count
	}
	return plan
}
