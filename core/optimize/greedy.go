package optimize

import (
	"sort"

	"github.com/haulnet/relay/core/model"
)

// greedyAssign selects candidates highest-score-first, skipping any that
// conflict with an earlier selection. Iteration order is fixed (score desc,
// load id asc, candidate id asc) so identical inputs always produce
// identical output. seed carries selections already made by a partial exact
// solve; pass nil to start fresh.
func greedyAssign(cands []model.Candidate, seed []model.Candidate) []model.Candidate {
	ordered := make([]model.Candidate, len(cands))
	copy(ordered, cands)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		if ordered[i].LoadID != ordered[j].LoadID {
			return ordered[i].LoadID < ordered[j].LoadID
		}
		return ordered[i].ID < ordered[j].ID
	})

	selected := make([]model.Candidate, 0, len(seed))
	usedLoads := make(map[string]struct{})
	usedVehicles := make(map[string]struct{})
	take := func(c model.Candidate) {
		selected = append(selected, c)
		usedLoads[c.LoadID] = struct{}{}
		for _, v := range c.VehicleIDs() {
			usedVehicles[v] = struct{}{}
		}
	}
	for _, c := range seed {
		take(c)
	}

	for _, c := range ordered {
		if _, ok := usedLoads[c.LoadID]; ok {
			continue
		}
		conflict := false
		for _, v := range c.VehicleIDs() {
			if _, ok := usedVehicles[v]; ok {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		take(c)
	}
	return selected
}
