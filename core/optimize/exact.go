package optimize

import (
	"context"
	"errors"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/haulnet/relay/core/model"
)

// ErrSolverTimeout means the exact solve exceeded its wall-clock budget.
var ErrSolverTimeout = errors.New("exact solver exceeded time budget")

const selectTol = 1e-6

// exactSolve maximizes total score via the LP relaxation of the assignment
// problem: one variable per candidate, at most one candidate per load, at
// most one use per vehicle. It runs the simplex on standard form obtained
// through lp.Convert.
func exactSolve(cands []model.Candidate) ([]float64, error) {
	n := len(cands)

	loadIdx := indexBy(cands, func(c model.Candidate) []string { return []string{c.LoadID} })
	vehIdx := indexBy(cands, func(c model.Candidate) []string { return c.VehicleIDs() })

	rows := len(loadIdx) + len(vehIdx) + n
	g := mat.NewDense(rows, n, nil)
	h := make([]float64, rows)

	r := 0
	for _, group := range loadIdx {
		for _, j := range group {
			g.Set(r, j, 1)
		}
		h[r] = 1
		r++
	}
	for _, group := range vehIdx {
		for _, j := range group {
			g.Set(r, j, 1)
		}
		h[r] = 1
		r++
	}
	for j := 0; j < n; j++ {
		g.Set(r, j, 1)
		h[r] = 1
		r++
	}

	// Simplex minimizes, so negate the scores.
	c := make([]float64, n)
	for j, cand := range cands {
		c[j] = -cand.Score
	}

	cStd, aStd, bStd := lp.Convert(c, g, h, nil, nil)
	_, sol, err := lp.Simplex(cStd, aStd, bStd, 1e-7, nil)
	if err != nil {
		return nil, err
	}
	return sol[:n], nil
}

// lpSolve points at the solver so tests can simulate failures and timeouts.
var lpSolve = exactSolve

// indexBy groups candidate indexes by key, in deterministic key order.
func indexBy(cands []model.Candidate, keys func(model.Candidate) []string) [][]int {
	byKey := make(map[string][]int)
	for j, c := range cands {
		for _, k := range keys(c) {
			byKey[k] = append(byKey[k], j)
		}
	}
	ordered := make([]string, 0, len(byKey))
	for k := range byKey {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)
	groups := make([][]int, len(ordered))
	for i, k := range ordered {
		groups[i] = byKey[k]
	}
	return groups
}

// solveExact runs the LP under the context's deadline. The simplex itself is
// not interruptible, so on timeout the result is abandoned and the caller
// degrades to the greedy fallback; the stray goroutine finishes and its
// buffered channel is collected.
func solveExact(ctx context.Context, cands []model.Candidate) ([]model.Candidate, model.SolverStatus, error) {
	type outcome struct {
		sol []float64
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		sol, err := lpSolve(cands)
		ch <- outcome{sol: sol, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, model.SolverTimedOut, ErrSolverTimeout
	case out := <-ch:
		if out.err != nil {
			return nil, model.SolverFeasible, out.err
		}
		selected, fractional := pickIntegral(cands, out.sol)
		if fractional {
			// The relay constraints are not totally unimodular, so the LP
			// may return a fractional vertex. Resolve the remainder greedily
			// over the still-unconflicted candidates.
			selected = greedyAssign(remaining(cands, selected), selected)
			return selected, model.SolverFeasible, nil
		}
		return selected, model.SolverOptimal, nil
	}
}

// pickIntegral returns the candidates with an (almost) integral unit value
// and whether any mass was left fractional.
func pickIntegral(cands []model.Candidate, sol []float64) ([]model.Candidate, bool) {
	var selected []model.Candidate
	fractional := false
	for j, x := range sol {
		switch {
		case x >= 1-selectTol:
			selected = append(selected, cands[j])
		case x > selectTol:
			fractional = true
		}
	}
	return selected, fractional
}

// remaining filters out candidates conflicting with an already selected one.
func remaining(cands, selected []model.Candidate) []model.Candidate {
	usedLoads := make(map[string]struct{}, len(selected))
	usedVehicles := make(map[string]struct{})
	for _, c := range selected {
		usedLoads[c.LoadID] = struct{}{}
		for _, v := range c.VehicleIDs() {
			usedVehicles[v] = struct{}{}
		}
	}
	var rest []model.Candidate
	for _, c := range cands {
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
		if !conflict {
			rest = append(rest, c)
		}
	}
	return rest
}
