package model

import "time"

// SolverStatus is the terminal outcome of an optimization run.
type SolverStatus int

const (
	SolverOptimal SolverStatus = iota
	SolverFeasible              // greedy fallback produced the assignment
	SolverInfeasible            // no load had any feasible candidate
	SolverTimedOut              // exact solve exceeded its budget, greedy used
)

// String returns a human-readable solver status.
func (s SolverStatus) String() string {
	switch s {
	case SolverOptimal:
		return "optimal"
	case SolverFeasible:
		return "feasible"
	case SolverInfeasible:
		return "infeasible"
	case SolverTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// LoadFailure records why a load could not be covered in a run. Failures are
// isolated per load and never abort the batch.
type LoadFailure struct {
	LoadID string `json:"load_id"`
	Reason string `json:"reason"`
}

// OptimizationRun summarizes one batch assignment pass.
type OptimizationRun struct {
	ID          string        `json:"run_id"`
	SnapshotAt  time.Time     `json:"snapshot_at"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Status      SolverStatus  `json:"status"`
	Objective   float64       `json:"objective"`
	OpenLoads   int           `json:"open_loads"`
	Candidates  int           `json:"candidates"`
	Matches     []Match       `json:"matches"`
	Failures    []LoadFailure `json:"failures,omitempty"`
}
