// Package metrics defines the observability contract of the matching
// engine. Sinks implement the base MetricsSink interface plus any of the
// optional recorder interfaces; fan-out and concrete backends live in
// infra/metrics.
package metrics

import (
	"time"

	"github.com/haulnet/relay/core/model"
)

// MatchEvent is a reservation lifecycle transition.
type MatchEvent struct {
	MatchID    string
	LoadID     string
	VehicleIDs []string
	Kind       model.MatchKind
	State      model.MatchState
	Score      float64
	Time       time.Time
}

// MetricsSink records match events. All sinks support at least this.
type MetricsSink interface {
	RecordMatch(ev MatchEvent) error
}

// RunEvent summarizes a completed optimization run.
type RunEvent struct {
	RunID      string
	Status     model.SolverStatus
	Objective  float64
	OpenLoads  int
	Candidates int
	Assigned   int
	Conflicts  int
	SolveTime  time.Duration
	Time       time.Time
}

// RunRecorder records optimization runs.
type RunRecorder interface {
	RecordRun(ev RunEvent) error
}

// CandidateEvent captures per-load generation stats.
type CandidateEvent struct {
	LoadID    string
	Generated int
	Relays    int
	Time      time.Time
}

// CandidateRecorder records candidate generation stats.
type CandidateRecorder interface {
	RecordCandidates(ev CandidateEvent) error
}

// HubEvent captures a hub set change.
type HubEvent struct {
	HubID       string
	Action      string // "created" or "retired"
	Suitability float64
	Time        time.Time
}

// HubRecorder records hub lifecycle events.
type HubRecorder interface {
	RecordHub(ev HubEvent) error
}

// FleetSizeRecorder records the size of the tracked fleet.
type FleetSizeRecorder interface {
	RecordFleetSize(size int) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordMatch(MatchEvent) error           { return nil }
func (NopSink) RecordRun(RunEvent) error               { return nil }
func (NopSink) RecordCandidates(CandidateEvent) error  { return nil }
func (NopSink) RecordHub(HubEvent) error               { return nil }
func (NopSink) RecordFleetSize(int) error              { return nil }
