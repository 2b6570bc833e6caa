// Package relay turns multi-vehicle candidates into concrete, timed relay
// plans and tracks hub exchange commitments. A plan is only ever built from
// the live fleet snapshot; when vehicle state has drifted since candidate
// generation the candidate is discarded and regenerated, never patched.
package relay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haulnet/relay/core/logger"
	"github.com/haulnet/relay/core/model"
)

// ErrStaleState means vehicle or hub state changed since the candidate was
// generated and the plan can no longer be honored.
var ErrStaleState = errors.New("candidate is stale")

// Config tunes plan validation. Values are hot-reloadable.
type Config struct {
	AvgSpeedKmh    float64 `json:"avg_speed_kmh"`
	HandoffMinutes int     `json:"handoff_minutes"`
}

// SetDefaults fills unset fields with working values.
func (c *Config) SetDefaults() {
	if c.AvgSpeedKmh <= 0 {
		c.AvgSpeedKmh = 72
	}
	if c.HandoffMinutes <= 0 {
		c.HandoffMinutes = 30
	}
}

type commitment struct {
	loadID string
	hubIDs []string
	window model.TimeWindow
}

// Planner validates relay candidates against the live snapshot and keeps the
// ledger of active hub exchanges.
type Planner struct {
	cfg func() Config
	log logger.Logger

	mu     sync.RWMutex
	active map[string]commitment // load id -> commitment
}

// NewPlanner returns a Planner reading its tuning from cfg on each call.
func NewPlanner(cfg func() Config, log logger.Logger) *Planner {
	return &Planner{cfg: cfg, log: log, active: make(map[string]commitment)}
}

// Plan re-projects the candidate's leg timing from current vehicle
// snapshots and validates every hand-off and the load's time windows. It
// returns ErrStaleState when a vehicle can no longer make its leg or the
// re-projected timing misses a window; callers discard the candidate and
// request regeneration.
func (p *Planner) Plan(c model.Candidate, l model.Load, lookup func(vehicleID string) (model.VehicleSnapshot, bool), now time.Time) (model.RelayPlan, error) {
	if c.Kind != model.MatchRelay {
		return model.RelayPlan{}, fmt.Errorf("plan %s: not a relay candidate", c.ID)
	}
	cfg := p.cfg()
	cfg.SetDefaults()
	buffer := time.Duration(cfg.HandoffMinutes) * time.Minute

	legs := make([]model.Leg, len(c.Legs))
	copy(legs, c.Legs)

	var prevArrive time.Time
	for i := range legs {
		v, ok := lookup(legs[i].VehicleID)
		if !ok {
			return model.RelayPlan{}, fmt.Errorf("plan %s: vehicle %s disappeared: %w", c.ID, legs[i].VehicleID, ErrStaleState)
		}

		reachKm := v.Position.DistanceKm(legs[i].Pickup)
		reachAt := now.Add(time.Duration(reachKm / cfg.AvgSpeedKmh * float64(time.Hour)))

		var depart time.Time
		if i == 0 {
			// First leg starts from the vehicle's current position. The
			// vehicle waits for the pickup window to open but may not miss
			// its close.
			if reachAt.After(l.PickupWindow.Latest) {
				return model.RelayPlan{}, fmt.Errorf("plan %s: vehicle %s misses pickup window: %w",
					c.ID, legs[i].VehicleID, ErrStaleState)
			}
			depart = laterOf(reachAt, l.PickupWindow.Earliest)
			legs[i].Start = v.Position
		} else {
			// Hand-off legs: the vehicle must reach the hub at or before
			// the previous leg's arrival plus the hand-off buffer.
			if reachAt.After(prevArrive.Add(buffer)) {
				return model.RelayPlan{}, fmt.Errorf("plan %s: vehicle %s misses hand-off at %s: %w",
					c.ID, legs[i].VehicleID, legs[i].StartHubID, ErrStaleState)
			}
			depart = laterOf(prevArrive, reachAt).Add(buffer)
			legs[i].Start = v.Position
		}

		haulKm := legs[i].Pickup.DistanceKm(legs[i].End)
		if (reachKm+haulKm)/cfg.AvgSpeedKmh > v.DutyHours {
			return model.RelayPlan{}, fmt.Errorf("plan %s: vehicle %s out of duty hours: %w",
				c.ID, legs[i].VehicleID, ErrStaleState)
		}

		legs[i].EmptyKm = reachKm
		legs[i].LoadedKm = haulKm
		legs[i].DepartAt = depart
		legs[i].ArriveAt = depart.Add(time.Duration(haulKm / cfg.AvgSpeedKmh * float64(time.Hour)))
		prevArrive = legs[i].ArriveAt
	}

	if prevArrive.After(l.DeliveryWindow.Latest) {
		return model.RelayPlan{}, fmt.Errorf("plan %s: delivery at %s misses window: %w",
			c.ID, prevArrive.Format(time.RFC3339), ErrStaleState)
	}

	plan := model.RelayPlan{
		LoadID:      c.LoadID,
		CandidateID: c.ID,
		Legs:        legs,
		PlannedAt:   now,
	}
	if err := plan.Validate(); err != nil {
		return model.RelayPlan{}, fmt.Errorf("plan %s: %w", c.ID, err)
	}
	return plan, nil
}

// Commit records the plan's hub exchanges in the ledger. The window spans
// from the first departure to the final arrival.
func (p *Planner) Commit(plan model.RelayPlan) {
	w := model.TimeWindow{
		Earliest: plan.Legs[0].DepartAt,
		Latest:   plan.Legs[len(plan.Legs)-1].ArriveAt,
	}
	p.mu.Lock()
	p.active[plan.LoadID] = commitment{loadID: plan.LoadID, hubIDs: plan.HubIDs(), window: w}
	p.mu.Unlock()
}

// Complete removes the plan for the load from the ledger, freeing its hub
// capacity and allowing deferred hub retirement to proceed.
func (p *Planner) Complete(loadID string) {
	p.mu.Lock()
	delete(p.active, loadID)
	p.mu.Unlock()
}

// Prune drops commitments whose plan window has fully elapsed, covering
// loads that reached delivery without an explicit Complete. It returns the
// number of commitments dropped.
func (p *Planner) Prune(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, c := range p.active {
		if c.window.Latest.Before(now) {
			delete(p.active, id)
			n++
		}
	}
	return n
}

// Active implements candidate.HubUsage: the number of committed exchanges at
// the hub overlapping the window.
func (p *Planner) Active(hubID string, w model.TimeWindow) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, c := range p.active {
		if !overlaps(c.window, w) {
			continue
		}
		for _, id := range c.hubIDs {
			if id == hubID {
				n++
				break
			}
		}
	}
	return n
}

// References reports whether any active plan routes through the hub. The hub
// selector consults this before retiring a hub.
func (p *Planner) References(hubID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.active {
		for _, id := range c.hubIDs {
			if id == hubID {
				return true
			}
		}
	}
	return false
}

func overlaps(a, b model.TimeWindow) bool {
	return !a.Latest.Before(b.Earliest) && !b.Latest.Before(a.Earliest)
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
