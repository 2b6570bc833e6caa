package relay

import (
	"errors"
	"testing"
	"time"

	"github.com/haulnet/relay/core/model"
	"github.com/haulnet/relay/infra/logger"
)

var (
	chicago = model.GeoPoint{Lat: 41.88, Lon: -87.63}
	indy    = model.GeoPoint{Lat: 39.77, Lon: -86.16}
	midHub  = model.GeoPoint{Lat: 40.80, Lon: -86.90}
)

func relayCandidate() model.Candidate {
	return model.Candidate{
		ID:     "l1:va>h1>vb",
		LoadID: "l1",
		Kind:   model.MatchRelay,
		Legs: []model.Leg{
			{VehicleID: "va", Pickup: chicago, End: midHub, HubID: "h1"},
			{VehicleID: "vb", Pickup: midHub, End: indy, StartHubID: "h1"},
		},
	}
}

func relayLoad(now time.Time) model.Load {
	return model.Load{
		ID:             "l1",
		Origin:         chicago,
		Destination:    indy,
		PickupWindow:   model.TimeWindow{Earliest: now, Latest: now.Add(4 * time.Hour)},
		DeliveryWindow: model.TimeWindow{Earliest: now, Latest: now.Add(12 * time.Hour)},
	}
}

func newPlanner() *Planner {
	return NewPlanner(func() Config { return Config{} }, logger.NopLogger{})
}

func fleet(positions map[string]model.GeoPoint, duty map[string]float64) func(string) (model.VehicleSnapshot, bool) {
	return func(id string) (model.VehicleSnapshot, bool) {
		pos, ok := positions[id]
		if !ok {
			return model.VehicleSnapshot{}, false
		}
		return model.VehicleSnapshot{ID: id, Position: pos, DutyHours: duty[id], CapacityLb: 44000}, true
	}
}

func TestPlanChainsLegs(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	lookup := fleet(
		map[string]model.GeoPoint{"va": {Lat: 41.95, Lon: -87.70}, "vb": {Lat: 40.85, Lon: -86.95}},
		map[string]float64{"va": 4, "vb": 4},
	)

	plan, err := newPlanner().Plan(relayCandidate(), relayLoad(now), lookup, now)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if got := plan.HubIDs(); len(got) != 1 || got[0] != "h1" {
		t.Errorf("hub ids = %v, want [h1]", got)
	}
	a, b := plan.Legs[0], plan.Legs[1]
	if a.HubID != b.StartHubID {
		t.Errorf("legs do not chain: %q vs %q", a.HubID, b.StartHubID)
	}
	if !b.DepartAt.After(a.ArriveAt) {
		t.Errorf("second leg departs %v before first arrives %v plus hand-off", b.DepartAt, a.ArriveAt)
	}
	if b.ArriveAt.Before(a.ArriveAt) {
		t.Errorf("arrival times not monotonic")
	}
}

func TestPlanStaleOnMissingVehicle(t *testing.T) {
	now := time.Now()
	lookup := fleet(
		map[string]model.GeoPoint{"va": {Lat: 41.95, Lon: -87.70}},
		map[string]float64{"va": 4},
	)
	_, err := newPlanner().Plan(relayCandidate(), relayLoad(now), lookup, now)
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("err = %v, want ErrStaleState", err)
	}
}

func TestPlanStaleOnMissedHandoff(t *testing.T) {
	now := time.Now()
	// vb drifted hundreds of km from the hub since generation.
	lookup := fleet(
		map[string]model.GeoPoint{"va": {Lat: 41.95, Lon: -87.70}, "vb": {Lat: 35.0, Lon: -95.0}},
		map[string]float64{"va": 4, "vb": 20},
	)
	_, err := newPlanner().Plan(relayCandidate(), relayLoad(now), lookup, now)
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("err = %v, want ErrStaleState", err)
	}
}

func TestPlanStaleOnDutyExhausted(t *testing.T) {
	now := time.Now()
	lookup := fleet(
		map[string]model.GeoPoint{"va": {Lat: 41.95, Lon: -87.70}, "vb": {Lat: 40.85, Lon: -86.95}},
		map[string]float64{"va": 0.5, "vb": 4},
	)
	_, err := newPlanner().Plan(relayCandidate(), relayLoad(now), lookup, now)
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("err = %v, want ErrStaleState", err)
	}
}

func TestPlanRejectsDirectCandidate(t *testing.T) {
	c := relayCandidate()
	c.Kind = model.MatchDirect
	if _, err := newPlanner().Plan(c, relayLoad(time.Now()), nil, time.Now()); err == nil {
		t.Fatalf("direct candidate accepted by relay planner")
	}
}

func TestPlanStaleOnMissedPickupWindow(t *testing.T) {
	now := time.Now()
	lookup := fleet(
		map[string]model.GeoPoint{"va": {Lat: 41.95, Lon: -87.70}, "vb": {Lat: 40.85, Lon: -86.95}},
		map[string]float64{"va": 4, "vb": 4},
	)
	l := relayLoad(now)
	// Pickup closed a minute ago; the re-projected reach time cannot make it.
	l.PickupWindow.Latest = now.Add(-time.Minute)
	_, err := newPlanner().Plan(relayCandidate(), l, lookup, now)
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("err = %v, want ErrStaleState", err)
	}
}

func TestPlanStaleOnMissedDeliveryWindow(t *testing.T) {
	now := time.Now()
	lookup := fleet(
		map[string]model.GeoPoint{"va": {Lat: 41.95, Lon: -87.70}, "vb": {Lat: 40.85, Lon: -86.95}},
		map[string]float64{"va": 4, "vb": 4},
	)
	l := relayLoad(now)
	// Both legs remain drivable but the re-projected final arrival lands
	// past the delivery window.
	l.DeliveryWindow.Latest = now.Add(time.Hour)
	_, err := newPlanner().Plan(relayCandidate(), l, lookup, now)
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("err = %v, want ErrStaleState", err)
	}
}

func TestPlanWaitsForPickupWindowOpen(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	lookup := fleet(
		map[string]model.GeoPoint{"va": {Lat: 41.95, Lon: -87.70}, "vb": {Lat: 40.85, Lon: -86.95}},
		map[string]float64{"va": 5, "vb": 5},
	)
	l := relayLoad(now)
	l.PickupWindow.Earliest = now.Add(2 * time.Hour)
	l.DeliveryWindow.Latest = now.Add(14 * time.Hour)

	plan, err := newPlanner().Plan(relayCandidate(), l, lookup, now)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Legs[0].DepartAt.Before(l.PickupWindow.Earliest) {
		t.Errorf("first leg departs %v before pickup window opens %v",
			plan.Legs[0].DepartAt, l.PickupWindow.Earliest)
	}
}

func TestPruneDropsElapsedPlans(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	p := newPlanner()
	lookup := fleet(
		map[string]model.GeoPoint{"va": {Lat: 41.95, Lon: -87.70}, "vb": {Lat: 40.85, Lon: -86.95}},
		map[string]float64{"va": 4, "vb": 4},
	)
	plan, err := p.Plan(relayCandidate(), relayLoad(now), lookup, now)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	p.Commit(plan)

	if n := p.Prune(now); n != 0 {
		t.Fatalf("pruned %d plans still in flight", n)
	}
	if n := p.Prune(plan.Legs[1].ArriveAt.Add(time.Minute)); n != 1 {
		t.Fatalf("pruned %d elapsed plans, want 1", n)
	}
	if p.References("h1") {
		t.Errorf("hub still referenced after prune")
	}
}

func TestLedgerUsageAndRetirementGuard(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	p := newPlanner()
	lookup := fleet(
		map[string]model.GeoPoint{"va": {Lat: 41.95, Lon: -87.70}, "vb": {Lat: 40.85, Lon: -86.95}},
		map[string]float64{"va": 4, "vb": 4},
	)
	plan, err := p.Plan(relayCandidate(), relayLoad(now), lookup, now)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	p.Commit(plan)

	during := model.TimeWindow{Earliest: now, Latest: now.Add(12 * time.Hour)}
	if got := p.Active("h1", during); got != 1 {
		t.Errorf("Active during plan = %d, want 1", got)
	}
	after := model.TimeWindow{Earliest: now.Add(48 * time.Hour), Latest: now.Add(72 * time.Hour)}
	if got := p.Active("h1", after); got != 0 {
		t.Errorf("Active after plan = %d, want 0", got)
	}
	if !p.References("h1") {
		t.Errorf("References missed committed hub")
	}
	if p.References("h2") {
		t.Errorf("References reported unknown hub")
	}

	p.Complete("l1")
	if p.References("h1") {
		t.Errorf("hub still referenced after completion")
	}
}
