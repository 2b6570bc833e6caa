package optimize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haulnet/relay/core/candidate"
	"github.com/haulnet/relay/core/hubs"
	"github.com/haulnet/relay/core/model"
	"github.com/haulnet/relay/core/relay"
	"github.com/haulnet/relay/core/reserve"
	"github.com/haulnet/relay/core/score"
	"github.com/haulnet/relay/core/snapshot"
	"github.com/haulnet/relay/infra/logger"
)

type fixture struct {
	opt     *Optimizer
	snap    *snapshot.Store
	hubs    *hubs.Store
	res     *reserve.Manager
	planner *relay.Planner
	clock   *time.Time
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	snap := snapshot.NewStore()
	hubset := hubs.NewStore()
	gen := candidate.NewGenerator(func() candidate.Config { return candidate.Config{} })
	planner := relay.NewPlanner(func() relay.Config { return relay.Config{} }, logger.NopLogger{})
	clock := time.Now().UTC()
	res := reserve.NewManager(time.Minute, logger.NopLogger{},
		reserve.WithClock(func() time.Time { return clock }))
	scorer := func() score.Scorer { return score.New(score.Config{}, nil) }

	opt, err := New(
		func() Config { return cfg },
		scorer, gen, snap, hubset, planner, res,
		nil, nil, nil, logger.NopLogger{},
	)
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	return fixture{opt: opt, snap: snap, hubs: hubset, res: res, planner: planner, clock: &clock}
}

func seedVehicle(f fixture, id string, pos model.GeoPoint, eq model.EquipmentClass, at time.Time) {
	f.snap.ApplyVehicleUpdate(model.VehicleUpdate{
		VehicleID: id, Position: pos, DutyHours: 10,
		CapacityLb: 44000, Equipment: eq, Timestamp: at,
	})
}

func seedLoad(f fixture, id string, at time.Time) {
	f.snap.ApplyLoadEvent(model.LoadEvent{
		Type: model.LoadEventCreated,
		Load: model.Load{
			ID:          id,
			Origin:      model.GeoPoint{Lat: 41.88, Lon: -87.63},
			Destination: model.GeoPoint{Lat: 39.77, Lon: -86.16},
			PickupWindow: model.TimeWindow{
				Earliest: at.Add(time.Hour), Latest: at.Add(4 * time.Hour),
			},
			DeliveryWindow: model.TimeWindow{
				Earliest: at.Add(3 * time.Hour), Latest: at.Add(10 * time.Hour),
			},
			WeightLb:  20000,
			Equipment: model.EquipmentDryVan,
			Status:    model.LoadOpen,
		},
		Timestamp: at,
	})
}

func TestRunOncePausesOnStaleFeed(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.opt.RunOnce(context.Background(), time.Now())
	if !errors.Is(err, ErrFeedDown) {
		t.Fatalf("err = %v, want ErrFeedDown", err)
	}
}

func TestRunOnceAssignsOpenLoad(t *testing.T) {
	now := time.Now().UTC()
	f := newFixture(t, Config{})
	seedVehicle(f, "v1", model.GeoPoint{Lat: 41.95, Lon: -87.70}, model.EquipmentDryVan, now)
	seedLoad(f, "l1", now)

	run, err := f.opt.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if run.Status != model.SolverOptimal {
		t.Fatalf("status = %s, want optimal", run.Status)
	}
	if run.OpenLoads != 1 || len(run.Matches) != 1 {
		t.Fatalf("run = %+v, want one open load matched", run)
	}
	m := run.Matches[0]
	if m.LoadID != "l1" || m.State != model.MatchHeld {
		t.Errorf("match = %+v, want held match for l1", m)
	}
	if _, ok := f.res.ByLoad("l1"); !ok {
		t.Errorf("reservation manager has no hold for l1")
	}
	l, _ := f.snap.Load("l1")
	if l.Status != model.LoadReserved {
		t.Errorf("load status = %v, want reserved", l.Status)
	}
	if run.Objective <= 0 {
		t.Errorf("objective = %f, want > 0", run.Objective)
	}
}

func TestRunOnceInfeasibleWithoutCandidates(t *testing.T) {
	now := time.Now().UTC()
	f := newFixture(t, Config{})
	seedVehicle(f, "reefer", model.GeoPoint{Lat: 41.9, Lon: -87.7}, model.EquipmentReefer, now)
	seedLoad(f, "l1", now)

	run, err := f.opt.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if run.Status != model.SolverInfeasible {
		t.Fatalf("status = %s, want infeasible", run.Status)
	}
	if len(run.Failures) != 1 || run.Failures[0].LoadID != "l1" {
		t.Errorf("failures = %+v, want l1 reported", run.Failures)
	}
	if len(run.Matches) != 0 {
		t.Errorf("matches = %+v, want none", run.Matches)
	}
}

func TestRunOnceExistingHoldWins(t *testing.T) {
	now := time.Now().UTC()
	f := newFixture(t, Config{})
	seedVehicle(f, "v1", model.GeoPoint{Lat: 41.95, Lon: -87.70}, model.EquipmentDryVan, now)
	seedLoad(f, "l1", now)

	// v1 is already committed to another load when the batch lands.
	if _, err := f.res.Hold(gc("lx:v1", "lx", 0.5, "v1"), time.Minute); err != nil {
		t.Fatalf("pre-hold: %v", err)
	}

	run, err := f.opt.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(run.Matches) != 0 {
		t.Fatalf("matches = %+v, want batch pick rejected by existing hold", run.Matches)
	}
	found := false
	for _, fl := range run.Failures {
		if fl.LoadID == "l1" {
			found = true
		}
	}
	if !found {
		t.Errorf("failures = %+v, want conflict for l1", run.Failures)
	}
	l, _ := f.snap.Load("l1")
	if l.Status != model.LoadCandidate {
		t.Errorf("load status = %v, want candidate (not reserved)", l.Status)
	}
}

func TestRunOnceGreedyAboveExactLimit(t *testing.T) {
	now := time.Now().UTC()
	f := newFixture(t, Config{ExactLimit: 1})
	seedVehicle(f, "v1", model.GeoPoint{Lat: 41.95, Lon: -87.70}, model.EquipmentDryVan, now)
	seedVehicle(f, "v2", model.GeoPoint{Lat: 41.80, Lon: -87.60}, model.EquipmentDryVan, now)
	seedLoad(f, "l1", now)

	run, err := f.opt.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if run.Status != model.SolverFeasible {
		t.Fatalf("status = %s, want feasible from greedy path", run.Status)
	}
	if len(run.Matches) != 1 {
		t.Fatalf("matches = %+v, want exactly one", run.Matches)
	}
}

func TestRunOnceRematchesAfterHoldExpiry(t *testing.T) {
	f := newFixture(t, Config{FeedMaxAgeSec: 3600})
	now := *f.clock
	seedVehicle(f, "v1", model.GeoPoint{Lat: 41.95, Lon: -87.70}, model.EquipmentDryVan, now)
	seedLoad(f, "l1", now)

	first, err := f.opt.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first.Matches) != 1 {
		t.Fatalf("first run matches = %+v, want one held", first.Matches)
	}

	// The carrier never accepts; the hold lapses and a sweep expires it.
	*f.clock = now.Add(10 * time.Minute)
	if expired := f.res.Sweep(time.Hour); len(expired) != 1 {
		t.Fatalf("sweep expired %d matches, want 1", len(expired))
	}
	l, _ := f.snap.Load("l1")
	if l.Status != model.LoadOpen {
		t.Fatalf("load status after expiry = %v, want open", l.Status)
	}

	// The next batch must see the load again and re-match it.
	second, err := f.opt.RunOnce(context.Background(), *f.clock)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.OpenLoads != 1 || len(second.Matches) != 1 {
		t.Fatalf("second run = %+v, want the lapsed load re-matched", second)
	}
	m := second.Matches[0]
	if m.LoadID != "l1" || m.State != model.MatchHeld {
		t.Errorf("match = %+v, want fresh held match for l1", m)
	}
}

func TestExpiredRelayHoldFreesHubLedger(t *testing.T) {
	f := newFixture(t, Config{})
	now := *f.clock

	plan := model.RelayPlan{
		LoadID:      "l1",
		CandidateID: "l1:[va vb]",
		Legs: []model.Leg{
			{VehicleID: "va", HubID: "h1", DepartAt: now, ArriveAt: now.Add(2 * time.Hour)},
			{VehicleID: "vb", StartHubID: "h1", DepartAt: now.Add(150 * time.Minute), ArriveAt: now.Add(4 * time.Hour)},
		},
		PlannedAt: now,
	}
	f.planner.Commit(plan)
	if _, err := f.res.Hold(gc("l1:[va vb]", "l1", 0.7, "va", "vb"), time.Minute); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if !f.planner.References("h1") {
		t.Fatalf("committed hub not referenced")
	}

	*f.clock = now.Add(2 * time.Minute)
	f.res.Sweep(time.Hour)
	if f.planner.References("h1") {
		t.Errorf("hub still referenced after the relay hold expired")
	}
	w := model.TimeWindow{Earliest: now, Latest: now.Add(4 * time.Hour)}
	if got := f.planner.Active("h1", w); got != 0 {
		t.Errorf("Active = %d after expiry, want 0", got)
	}
}

func TestMatchOnDemand(t *testing.T) {
	now := time.Now().UTC()
	f := newFixture(t, Config{})
	seedVehicle(f, "v1", model.GeoPoint{Lat: 41.95, Lon: -87.70}, model.EquipmentDryVan, now)
	seedLoad(f, "l1", now)

	m, err := f.opt.MatchOnDemand("l1", now)
	if err != nil {
		t.Fatalf("match on demand: %v", err)
	}
	if m.LoadID != "l1" || m.State != model.MatchHeld {
		t.Fatalf("match = %+v, want held match for l1", m)
	}

	// The load key is taken, so a second request cannot commit anything.
	if _, err := f.opt.MatchOnDemand("l1", now); !errors.Is(err, reserve.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	if _, err := f.opt.MatchOnDemand("ghost", now); err == nil {
		t.Fatalf("unknown load must not match")
	}
}
