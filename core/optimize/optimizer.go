// Package optimize runs the periodic network-wide assignment over all open
// loads, and the on-demand single-match path. Candidate generation and
// scoring are pure over an immutable snapshot and run in parallel; the only
// serialized step is the per-key hold in the reservation manager, taken only
// after a solve completes so an aborted pass leaves no partial holds.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haulnet/relay/core/candidate"
	"github.com/haulnet/relay/core/hubs"
	"github.com/haulnet/relay/core/logger"
	"github.com/haulnet/relay/core/metrics"
	"github.com/haulnet/relay/core/model"
	"github.com/haulnet/relay/core/relay"
	"github.com/haulnet/relay/core/reserve"
	"github.com/haulnet/relay/core/score"
	"github.com/haulnet/relay/core/snapshot"
	"github.com/haulnet/relay/internal/eventbus"
)

// ErrFeedDown means the vehicle/load feed is stale or absent. Batch runs
// pause rather than solve over garbage.
var ErrFeedDown = errors.New("snapshot feed unhealthy")

// Config tunes the batch optimizer. Values are hot-reloadable.
type Config struct {
	CadenceSeconds  int `json:"cadence_seconds"`
	ExactLimit      int `json:"exact_limit"`       // max candidates for the exact solver
	BudgetMS        int `json:"budget_ms"`         // exact solve wall-clock budget
	FeedMaxAgeSec   int `json:"feed_max_age_sec"`  // feed staleness tolerated before pausing
	HoldTTLSeconds  int `json:"hold_ttl_seconds"`
	SweepRetainMins int `json:"sweep_retain_mins"` // terminal match retention
}

// SetDefaults fills unset fields with working values.
func (c *Config) SetDefaults() {
	if c.CadenceSeconds <= 0 {
		c.CadenceSeconds = 60
	}
	if c.ExactLimit <= 0 {
		c.ExactLimit = 400
	}
	if c.BudgetMS <= 0 {
		c.BudgetMS = 2000
	}
	if c.FeedMaxAgeSec <= 0 {
		c.FeedMaxAgeSec = 300
	}
	if c.HoldTTLSeconds <= 0 {
		c.HoldTTLSeconds = 120
	}
	if c.SweepRetainMins <= 0 {
		c.SweepRetainMins = 60
	}
}

// Optimizer orchestrates generation, scoring, solving and reservation.
type Optimizer struct {
	cfg     func() Config
	scorer  func() score.Scorer
	gen     *candidate.Generator
	snap    *snapshot.Store
	hubset  *hubs.Store
	planner *relay.Planner
	res     *reserve.Manager

	runBus  *eventbus.Bus[model.OptimizationRun]
	planBus *eventbus.Bus[model.RelayPlan]
	sink    metrics.MetricsSink
	log     logger.Logger
}

// New creates an Optimizer. sink may be nil.
func New(
	cfg func() Config,
	scorer func() score.Scorer,
	gen *candidate.Generator,
	snap *snapshot.Store,
	hubset *hubs.Store,
	planner *relay.Planner,
	res *reserve.Manager,
	runBus *eventbus.Bus[model.OptimizationRun],
	planBus *eventbus.Bus[model.RelayPlan],
	sink metrics.MetricsSink,
	log logger.Logger,
) (*Optimizer, error) {
	if gen == nil || snap == nil || hubset == nil || planner == nil || res == nil {
		return nil, fmt.Errorf("optimize: nil dependency provided to New")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	o := &Optimizer{
		cfg: cfg, scorer: scorer, gen: gen, snap: snap, hubset: hubset,
		planner: planner, res: res, runBus: runBus, planBus: planBus,
		sink: sink, log: log,
	}
	// A reservation that lapses must return its load to the pool, or the
	// load stays Reserved forever and no later pass can see it.
	res.OnFree(o.reclaim)
	return o, nil
}

// reclaim undoes commit for a match whose hold expired or was released or
// cancelled: the load re-enters the open pool and its hub commitment is
// dropped. Runs synchronously from the reservation manager.
func (o *Optimizer) reclaim(match model.Match, at time.Time) {
	if o.snap.SetLoadStatus(match.LoadID, model.LoadOpen, at) {
		o.log.Debugf("load %s reopened after match %s %s", match.LoadID, match.ID, match.State)
	}
	if match.Kind == model.MatchRelay {
		o.planner.Complete(match.LoadID)
	}
}

// Run executes batch passes on the configured cadence until the context is
// cancelled. An overrunning pass finishes; its results merge with interim
// on-demand holds because every assignment goes through the reservation
// manager, where existing holds win.
func (o *Optimizer) Run(ctx context.Context) {
	for {
		cfg := o.cfg()
		cfg.SetDefaults()
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(cfg.CadenceSeconds) * time.Second):
		}
		if _, err := o.RunOnce(ctx, time.Now()); err != nil {
			if errors.Is(err, ErrFeedDown) {
				o.log.Warnf("batch run paused: %v", err)
				continue
			}
			o.log.Errorf("batch run failed: %v", err)
		}
	}
}

type loadCands struct {
	load  model.Load
	cands []model.Candidate
	err   error
}

// RunOnce executes one batch pass: Collecting -> Solving -> terminal status.
func (o *Optimizer) RunOnce(ctx context.Context, now time.Time) (model.OptimizationRun, error) {
	cfg := o.cfg()
	cfg.SetDefaults()

	if !o.snap.Healthy(time.Duration(cfg.FeedMaxAgeSec)*time.Second, now) {
		return model.OptimizationRun{}, ErrFeedDown
	}

	run := model.OptimizationRun{
		ID:         uuid.NewString(),
		SnapshotAt: now,
		StartedAt:  now,
	}

	// Plans whose final arrival has passed no longer hold hub capacity.
	o.planner.Prune(now)

	// Collecting: pure generation and scoring over the immutable view,
	// parallel per load.
	view := o.snap.View(now)
	open := view.OpenLoads()
	run.OpenLoads = len(open)
	activeHubs := o.hubset.List()
	scorer := o.scorer()

	results := make([]loadCands, len(open))
	var wg sync.WaitGroup
	for i, l := range open {
		wg.Add(1)
		go func(i int, l model.Load) {
			defer wg.Done()
			cands, err := o.gen.Generate(l, view.Vehicles, activeHubs, o.planner, now)
			for j := range cands {
				cands[j].Score = scorer.Score(cands[j], l)
			}
			results[i] = loadCands{load: l, cands: cands, err: err}
		}(i, l)
	}
	wg.Wait()

	var all []model.Candidate
	for _, r := range results {
		if r.err != nil {
			// Per-load failures are isolated and reported, never fatal.
			run.Failures = append(run.Failures, model.LoadFailure{LoadID: r.load.ID, Reason: r.err.Error()})
			continue
		}
		if rec, ok := o.sink.(metrics.CandidateRecorder); ok {
			relays := 0
			for _, c := range r.cands {
				if c.Kind == model.MatchRelay {
					relays++
				}
			}
			_ = rec.RecordCandidates(metrics.CandidateEvent{
				LoadID: r.load.ID, Generated: len(r.cands), Relays: relays, Time: now,
			})
		}
		o.snap.SetLoadStatus(r.load.ID, model.LoadCandidate, now)
		all = append(all, r.cands...)
	}
	run.Candidates = len(all)

	if len(all) == 0 {
		run.Status = model.SolverInfeasible
		run.CompletedAt = time.Now()
		o.finish(run, 0)
		return run, nil
	}

	// Solving: exact when the instance is small enough, greedy otherwise or
	// on timeout. Holds are only issued after the solve completes.
	solveStart := time.Now()
	var selected []model.Candidate
	if len(all) <= cfg.ExactLimit {
		budget := time.Duration(cfg.BudgetMS) * time.Millisecond
		solveCtx, cancel := context.WithTimeout(ctx, budget)
		var status model.SolverStatus
		var err error
		selected, status, err = solveExact(solveCtx, all)
		cancel()
		run.Status = status
		if err != nil {
			if errors.Is(err, ErrSolverTimeout) {
				o.log.Warnf("exact solve exceeded %v, degrading to greedy", budget)
				run.Status = model.SolverTimedOut
			} else {
				o.log.Warnf("exact solve failed (%v), degrading to greedy", err)
				run.Status = model.SolverFeasible
			}
			selected = greedyAssign(all, nil)
		}
	} else {
		selected = greedyAssign(all, nil)
		run.Status = model.SolverFeasible
	}
	solveTime := time.Since(solveStart)

	// Reservation: existing holds always win over this batch's picks.
	conflicts := 0
	ttl := time.Duration(cfg.HoldTTLSeconds) * time.Second
	for _, c := range orderForHold(selected) {
		match, err := o.commit(c, view, ttl, now)
		if err != nil {
			conflicts++
			run.Failures = append(run.Failures, model.LoadFailure{LoadID: c.LoadID, Reason: err.Error()})
			continue
		}
		run.Objective += c.Score
		run.Matches = append(run.Matches, match)
	}

	run.CompletedAt = time.Now()
	o.finish(run, conflicts)
	if rec, ok := o.sink.(metrics.RunRecorder); ok {
		_ = rec.RecordRun(metrics.RunEvent{
			RunID:      run.ID,
			Status:     run.Status,
			Objective:  run.Objective,
			OpenLoads:  run.OpenLoads,
			Candidates: run.Candidates,
			Assigned:   len(run.Matches),
			Conflicts:  conflicts,
			SolveTime:  solveTime,
			Time:       run.CompletedAt,
		})
	}
	return run, nil
}

// commit converts one selected candidate into a held match. Relay
// candidates are re-validated against the live snapshot first; stale ones
// are discarded so the load re-enters the next run.
func (o *Optimizer) commit(c model.Candidate, view snapshot.View, ttl time.Duration, now time.Time) (model.Match, error) {
	var plan model.RelayPlan
	if c.Kind == model.MatchRelay {
		l, ok := view.LoadByID(c.LoadID)
		if !ok {
			return model.Match{}, fmt.Errorf("commit %s: load %s disappeared: %w", c.ID, c.LoadID, relay.ErrStaleState)
		}
		var err error
		plan, err = o.planner.Plan(c, l, view.VehicleByID, now)
		if err != nil {
			return model.Match{}, err
		}
	}

	match, err := o.res.Hold(c, ttl)
	if err != nil {
		return model.Match{}, err
	}

	o.snap.SetLoadStatus(c.LoadID, model.LoadReserved, now)
	if c.Kind == model.MatchRelay {
		o.planner.Commit(plan)
		if o.planBus != nil {
			o.planBus.Publish(plan)
		}
	}
	_ = o.sink.RecordMatch(metrics.MatchEvent{
		MatchID:    match.ID,
		LoadID:     match.LoadID,
		VehicleIDs: match.VehicleIDs,
		Kind:       match.Kind,
		State:      match.State,
		Score:      match.Score,
		Time:       now,
	})
	return match, nil
}

func (o *Optimizer) finish(run model.OptimizationRun, conflicts int) {
	o.log.Infof("run %s %s: %d open loads, %d candidates, %d matched, %d conflicts, objective %.3f",
		run.ID, run.Status, run.OpenLoads, run.Candidates, len(run.Matches), conflicts, run.Objective)
	if o.runBus != nil {
		o.runBus.Publish(run)
	}
}

// orderForHold fixes the hold order so runs over identical solver output
// touch the lock table deterministically.
func orderForHold(cands []model.Candidate) []model.Candidate {
	out := make([]model.Candidate, len(cands))
	copy(out, cands)
	sort.Slice(out, func(i, j int) bool {
		if out[i].LoadID != out[j].LoadID {
			return out[i].LoadID < out[j].LoadID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MatchOnDemand runs the single-load fast path: generate, score, pick the
// best candidate and hold it immediately. It shares the reservation manager
// with the batch path, so concurrent batch results cannot double-commit.
func (o *Optimizer) MatchOnDemand(loadID string, now time.Time) (model.Match, error) {
	cfg := o.cfg()
	cfg.SetDefaults()

	l, ok := o.snap.Load(loadID)
	if !ok {
		return model.Match{}, fmt.Errorf("match on demand: unknown load %s", loadID)
	}
	view := o.snap.View(now)
	cands, err := o.gen.Generate(l, view.Vehicles, o.hubset.List(), o.planner, now)
	if err != nil {
		return model.Match{}, err
	}
	scorer := o.scorer()
	for i := range cands {
		cands[i].Score = scorer.Score(cands[i], l)
	}
	// Same deterministic preference order as the greedy fallback.
	picked := greedyAssign(cands, nil)
	ttl := time.Duration(cfg.HoldTTLSeconds) * time.Second
	for _, c := range picked {
		match, err := o.commit(c, view, ttl, now)
		if err == nil {
			return match, nil
		}
		o.log.Debugf("on-demand hold for %s failed: %v", c.ID, err)
	}
	return model.Match{}, fmt.Errorf("match on demand %s: %w", loadID, reserve.ErrConflict)
}
