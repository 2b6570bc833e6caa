// Package app assembles the matching engine from its parts: broker
// transport, snapshot ingestion, hub maintenance, forecasting, the batch
// optimizer, the reservation manager and the query API.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/haulnet/relay/api/matches"
	"github.com/haulnet/relay/config"
	"github.com/haulnet/relay/core/candidate"
	"github.com/haulnet/relay/core/forecast"
	"github.com/haulnet/relay/core/hubs"
	"github.com/haulnet/relay/core/logger"
	coremetrics "github.com/haulnet/relay/core/metrics"
	"github.com/haulnet/relay/core/model"
	"github.com/haulnet/relay/core/optimize"
	"github.com/haulnet/relay/core/relay"
	"github.com/haulnet/relay/core/reserve"
	"github.com/haulnet/relay/core/score"
	"github.com/haulnet/relay/core/snapshot"
	inframetrics "github.com/haulnet/relay/infra/metrics"
	"github.com/haulnet/relay/infra/mqtt"
	"github.com/haulnet/relay/internal/eventbus"
)

// Service owns every long-lived component of the engine.
type Service struct {
	store *config.Store
	log   logger.Logger

	client  *mqtt.PahoClient
	feed    *mqtt.Feed
	bridge  *mqtt.Bridge
	snap    *snapshot.Store
	hubSet  *hubs.Store
	hubSel  *hubs.Selector
	fcaster forecast.Forecaster
	gen     *candidate.Generator
	planner *relay.Planner
	res     *reserve.Manager
	opt     *optimize.Optimizer
	sink    coremetrics.MetricsSink

	matchBus *eventbus.Bus[reserve.Event]
	runBus   *eventbus.Bus[model.OptimizationRun]
	planBus  *eventbus.Bus[model.RelayPlan]

	crossMu    sync.Mutex
	crossovers map[string]hubs.Crossover
}

// New builds the Service from the configuration store.
func New(store *config.Store, log logger.Logger) (*Service, error) {
	cfg := store.Current()

	client, err := mqtt.NewPahoClient(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	sink, err := coremetrics.BuildSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}

	fcaster, err := forecast.Build(cfg.Forecast.Component())
	if err != nil {
		return nil, fmt.Errorf("forecaster: %w", err)
	}

	svc := &Service{
		store:      store,
		log:        log,
		client:     client,
		snap:       snapshot.NewStore(),
		hubSet:     hubs.NewStore(),
		fcaster:    fcaster,
		sink:       sink,
		matchBus:   eventbus.New[reserve.Event](),
		runBus:     eventbus.New[model.OptimizationRun](),
		planBus:    eventbus.New[model.RelayPlan](),
		crossovers: make(map[string]hubs.Crossover),
	}

	svc.feed = mqtt.NewFeed(client, svc.snap, sink)
	svc.bridge = mqtt.NewBridge(client)
	svc.hubSel = hubs.NewSelector(func() hubs.Config { return store.Current().Hubs.Selection }, log)
	svc.gen = candidate.NewGenerator(func() candidate.Config { return store.Current().Match })
	svc.planner = relay.NewPlanner(func() relay.Config { return store.Current().Relay }, log)

	holdTTL := time.Duration(cfg.Optimizer.HoldTTLSeconds) * time.Second
	svc.res = reserve.NewManager(holdTTL, log, reserve.WithEventSink(svc.matchBus))

	svc.opt, err = optimize.New(
		func() optimize.Config { return store.Current().Optimizer },
		svc.scorer,
		svc.gen,
		svc.snap,
		svc.hubSet,
		svc.planner,
		svc.res,
		svc.runBus,
		svc.planBus,
		sink,
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("optimizer: %w", err)
	}

	// Seed the hub set from the facility registry so relays are possible
	// before any crossover history accumulates.
	svc.refreshHubs(time.Now())
	return svc, nil
}

// scorer rebuilds the pure scorer from the live config on each call so
// weight changes apply on the next pass.
func (s *Service) scorer() score.Scorer {
	return score.New(s.store.Current().Score, s.fcaster)
}

// Run starts every component and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	cfg := s.store.Current()

	if err := s.feed.Start(cfg.MQTT); err != nil {
		return fmt.Errorf("feed subscriptions: %w", err)
	}
	s.bridge.Run(ctx, s.matchBus, s.runBus, s.planBus)

	retain := time.Duration(cfg.Optimizer.SweepRetainMins) * time.Minute
	go s.res.Run(ctx, time.Second, retain)
	go s.opt.Run(ctx)
	go s.collectCrossovers(ctx)
	go s.hubLoop(ctx)
	go s.observeLoop(ctx)

	if cfg.Metrics.PromAddr != "" {
		go func() {
			if err := inframetrics.StartPromServer(ctx, cfg.Metrics.PromAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	apiSrv := &http.Server{Addr: cfg.API.Addr, Handler: matches.NewMux(matches.Deps{
		Snapshot:  s.snap,
		Hubs:      s.hubSet,
		Generator: s.gen,
		Usage:     s.planner,
		Scorer:    s.scorer,
		Reserve:   s.res,
		Optimizer: s.opt,
		Forecast:  s.fcaster,
	})}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	s.bridge.Wait()
	return nil
}

// collectCrossovers folds committed relay plans into the crossover history
// that drives hub selection.
func (s *Service) collectCrossovers(ctx context.Context) {
	sub := s.planBus.Subscribe()
	defer s.planBus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case plan, ok := <-sub:
			if !ok {
				return
			}
			s.crossMu.Lock()
			for _, leg := range plan.Legs {
				if leg.HubID == "" {
					continue
				}
				if hub, found := s.hubSet.Get(leg.HubID); found {
					key := hub.Location.CellID(0.1)
					c := s.crossovers[key]
					c.Location = hub.Location
					c.Count++
					s.crossovers[key] = c
				}
			}
			s.crossMu.Unlock()
		}
	}
}

// hubLoop refreshes the hub set on its configured cadence.
func (s *Service) hubLoop(ctx context.Context) {
	for {
		mins := s.store.Current().Hubs.RefreshMinutes
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(mins) * time.Minute):
			s.refreshHubs(time.Now())
		}
	}
}

func (s *Service) refreshHubs(now time.Time) {
	cfg := s.store.Current()

	s.crossMu.Lock()
	points := make([]hubs.Crossover, 0, len(s.crossovers))
	for _, c := range s.crossovers {
		points = append(points, c)
	}
	s.crossMu.Unlock()

	// With no history yet, treat each facility as its own crossover so the
	// initial hub set comes straight from the vetted registry.
	if len(points) == 0 {
		for _, f := range cfg.Hubs.Facilities {
			points = append(points, hubs.Crossover{Location: f.Location, Count: cfg.Hubs.Selection.MinCrossovers + 1})
		}
	}

	res := s.hubSel.Select(points, cfg.Hubs.Facilities, s.hubSet.List(), s.planner.References, now)
	s.hubSet.Replace(res.Active)

	if rec, ok := s.sink.(coremetrics.HubRecorder); ok {
		for _, h := range res.Created {
			_ = rec.RecordHub(coremetrics.HubEvent{HubID: h.ID, Action: "created", Suitability: h.Suitability, Time: now})
		}
		for _, h := range res.Retired {
			_ = rec.RecordHub(coremetrics.HubEvent{HubID: h.ID, Action: "retired", Suitability: h.Suitability, Time: now})
		}
	}
}

// observeLoop feeds per-cell load and truck counts into the history
// forecaster once per bucket. Other forecaster types need no observations.
func (s *Service) observeLoop(ctx context.Context) {
	hf, ok := s.fcaster.(*forecast.HistoryForecaster)
	if !ok {
		return
	}
	for {
		cfg := s.store.Current()
		select {
		case <-ctx.Done():
			return
		case <-time.After(hf.BucketWidth()):
		}
		now := time.Now()
		view := s.snap.View(now)
		cellDeg := cfg.Score.CellDeg
		loadCells := make(map[string]int)
		truckCells := make(map[string]int)
		for _, l := range view.OpenLoads() {
			loadCells[l.Origin.CellID(cellDeg)]++
		}
		for _, v := range view.Vehicles {
			truckCells[v.Position.CellID(cellDeg)]++
		}
		forecast.ObserveView(hf, cellDeg, now, loadCells, truckCells)
	}
}

// Close releases broker resources. In-process components stop with the Run
// context.
func (s *Service) Close() error {
	s.client.Disconnect()
	s.matchBus.Close()
	s.runBus.Close()
	s.planBus.Close()
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}
