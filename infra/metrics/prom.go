package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/haulnet/relay/core/metrics"
	"github.com/haulnet/relay/core/model"
)

// PromSink exposes matching activity as Prometheus metrics.
type PromSink struct {
	matches    *prometheus.CounterVec
	runs       *prometheus.CounterVec
	objective  prometheus.Gauge
	solveTime  prometheus.Histogram
	candidates prometheus.Histogram
	hubs       *prometheus.CounterVec
	fleet      prometheus.Gauge
}

// NewPromSink registers matching metrics on the default Prometheus
// registerer. The scrape endpoint is served separately, see StartPromServer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global one.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_match_events_total",
			Help: "Match lifecycle transitions by kind and state",
		}, []string{"kind", "state", "relay"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_optimization_runs_total",
			Help: "Completed optimization runs by terminal solver status",
		}, []string{"status"}),
		objective: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_run_objective",
			Help: "Objective value of the most recent optimization run",
		}),
		solveTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_solve_seconds",
			Help:    "Wall-clock time spent in the assignment solver",
			Buckets: prometheus.DefBuckets,
		}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_candidates_per_load",
			Help:    "Feasible candidates generated per open load",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		hubs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_hub_changes_total",
			Help: "Smart hub set changes by action",
		}, []string{"action"}),
		fleet: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_tracked_vehicles",
			Help: "Vehicles currently tracked in the snapshot store",
		}),
	}

	for _, c := range []prometheus.Collector{
		s.matches, s.runs, s.objective, s.solveTime, s.candidates, s.hubs, s.fleet,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *PromSink) RecordMatch(ev coremetrics.MatchEvent) error {
	s.matches.WithLabelValues(
		ev.Kind.String(),
		ev.State.String(),
		strconv.FormatBool(ev.Kind == model.MatchRelay),
	).Inc()
	return nil
}

func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.runs.WithLabelValues(ev.Status.String()).Inc()
	s.objective.Set(ev.Objective)
	s.solveTime.Observe(ev.SolveTime.Seconds())
	return nil
}

func (s *PromSink) RecordCandidates(ev coremetrics.CandidateEvent) error {
	s.candidates.Observe(float64(ev.Generated))
	return nil
}

func (s *PromSink) RecordHub(ev coremetrics.HubEvent) error {
	s.hubs.WithLabelValues(ev.Action).Inc()
	return nil
}

func (s *PromSink) RecordFleetSize(size int) error {
	s.fleet.Set(float64(size))
	return nil
}
