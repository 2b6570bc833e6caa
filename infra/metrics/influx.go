package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/haulnet/relay/core/logger"
	coremetrics "github.com/haulnet/relay/core/metrics"
	infralog "github.com/haulnet/relay/infra/logger"
)

// InfluxSink writes matching events to an InfluxDB instance for offline
// analytics (fill rate, deadhead trends, hub throughput).
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      infralog.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and degrades to a
// NopSink when the health check fails, so a missing analytics store never
// blocks matching.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close flushes and shuts down the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

// RecordMatch writes one point per match lifecycle transition.
func (s *InfluxSink) RecordMatch(ev coremetrics.MatchEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("match_event").
		AddTag("match_id", ev.MatchID).
		AddTag("load_id", ev.LoadID).
		AddTag("kind", ev.Kind.String()).
		AddTag("state", ev.State.String()).
		AddTag("component", "reservations").
		AddField("score", round3(ev.Score)).
		AddField("vehicles", len(ev.VehicleIDs)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRun persists the summary of an optimization run.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("optimization_run").
		AddTag("run_id", ev.RunID).
		AddTag("status", ev.Status.String()).
		AddTag("component", "optimizer").
		AddField("objective", round3(ev.Objective)).
		AddField("open_loads", ev.OpenLoads).
		AddField("candidates", ev.Candidates).
		AddField("assigned", ev.Assigned).
		AddField("conflicts", ev.Conflicts).
		AddField("solve_ms", round3(float64(ev.SolveTime.Milliseconds()))).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCandidates writes per-load generation stats.
func (s *InfluxSink) RecordCandidates(ev coremetrics.CandidateEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("candidate_generation").
		AddTag("load_id", ev.LoadID).
		AddTag("component", "candidates").
		AddTag("has_relay", strconv.FormatBool(ev.Relays > 0)).
		AddField("generated", ev.Generated).
		AddField("relays", ev.Relays).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordHub writes a hub set change.
func (s *InfluxSink) RecordHub(ev coremetrics.HubEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("hub_change").
		AddTag("hub_id", ev.HubID).
		AddTag("action", ev.Action).
		AddTag("component", "hubs").
		AddField("suitability", round3(ev.Suitability)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
