package forecast

import (
	"math"
	"sync"
	"time"
)

// Config tunes the history-based forecaster.
type Config struct {
	BucketMinutes int     `json:"bucket_minutes"` // time bucket width
	CycleHours    int     `json:"cycle_hours"`    // one historical cycle, usually 24h or 168h
	WideFactor    float64 `json:"wide_factor"`    // band width multiplier on thin history
}

// SetDefaults fills unset fields with working values.
func (c *Config) SetDefaults() {
	if c.BucketMinutes <= 0 {
		c.BucketMinutes = 60
	}
	if c.CycleHours <= 0 {
		c.CycleHours = 24
	}
	if c.WideFactor <= 0 {
		c.WideFactor = 3
	}
}

type sample struct {
	loads  float64
	trucks float64
}

type seriesKey struct {
	cell   string
	bucket int // bucket index within the cycle
}

// HistoryForecaster estimates demand from rolling per-cell observations,
// bucketed by position within the cycle so that e.g. Monday 08:00 is
// predicted from previous Monday 08:00 observations.
type HistoryForecaster struct {
	cfg Config

	mu     sync.RWMutex
	series map[seriesKey][]sample
	spanMu sync.Mutex
	first  time.Time
	last   time.Time
}

// NewHistoryForecaster returns an empty forecaster.
func NewHistoryForecaster(cfg Config) *HistoryForecaster {
	cfg.SetDefaults()
	return &HistoryForecaster{cfg: cfg, series: make(map[seriesKey][]sample)}
}

// BucketWidth returns the configured observation bucket width. Callers that
// feed observations should sample on this cadence so each bucket sees one
// observation per cycle.
func (f *HistoryForecaster) BucketWidth() time.Duration {
	return time.Duration(f.cfg.BucketMinutes) * time.Minute
}

func (f *HistoryForecaster) bucketIndex(t time.Time) int {
	cycle := time.Duration(f.cfg.CycleHours) * time.Hour
	bucket := time.Duration(f.cfg.BucketMinutes) * time.Minute
	offset := t.UTC().Sub(t.UTC().Truncate(cycle))
	return int(offset / bucket)
}

// Observe records one observation of open loads and available trucks for a
// cell at the given time.
func (f *HistoryForecaster) Observe(cellID string, at time.Time, loads, trucks int) {
	key := seriesKey{cell: cellID, bucket: f.bucketIndex(at)}
	f.mu.Lock()
	f.series[key] = append(f.series[key], sample{loads: float64(loads), trucks: float64(trucks)})
	// Bound memory: keep the most recent observations per key.
	if n := len(f.series[key]); n > 64 {
		f.series[key] = f.series[key][n-64:]
	}
	f.mu.Unlock()

	f.spanMu.Lock()
	if f.first.IsZero() || at.Before(f.first) {
		f.first = at
	}
	if at.After(f.last) {
		f.last = at
	}
	f.spanMu.Unlock()
}

// historySpan returns the covered observation span.
func (f *HistoryForecaster) historySpan() time.Duration {
	f.spanMu.Lock()
	defer f.spanMu.Unlock()
	if f.first.IsZero() {
		return 0
	}
	return f.last.Sub(f.first)
}

// Forecast implements Forecaster. With less than one full cycle of history
// it returns a wide, low-confidence estimate instead of an error.
func (f *HistoryForecaster) Forecast(cellID string, bucket time.Time) Estimate {
	key := seriesKey{cell: cellID, bucket: f.bucketIndex(bucket)}
	f.mu.RLock()
	samples := f.series[key]
	f.mu.RUnlock()

	est := Estimate{CellID: cellID, Bucket: bucket}
	thin := f.historySpan() < time.Duration(f.cfg.CycleHours)*time.Hour || len(samples) == 0

	var loadMean, truckMean float64
	for _, s := range samples {
		loadMean += s.loads
		truckMean += s.trucks
	}
	if n := float64(len(samples)); n > 0 {
		loadMean /= n
		truckMean /= n
	}

	var loadVar, truckVar float64
	for _, s := range samples {
		loadVar += (s.loads - loadMean) * (s.loads - loadMean)
		truckVar += (s.trucks - truckMean) * (s.trucks - truckMean)
	}
	if n := float64(len(samples)); n > 1 {
		loadVar /= n - 1
		truckVar /= n - 1
	}

	loadBand := math.Sqrt(loadVar)
	truckBand := math.Sqrt(truckVar)
	if thin {
		loadBand = math.Max(loadBand, loadMean*f.cfg.WideFactor+1)
		truckBand = math.Max(truckBand, truckMean*f.cfg.WideFactor+1)
		est.Confidence = 0.1
	} else {
		est.Confidence = math.Min(1, float64(len(samples))/16)
	}

	est.Loads = Interval{Mean: loadMean, Low: math.Max(0, loadMean-loadBand), High: loadMean + loadBand}
	est.Trucks = Interval{Mean: truckMean, Low: math.Max(0, truckMean-truckBand), High: truckMean + truckBand}
	return est
}

// ObserveView folds a snapshot of open loads and available trucks into the
// history, attributing each entity to its current cell. cellDeg is the grid
// size used across the engine.
func ObserveView(f *HistoryForecaster, cellDeg float64, at time.Time, loadCells, truckCells map[string]int) {
	seen := make(map[string]struct{}, len(loadCells)+len(truckCells))
	for c := range loadCells {
		seen[c] = struct{}{}
	}
	for c := range truckCells {
		seen[c] = struct{}{}
	}
	for c := range seen {
		f.Observe(c, at, loadCells[c], truckCells[c])
	}
}
