package forecast

import (
	"testing"
	"time"
)

func TestForecastThinHistoryWideBand(t *testing.T) {
	f := NewHistoryForecaster(Config{})
	at := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	f.Observe("c408:-869", at, 10, 4)

	est := f.Forecast("c408:-869", at)
	if est.Confidence != 0.1 {
		t.Fatalf("confidence = %f, want 0.1 on thin history", est.Confidence)
	}
	if est.Loads.Mean != 10 || est.Trucks.Mean != 4 {
		t.Fatalf("means = %+v, want the single observation", est)
	}
	if est.Loads.High-est.Loads.Low < est.Loads.Mean {
		t.Errorf("band too tight for thin history: %+v", est.Loads)
	}
}

func TestForecastUnknownCell(t *testing.T) {
	f := NewHistoryForecaster(Config{})
	est := f.Forecast("nowhere", time.Now())
	if est.Confidence != 0.1 || est.Loads.Mean != 0 {
		t.Fatalf("unknown cell estimate = %+v, want wide zero estimate", est)
	}
	if est.Deficit() != 0 {
		t.Errorf("deficit = %f, want 0", est.Deficit())
	}
}

func TestForecastTightensWithFullCycles(t *testing.T) {
	f := NewHistoryForecaster(Config{})
	start := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	// Two weeks of stable daily observations in the same bucket.
	for day := 0; day < 14; day++ {
		f.Observe("cell", start.AddDate(0, 0, day), 10, 4)
	}

	est := f.Forecast("cell", start.AddDate(0, 0, 14))
	if est.Confidence <= 0.1 {
		t.Fatalf("confidence = %f, want above thin-history floor", est.Confidence)
	}
	if est.Loads.Mean != 10 || est.Trucks.Mean != 4 {
		t.Fatalf("means = %+v, want stable history reproduced", est)
	}
	if est.Loads.High-est.Loads.Low > 1 {
		t.Errorf("band = %+v, want tight on zero-variance history", est.Loads)
	}
	if got := est.Deficit(); got != 6 {
		t.Errorf("deficit = %f, want 6", got)
	}
}

func TestForecastBucketsByCyclePosition(t *testing.T) {
	f := NewHistoryForecaster(Config{})
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	// Mornings are busy, evenings are quiet, over several days.
	for day := 0; day < 7; day++ {
		f.Observe("cell", start.AddDate(0, 0, day).Add(8*time.Hour), 20, 5)
		f.Observe("cell", start.AddDate(0, 0, day).Add(20*time.Hour), 2, 5)
	}

	morning := f.Forecast("cell", start.AddDate(0, 0, 7).Add(8*time.Hour))
	evening := f.Forecast("cell", start.AddDate(0, 0, 7).Add(20*time.Hour))
	if morning.Loads.Mean <= evening.Loads.Mean {
		t.Fatalf("bucket separation lost: morning %f <= evening %f",
			morning.Loads.Mean, evening.Loads.Mean)
	}
}

func TestObserveViewCoversUnionOfCells(t *testing.T) {
	f := NewHistoryForecaster(Config{})
	at := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	ObserveView(f, 1, at, map[string]int{"a": 3}, map[string]int{"b": 2})

	if est := f.Forecast("a", at); est.Loads.Mean != 3 || est.Trucks.Mean != 0 {
		t.Errorf("cell a = %+v, want loads 3 trucks 0", est)
	}
	if est := f.Forecast("b", at); est.Loads.Mean != 0 || est.Trucks.Mean != 2 {
		t.Errorf("cell b = %+v, want loads 0 trucks 2", est)
	}
}

func TestBucketWidthFollowsConfig(t *testing.T) {
	// Observation cadence is derived from here, so a non-default bucket
	// width must be reported as configured, not as the default.
	if got := NewHistoryForecaster(Config{BucketMinutes: 30}).BucketWidth(); got != 30*time.Minute {
		t.Fatalf("BucketWidth = %v, want 30m", got)
	}
	if got := NewHistoryForecaster(Config{}).BucketWidth(); got != time.Hour {
		t.Fatalf("default BucketWidth = %v, want 1h", got)
	}
}
