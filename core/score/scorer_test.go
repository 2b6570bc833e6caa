package score

import (
	"testing"
	"time"

	"github.com/haulnet/relay/core/forecast"
	"github.com/haulnet/relay/core/model"
)

func baseCandidate() model.Candidate {
	return model.Candidate{
		ID:     "l1:v1",
		LoadID: "l1",
		Kind:   model.MatchDirect,
		Legs: []model.Leg{{
			VehicleID: "v1",
			EmptyKm:   20,
			LoadedKm:  260,
			ArriveAt:  time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC),
		}},
		DeadheadSavedKm: 200,
		SlackHours:      4,
	}
}

func baseLoad() model.Load {
	return model.Load{
		ID:          "l1",
		Destination: model.GeoPoint{Lat: 39.77, Lon: -86.16},
	}
}

func TestScoreDeterministic(t *testing.T) {
	s := New(Config{}, nil)
	c, l := baseCandidate(), baseLoad()
	first := s.Score(c, l)
	if first <= 0 || first > 1 {
		t.Fatalf("score = %f, want in (0,1]", first)
	}
	for i := 0; i < 10; i++ {
		if got := s.Score(c, l); got != first {
			t.Fatalf("score changed across calls: %f vs %f", got, first)
		}
	}
}

func TestScoreRewardsLessDeadhead(t *testing.T) {
	s := New(Config{}, nil)
	l := baseLoad()

	lean := baseCandidate()
	heavy := baseCandidate()
	heavy.Legs[0].EmptyKm = 180

	if s.Score(lean, l) <= s.Score(heavy, l) {
		t.Errorf("more empty km did not lower the score")
	}
}

func TestScoreRewardsSlack(t *testing.T) {
	s := New(Config{}, nil)
	l := baseLoad()

	roomy := baseCandidate()
	tight := baseCandidate()
	tight.SlackHours = 0.2

	if s.Score(roomy, l) <= s.Score(tight, l) {
		t.Errorf("thinner window buffer did not lower the score")
	}
}

func TestScoreRewardsEarnings(t *testing.T) {
	s := New(Config{}, nil)
	l := baseLoad()

	long := baseCandidate()
	long.Legs[0].LoadedKm = 700
	short := baseCandidate()
	short.Legs[0].LoadedKm = 100
	// Hold the productive fraction constant so only earnings differ.
	long.Legs[0].EmptyKm = 70
	short.Legs[0].EmptyKm = 10

	if s.Score(long, l) <= s.Score(short, l) {
		t.Errorf("longer loaded haul did not raise the score")
	}
}

type fixedForecaster struct {
	est forecast.Estimate
}

func (f fixedForecaster) Forecast(string, time.Time) forecast.Estimate { return f.est }

func TestScoreBalanceBonusOnDeficitCell(t *testing.T) {
	l := baseLoad()
	c := baseCandidate()

	deficit := fixedForecaster{est: forecast.Estimate{
		Loads:      forecast.Interval{Mean: 10},
		Trucks:     forecast.Interval{Mean: 2},
		Confidence: 1,
	}}
	surplus := fixedForecaster{est: forecast.Estimate{
		Loads:      forecast.Interval{Mean: 2},
		Trucks:     forecast.Interval{Mean: 10},
		Confidence: 1,
	}}

	withDeficit := New(Config{}, deficit).Score(c, l)
	withSurplus := New(Config{}, surplus).Score(c, l)
	without := New(Config{}, nil).Score(c, l)

	if withDeficit <= without {
		t.Errorf("deficit cell granted no bonus: %f vs %f", withDeficit, without)
	}
	if withSurplus != without {
		t.Errorf("surplus cell changed the score: %f vs %f", withSurplus, without)
	}
}

func TestScoreBalanceScaledByConfidence(t *testing.T) {
	l := baseLoad()
	c := baseCandidate()
	est := forecast.Estimate{
		Loads:  forecast.Interval{Mean: 10},
		Trucks: forecast.Interval{Mean: 2},
	}

	est.Confidence = 1
	sure := New(Config{}, fixedForecaster{est: est}).Score(c, l)
	est.Confidence = 0.1
	unsure := New(Config{}, fixedForecaster{est: est}).Score(c, l)

	if sure <= unsure {
		t.Errorf("low confidence did not shrink the bonus: %f vs %f", sure, unsure)
	}
}

func TestScoreDegradesMissingData(t *testing.T) {
	s := New(Config{}, nil)
	l := baseLoad()

	c := model.Candidate{ID: "l1:v1", LoadID: "l1"}
	if got := s.Score(c, l); got != 0 {
		t.Errorf("empty candidate score = %f, want 0", got)
	}
}
