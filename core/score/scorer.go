// Package score computes the network-efficiency score of a candidate.
// Scoring is pure: identical candidates and identical forecaster state yield
// identical scores, which the optimizer relies on for stability across runs.
package score

import (
	"math"

	"github.com/haulnet/relay/core/forecast"
	"github.com/haulnet/relay/core/model"
)

// Weights is the relative importance of each score component. The split
// between deadhead reduction and network balance is business policy and is
// therefore configuration, never a constant.
type Weights struct {
	Deadhead  float64 `json:"deadhead"`
	Tightness float64 `json:"tightness"`
	Earnings  float64 `json:"earnings"`
	Balance   float64 `json:"balance"`
}

// SetDefaults fills unset weights with a working policy.
func (w *Weights) SetDefaults() {
	if w.Deadhead == 0 && w.Tightness == 0 && w.Earnings == 0 && w.Balance == 0 {
		w.Deadhead = 0.4
		w.Tightness = 0.2
		w.Earnings = 0.25
		w.Balance = 0.15
	}
}

// Config carries the scoring policy.
type Config struct {
	Weights      Weights `json:"weights"`
	RatePerKm    float64 `json:"rate_per_km"`    // gross driver earnings per loaded km
	SlackScaleH  float64 `json:"slack_scale_h"`  // decay scale for schedule tightness, in hours
	CellDeg      float64 `json:"cell_deg"`       // forecast grid size
	EarningsNorm float64 `json:"earnings_norm"`  // loaded km treated as a "full" haul
}

// SetDefaults fills unset fields with working values.
func (c *Config) SetDefaults() {
	c.Weights.SetDefaults()
	if c.RatePerKm <= 0 {
		c.RatePerKm = 1.1
	}
	if c.SlackScaleH <= 0 {
		c.SlackScaleH = 3
	}
	if c.CellDeg <= 0 {
		c.CellDeg = 1
	}
	if c.EarningsNorm <= 0 {
		c.EarningsNorm = 800
	}
}

// Scorer evaluates candidates against the current policy.
type Scorer struct {
	cfg        Config
	forecaster forecast.Forecaster
}

// New returns a Scorer. The forecaster may be nil, disabling the balance
// component.
func New(cfg Config, f forecast.Forecaster) Scorer {
	cfg.SetDefaults()
	return Scorer{cfg: cfg, forecaster: f}
}

// Score returns the scalar efficiency score of the candidate. Missing or
// partial information degrades individual components to zero instead of
// destabilizing the total.
func (s Scorer) Score(c model.Candidate, l model.Load) float64 {
	w := s.cfg.Weights

	total := w.Deadhead*s.deadheadComponent(c) +
		w.Tightness*s.tightnessComponent(c) +
		w.Earnings*s.earningsComponent(c)
	if s.forecaster != nil {
		total += w.Balance * s.balanceComponent(c, l)
	}
	if total < 0 {
		return 0
	}
	return total
}

// deadheadComponent rewards empty miles avoided relative to the
// counterfactual of the vehicle returning empty.
func (s Scorer) deadheadComponent(c model.Candidate) float64 {
	var empty, loaded float64
	for _, leg := range c.Legs {
		empty += leg.EmptyKm
		loaded += leg.LoadedKm
	}
	if loaded <= 0 {
		return 0
	}
	saved := c.DeadheadSavedKm
	if saved < 0 {
		saved = 0
	}
	// Fraction of the total movement that is productive, lifted by the
	// explicit deadhead savings against the empty-return baseline.
	return 0.5*loaded/(loaded+empty) + 0.5*saved/(saved+loaded)
}

// tightnessComponent penalizes candidates whose remaining window buffer is
// thin. A generous buffer approaches 1, a zero buffer approaches 0.
func (s Scorer) tightnessComponent(c model.Candidate) float64 {
	if c.SlackHours <= 0 {
		return 0
	}
	return 1 - math.Exp(-c.SlackHours/s.cfg.SlackScaleH)
}

// earningsComponent approximates the driver earnings impact of the haul.
func (s Scorer) earningsComponent(c model.Candidate) float64 {
	var loaded float64
	for _, leg := range c.Legs {
		loaded += leg.LoadedKm
	}
	earnings := loaded * s.cfg.RatePerKm
	norm := s.cfg.EarningsNorm * s.cfg.RatePerKm
	if norm <= 0 {
		return 0
	}
	v := earnings / norm
	if v > 1 {
		v = 1
	}
	return v
}

// balanceComponent grants a bonus when completing the candidate moves a
// truck into a cell the forecaster expects to be short on trucks, weighted
// by forecast confidence.
func (s Scorer) balanceComponent(c model.Candidate, l model.Load) float64 {
	if len(c.Legs) == 0 {
		return 0
	}
	last := c.Legs[len(c.Legs)-1]
	cell := l.Destination.CellID(s.cfg.CellDeg)
	est := s.forecaster.Forecast(cell, last.ArriveAt)

	deficit := est.Deficit()
	if deficit <= 0 {
		return 0
	}
	// Saturate: a deficit of a handful of trucks is already a full bonus.
	bonus := deficit / (deficit + 3)
	return bonus * est.Confidence
}
