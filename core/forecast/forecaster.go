// Package forecast provides the demand forecasting contract consumed by the
// hub selector and the network optimizer. Implementations must be free of
// side effects: the same cell and bucket always produce the same estimate
// for a given history.
package forecast

import "time"

// Interval is a point estimate with a confidence band.
type Interval struct {
	Mean float64 `json:"mean"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Estimate is the expected supply and demand for one geographic cell and
// time bucket. Confidence is in [0,1]; estimates derived from less than one
// historical cycle carry a wide band and low confidence rather than failing.
type Estimate struct {
	CellID     string    `json:"cell_id"`
	Bucket     time.Time `json:"bucket"`
	Loads      Interval  `json:"loads"`
	Trucks     Interval  `json:"trucks"`
	Confidence float64   `json:"confidence"`
}

// Deficit returns the expected truck shortfall in the cell: positive values
// mean more loads than trucks are expected.
func (e Estimate) Deficit() float64 { return e.Loads.Mean - e.Trucks.Mean }

// Forecaster predicts load volume and truck availability per cell and bucket.
type Forecaster interface {
	Forecast(cellID string, bucket time.Time) Estimate
}
