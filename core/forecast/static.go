package forecast

import "time"

// StaticForecaster returns fixed estimates per cell. Used in tests and as a
// neutral default when no history source is configured.
type StaticForecaster struct {
	Estimates map[string]Estimate
}

// Forecast returns the configured estimate for the cell, or a zero-demand
// low-confidence estimate for unknown cells.
func (s StaticForecaster) Forecast(cellID string, bucket time.Time) Estimate {
	if s.Estimates != nil {
		if e, ok := s.Estimates[cellID]; ok {
			e.CellID = cellID
			e.Bucket = bucket
			return e
		}
	}
	return Estimate{CellID: cellID, Bucket: bucket, Confidence: 0.1}
}
