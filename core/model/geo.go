package model

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// GeoPoint is an immutable geographic position.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceKm returns the great-circle distance to q in kilometers.
func (p GeoPoint) DistanceKm(q GeoPoint) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := q.Lat * math.Pi / 180
	dLat := (q.Lat - p.Lat) * math.Pi / 180
	dLon := (q.Lon - p.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// CellID maps the point onto a square grid of the given edge length in
// degrees and returns a stable cell identifier. Forecasts and network
// balance bonuses are keyed by these cells.
func (p GeoPoint) CellID(cellDeg float64) string {
	if cellDeg <= 0 {
		cellDeg = 1
	}
	row := int(math.Floor(p.Lat / cellDeg))
	col := int(math.Floor(p.Lon / cellDeg))
	return fmt.Sprintf("c%d:%d", row, col)
}

// DetourKm returns the extra distance incurred by routing from a to b
// through via, relative to the direct a-b leg.
func DetourKm(a, via, b GeoPoint) float64 {
	return a.DistanceKm(via) + via.DistanceKm(b) - a.DistanceKm(b)
}
