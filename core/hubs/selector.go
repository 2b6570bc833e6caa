// Package hubs maintains the set of Smart Hubs: exchange points where relay
// legs hand freight between drivers. Hubs are derived from historical route
// crossover density and externally supplied facility suitability, on a slow
// cadence. Everything downstream treats the resulting set as read-only.
package hubs

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/haulnet/relay/core/logger"
	"github.com/haulnet/relay/core/model"
)

// Crossover is an observed route-crossing point with its frequency.
type Crossover struct {
	Location model.GeoPoint `json:"location"`
	Count    int            `json:"count"`
}

// Facility describes an externally vetted candidate site near a cluster.
type Facility struct {
	ID          string         `json:"facility_id"`
	Location    model.GeoPoint `json:"location"`
	Capacity    int            `json:"capacity"`
	Safe        bool           `json:"safe"`
	Amenities   bool           `json:"amenities"`
	Suitability float64        `json:"suitability"`
	Window      model.TimeWindow `json:"window"`
}

// Config tunes hub selection.
type Config struct {
	ClusterRadiusKm float64 `json:"cluster_radius_km"`
	MinCrossovers   int     `json:"min_crossovers"`
	MinSuitability  float64 `json:"min_suitability"`
	MaxHubs         int     `json:"max_hubs"`
}

// SetDefaults fills unset fields with working values.
func (c *Config) SetDefaults() {
	if c.ClusterRadiusKm <= 0 {
		c.ClusterRadiusKm = 25
	}
	if c.MinCrossovers <= 0 {
		c.MinCrossovers = 5
	}
	if c.MinSuitability <= 0 {
		c.MinSuitability = 0.3
	}
	if c.MaxHubs <= 0 {
		c.MaxHubs = 50
	}
}

// Result is the diff produced by one selection pass.
type Result struct {
	Active  []model.SmartHub
	Created []model.SmartHub
	Retired []model.SmartHub
}

// Selector computes the active hub set. ActivePlans reports whether any
// relay plan currently references a hub; retirement of such hubs is deferred
// to a later pass.
type Selector struct {
	cfg func() Config
	log logger.Logger
}

// NewSelector returns a Selector reading its tuning from cfg on every pass.
func NewSelector(cfg func() Config, log logger.Logger) *Selector {
	return &Selector{cfg: cfg, log: log}
}

type cluster struct {
	center model.GeoPoint
	count  int
}

// clusterCrossovers groups points with simple distance-threshold clustering.
// Points are visited in a fixed order (count desc, then lat, then lon) so
// identical inputs always produce identical clusters.
func clusterCrossovers(points []Crossover, radiusKm float64) []cluster {
	sorted := make([]Crossover, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		if sorted[i].Location.Lat != sorted[j].Location.Lat {
			return sorted[i].Location.Lat < sorted[j].Location.Lat
		}
		return sorted[i].Location.Lon < sorted[j].Location.Lon
	})

	var clusters []cluster
	for _, p := range sorted {
		best := -1
		bestDist := radiusKm
		for i, c := range clusters {
			if d := p.Location.DistanceKm(c.center); d <= bestDist {
				best = i
				bestDist = d
			}
		}
		if best < 0 {
			clusters = append(clusters, cluster{center: p.Location, count: p.Count})
			continue
		}
		c := &clusters[best]
		// Weighted centroid update keeps the cluster anchored to density.
		total := float64(c.count + p.Count)
		c.center.Lat = (c.center.Lat*float64(c.count) + p.Location.Lat*float64(p.Count)) / total
		c.center.Lon = (c.center.Lon*float64(c.count) + p.Location.Lon*float64(p.Count)) / total
		c.count += p.Count
	}
	return clusters
}

// hubID derives a stable identifier from the rounded cluster center so that
// re-runs over the same geography keep hub identity.
func hubID(p model.GeoPoint) string {
	return fmt.Sprintf("hub-%.2f-%.2f", math.Round(p.Lat*100)/100, math.Round(p.Lon*100)/100)
}

type ranked struct {
	hub       model.SmartHub
	composite float64
}

// Select runs one selection pass over crossover history and facilities and
// diffs the outcome against the existing hub set.
func (s *Selector) Select(points []Crossover, facilities []Facility, existing []model.SmartHub, activePlans func(hubID string) bool, now time.Time) Result {
	cfg := s.cfg()
	cfg.SetDefaults()

	clusters := clusterCrossovers(points, cfg.ClusterRadiusKm)

	maxCount := 0
	for _, c := range clusters {
		if c.count > maxCount {
			maxCount = c.count
		}
	}

	var candidates []ranked
	for _, c := range clusters {
		if c.count < cfg.MinCrossovers {
			continue
		}
		fac, ok := nearestFacility(c.center, facilities, cfg.ClusterRadiusKm)
		if !ok || !fac.Safe || !fac.Amenities || fac.Capacity <= 0 {
			continue
		}
		if fac.Suitability < cfg.MinSuitability {
			continue
		}
		normFreq := float64(c.count) / float64(maxCount)
		composite := normFreq * fac.Suitability
		candidates = append(candidates, ranked{
			hub: model.SmartHub{
				ID:          hubID(fac.Location),
				Location:    fac.Location,
				Capacity:    fac.Capacity,
				Suitability: fac.Suitability,
				Window:      fac.Window,
			},
			composite: composite,
		})
	}

	// Rank by composite score; ties by suitability then lower id.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].composite != candidates[j].composite {
			return candidates[i].composite > candidates[j].composite
		}
		if candidates[i].hub.Suitability != candidates[j].hub.Suitability {
			return candidates[i].hub.Suitability > candidates[j].hub.Suitability
		}
		return candidates[i].hub.ID < candidates[j].hub.ID
	})
	if len(candidates) > cfg.MaxHubs {
		candidates = candidates[:cfg.MaxHubs]
	}

	selected := make(map[string]model.SmartHub, len(candidates))
	for _, c := range candidates {
		// Duplicate facility ids collapse to the first (highest ranked).
		if _, ok := selected[c.hub.ID]; !ok {
			selected[c.hub.ID] = c.hub
		}
	}

	var res Result
	known := make(map[string]model.SmartHub, len(existing))
	for _, h := range existing {
		known[h.ID] = h
	}

	for id, h := range selected {
		if _, ok := known[id]; !ok {
			res.Created = append(res.Created, h)
		}
		res.Active = append(res.Active, h)
	}
	for id, h := range known {
		if _, ok := selected[id]; ok {
			continue
		}
		if activePlans != nil && activePlans(id) {
			// A relay plan still routes through this hub; keep it alive and
			// retry retirement on the next pass.
			s.log.Warnf("hub %s retirement deferred: active relay plans reference it", id)
			res.Active = append(res.Active, h)
			continue
		}
		res.Retired = append(res.Retired, h)
	}

	sort.Slice(res.Active, func(i, j int) bool { return res.Active[i].ID < res.Active[j].ID })
	sort.Slice(res.Created, func(i, j int) bool { return res.Created[i].ID < res.Created[j].ID })
	sort.Slice(res.Retired, func(i, j int) bool { return res.Retired[i].ID < res.Retired[j].ID })

	s.log.Infof("hub selection: %d active, %d created, %d retired", len(res.Active), len(res.Created), len(res.Retired))
	return res
}

func nearestFacility(p model.GeoPoint, facilities []Facility, maxKm float64) (Facility, bool) {
	var best Facility
	bestDist := maxKm
	found := false
	for _, f := range facilities {
		if d := p.DistanceKm(f.Location); d <= bestDist {
			best = f
			bestDist = d
			found = true
		}
	}
	return best, found
}
