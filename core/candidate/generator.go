// Package candidate produces bounded sets of feasible assignment proposals
// for pending loads. Generation is a pure function over an immutable fleet
// snapshot and the active hub set, so callers may parallelize it freely.
package candidate

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/haulnet/relay/core/model"
)

// ErrInfeasible is returned when no vehicle can feasibly cover the load.
// Callers report it and leave the load open for the next cycle.
var ErrInfeasible = errors.New("no feasible candidate for load")

// HubUsage reports how many exchanges are already committed at a hub within
// a time window. The relay planner maintains the ledger.
type HubUsage interface {
	Active(hubID string, w model.TimeWindow) int
}

// Config tunes candidate generation. All values are hot-reloadable.
type Config struct {
	TopK           int     `json:"top_k"`
	AvgSpeedKmh    float64 `json:"avg_speed_kmh"`
	MaxDetourKm    float64 `json:"max_detour_km"`
	HandoffMinutes int     `json:"handoff_minutes"`
	TTLSeconds     int     `json:"ttl_seconds"`
	RelayFanout    int     `json:"relay_fanout"` // vehicles considered per relay leg
}

// SetDefaults fills unset fields with working values.
func (c *Config) SetDefaults() {
	if c.TopK <= 0 {
		c.TopK = 20
	}
	if c.AvgSpeedKmh <= 0 {
		c.AvgSpeedKmh = 72
	}
	if c.MaxDetourKm <= 0 {
		c.MaxDetourKm = 80
	}
	if c.HandoffMinutes <= 0 {
		c.HandoffMinutes = 30
	}
	if c.TTLSeconds <= 0 {
		c.TTLSeconds = 300
	}
	if c.RelayFanout <= 0 {
		c.RelayFanout = 8
	}
}

// Generator builds direct and relay candidates for loads.
type Generator struct {
	cfg func() Config
}

// NewGenerator returns a Generator reading its tuning from cfg on each call.
func NewGenerator(cfg func() Config) *Generator {
	return &Generator{cfg: cfg}
}

// Generate returns the top-K feasible candidates for the load, pre-scored
// and sorted deterministically. It returns ErrInfeasible when the list would
// be empty.
func (g *Generator) Generate(l model.Load, vehicles []model.VehicleSnapshot, hubs []model.SmartHub, usage HubUsage, now time.Time) ([]model.Candidate, error) {
	cfg := g.cfg()
	cfg.SetDefaults()

	var cands []model.Candidate
	for _, v := range vehicles {
		if c, ok := g.direct(cfg, l, v, now); ok {
			cands = append(cands, c)
		}
	}
	cands = append(cands, g.relays(cfg, l, vehicles, hubs, usage, now)...)

	if len(cands) == 0 {
		return nil, fmt.Errorf("load %s: %w", l.ID, ErrInfeasible)
	}

	// Deterministic top-K: pre-score desc, then smaller detour, then id.
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].PreScore != cands[j].PreScore {
			return cands[i].PreScore > cands[j].PreScore
		}
		if cands[i].DetourKm != cands[j].DetourKm {
			return cands[i].DetourKm < cands[j].DetourKm
		}
		return cands[i].ID < cands[j].ID
	})
	if len(cands) > cfg.TopK {
		cands = cands[:cfg.TopK]
	}
	return cands, nil
}

func travelHours(km, speedKmh float64) float64 { return km / speedKmh }

func hoursToDur(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// direct builds a single-vehicle candidate, applying the feasibility filters
// in cheap-to-expensive order: equipment, time windows, duty hours.
func (g *Generator) direct(cfg Config, l model.Load, v model.VehicleSnapshot, now time.Time) (model.Candidate, bool) {
	if !v.CanHaul(l) {
		return model.Candidate{}, false
	}

	emptyKm := v.Position.DistanceKm(l.Origin)
	loadedKm := l.LinehaulKm()

	arriveOrigin := now.Add(hoursToDur(travelHours(emptyKm, cfg.AvgSpeedKmh)))
	if arriveOrigin.After(l.PickupWindow.Latest) {
		return model.Candidate{}, false
	}
	depart := arriveOrigin
	if depart.Before(l.PickupWindow.Earliest) {
		depart = l.PickupWindow.Earliest
	}
	arriveDest := depart.Add(hoursToDur(travelHours(loadedKm, cfg.AvgSpeedKmh)))
	if arriveDest.After(l.DeliveryWindow.Latest) {
		return model.Candidate{}, false
	}

	driveH := travelHours(emptyKm+loadedKm, cfg.AvgSpeedKmh)
	if driveH > v.DutyHours {
		return model.Candidate{}, false
	}

	slack := minHours(
		l.PickupWindow.Latest.Sub(arriveOrigin).Hours(),
		l.DeliveryWindow.Latest.Sub(arriveDest).Hours(),
	)

	leg := model.Leg{
		VehicleID: v.ID,
		Start:     v.Position,
		Pickup:    l.Origin,
		End:       l.Destination,
		DepartAt:  now,
		ArriveAt:  arriveDest,
		EmptyKm:   emptyKm,
		LoadedKm:  loadedKm,
	}
	c := model.Candidate{
		ID:              fmt.Sprintf("%s:%s", l.ID, v.ID),
		LoadID:          l.ID,
		Kind:            model.MatchDirect,
		Legs:            []model.Leg{leg},
		DeadheadSavedKm: maxf(0, loadedKm-emptyKm),
		DetourKm:        0,
		SlackHours:      slack,
		PreScore:        loadedKm / (loadedKm + emptyKm),
		ExpiresAt:       now.Add(time.Duration(cfg.TTLSeconds) * time.Second),
	}
	return c, true
}

// relays builds two-leg candidates through every eligible hub. A hub is
// eligible only if it lies within the detour bound of the straight-line
// path and has spare exchange capacity over the delivery window.
func (g *Generator) relays(cfg Config, l model.Load, vehicles []model.VehicleSnapshot, hubs []model.SmartHub, usage HubUsage, now time.Time) []model.Candidate {
	window := model.TimeWindow{Earliest: l.PickupWindow.Earliest, Latest: l.DeliveryWindow.Latest}

	var out []model.Candidate
	for _, hub := range hubs {
		if model.DetourKm(l.Origin, hub.Location, l.Destination) > cfg.MaxDetourKm {
			continue
		}
		if !hub.OpenAt(window) {
			continue
		}
		if usage != nil && usage.Active(hub.ID, window) >= hub.Capacity {
			continue
		}
		out = append(out, g.relaysThroughHub(cfg, l, hub, vehicles, now)...)
	}
	return out
}

func (g *Generator) relaysThroughHub(cfg Config, l model.Load, hub model.SmartHub, vehicles []model.VehicleSnapshot, now time.Time) []model.Candidate {
	// Bound the pairing fan-out: nearest eligible vehicles to the pickup for
	// the first leg, nearest to the hub for the second.
	firstLeg := nearestEligible(vehicles, l, l.Origin, cfg.RelayFanout)
	secondLeg := nearestEligible(vehicles, l, hub.Location, cfg.RelayFanout)

	buffer := time.Duration(cfg.HandoffMinutes) * time.Minute
	originToHub := l.Origin.DistanceKm(hub.Location)
	hubToDest := hub.Location.DistanceKm(l.Destination)
	linehaul := l.LinehaulKm()
	detour := originToHub + hubToDest - linehaul

	var out []model.Candidate
	for _, va := range firstLeg {
		emptyA := va.Position.DistanceKm(l.Origin)
		arriveOrigin := now.Add(hoursToDur(travelHours(emptyA, cfg.AvgSpeedKmh)))
		if arriveOrigin.After(l.PickupWindow.Latest) {
			continue
		}
		departOrigin := arriveOrigin
		if departOrigin.Before(l.PickupWindow.Earliest) {
			departOrigin = l.PickupWindow.Earliest
		}
		arriveHub := departOrigin.Add(hoursToDur(travelHours(originToHub, cfg.AvgSpeedKmh)))
		if travelHours(emptyA+originToHub, cfg.AvgSpeedKmh) > va.DutyHours {
			continue
		}

		for _, vb := range secondLeg {
			if vb.ID == va.ID {
				continue
			}
			emptyB := vb.Position.DistanceKm(hub.Location)
			vbAtHub := now.Add(hoursToDur(travelHours(emptyB, cfg.AvgSpeedKmh)))
			if vbAtHub.After(arriveHub.Add(buffer)) {
				continue
			}
			departHub := laterOf(arriveHub, vbAtHub).Add(buffer)
			arriveDest := departHub.Add(hoursToDur(travelHours(hubToDest, cfg.AvgSpeedKmh)))
			if arriveDest.After(l.DeliveryWindow.Latest) {
				continue
			}
			if travelHours(emptyB+hubToDest, cfg.AvgSpeedKmh) > vb.DutyHours {
				continue
			}

			slack := minHours(
				l.PickupWindow.Latest.Sub(arriveOrigin).Hours(),
				arriveHub.Add(buffer).Sub(vbAtHub).Hours(),
				l.DeliveryWindow.Latest.Sub(arriveDest).Hours(),
			)

			legA := model.Leg{
				VehicleID: va.ID,
				Start:     va.Position,
				Pickup:    l.Origin,
				End:       hub.Location,
				HubID:     hub.ID,
				DepartAt:  now,
				ArriveAt:  arriveHub,
				EmptyKm:   emptyA,
				LoadedKm:  originToHub,
			}
			legB := model.Leg{
				VehicleID:  vb.ID,
				Start:      vb.Position,
				Pickup:     hub.Location,
				End:        l.Destination,
				StartHubID: hub.ID,
				DepartAt:   departHub,
				ArriveAt:   arriveDest,
				EmptyKm:    emptyB,
				LoadedKm:   hubToDest,
			}
			loaded := originToHub + hubToDest
			empty := emptyA + emptyB
			out = append(out, model.Candidate{
				ID:              fmt.Sprintf("%s:%s>%s>%s", l.ID, va.ID, hub.ID, vb.ID),
				LoadID:          l.ID,
				Kind:            model.MatchRelay,
				Legs:            []model.Leg{legA, legB},
				DeadheadSavedKm: maxf(0, linehaul-empty),
				DetourKm:        detour,
				SlackHours:      slack,
				PreScore:        loaded / (loaded + empty + detour),
				ExpiresAt:       now.Add(time.Duration(cfg.TTLSeconds) * time.Second),
			})
		}
	}
	return out
}

// nearestEligible returns up to n equipment-compatible vehicles sorted by
// distance to the reference point, ties by id.
func nearestEligible(vehicles []model.VehicleSnapshot, l model.Load, ref model.GeoPoint, n int) []model.VehicleSnapshot {
	var eligible []model.VehicleSnapshot
	for _, v := range vehicles {
		if v.CanHaul(l) {
			eligible = append(eligible, v)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		di, dj := ref.DistanceKm(eligible[i].Position), ref.DistanceKm(eligible[j].Position)
		if di != dj {
			return di < dj
		}
		return eligible[i].ID < eligible[j].ID
	})
	if len(eligible) > n {
		eligible = eligible[:n]
	}
	return eligible
}

func minHours(vals ...float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
