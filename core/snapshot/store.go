// Package snapshot is the ingestion boundary between the external
// position/load feeds and the matching core. Updates are applied
// idempotently by (entity id, event timestamp): duplicates and
// older-than-latest messages are ignored, so the feed transport may deliver
// at-least-once in any per-key order.
//
// Readers never see partial state: View returns an immutable copy that
// candidate generation and scoring can consume without locks.
package snapshot

import (
	"sort"
	"sync"
	"time"

	"github.com/haulnet/relay/core/model"
)

// Store holds the latest snapshot per vehicle and per load.
type Store struct {
	mu       sync.RWMutex
	vehicles map[string]model.VehicleSnapshot
	loads    map[string]model.Load
	lastFeed time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		vehicles: make(map[string]model.VehicleSnapshot),
		loads:    make(map[string]model.Load),
	}
}

// ApplyVehicleUpdate upserts the vehicle snapshot. It returns false when the
// update is a duplicate or older than the stored snapshot.
func (s *Store) ApplyVehicleUpdate(u model.VehicleUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFeed = time.Now()

	prev, ok := s.vehicles[u.VehicleID]
	if ok && !u.Timestamp.After(prev.ObservedAt) {
		return false
	}
	next := model.VehicleSnapshot{
		ID:         u.VehicleID,
		Position:   u.Position,
		ObservedAt: u.Timestamp,
		DutyHours:  u.DutyHours,
		Equipment:  u.Equipment,
		CapacityLb: u.CapacityLb,
		HomeRegion: u.HomeRegion,
	}
	// Partial updates keep the previously known static attributes.
	if ok {
		if next.Equipment == "" {
			next.Equipment = prev.Equipment
		}
		if next.CapacityLb == 0 {
			next.CapacityLb = prev.CapacityLb
		}
		if next.HomeRegion == "" {
			next.HomeRegion = prev.HomeRegion
		}
	}
	s.vehicles[u.VehicleID] = next
	return true
}

// ApplyLoadEvent upserts the load. It returns false when the event is a
// duplicate or older than the stored load.
func (s *Store) ApplyLoadEvent(e model.LoadEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFeed = time.Now()

	prev, ok := s.loads[e.Load.ID]
	if ok && !e.Timestamp.After(prev.UpdatedAt) {
		return false
	}
	l := e.Load
	l.UpdatedAt = e.Timestamp
	if e.Type == model.LoadEventCancelled {
		l.Status = model.LoadCancelled
	}
	s.loads[l.ID] = l
	return true
}

// SetLoadStatus applies an engine-owned status transition. Transitions out
// of a terminal status are refused.
func (s *Store) SetLoadStatus(loadID string, status model.LoadStatus, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loads[loadID]
	if !ok || l.Status.Terminal() {
		return false
	}
	l.Status = status
	l.UpdatedAt = at
	s.loads[loadID] = l
	return true
}

// Vehicle returns the latest snapshot for the given vehicle.
func (s *Store) Vehicle(id string) (model.VehicleSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	return v, ok
}

// Load returns the latest state for the given load.
func (s *Store) Load(id string) (model.Load, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loads[id]
	return l, ok
}

// VehicleCount returns the number of tracked vehicles.
func (s *Store) VehicleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vehicles)
}

// Healthy reports whether the feed has delivered anything within maxAge.
// The optimizer pauses batch runs when this returns false rather than
// solving over stale or empty data.
func (s *Store) Healthy(maxAge time.Duration, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastFeed.IsZero() {
		return false
	}
	return now.Sub(s.lastFeed) <= maxAge
}

// View is an immutable copy of the fleet and load state, sorted by id so
// that every consumer iterates in a deterministic order.
type View struct {
	Vehicles []model.VehicleSnapshot
	Loads    []model.Load
	TakenAt  time.Time
}

// OpenLoads returns the loads still awaiting assignment.
func (v View) OpenLoads() []model.Load {
	var open []model.Load
	for _, l := range v.Loads {
		if l.Status == model.LoadOpen || l.Status == model.LoadCandidate {
			open = append(open, l)
		}
	}
	return open
}

// VehicleByID performs a binary search over the sorted vehicle slice.
func (v View) VehicleByID(id string) (model.VehicleSnapshot, bool) {
	i := sort.Search(len(v.Vehicles), func(i int) bool { return v.Vehicles[i].ID >= id })
	if i < len(v.Vehicles) && v.Vehicles[i].ID == id {
		return v.Vehicles[i], true
	}
	return model.VehicleSnapshot{}, false
}

// LoadByID performs a binary search over the sorted load slice.
func (v View) LoadByID(id string) (model.Load, bool) {
	i := sort.Search(len(v.Loads), func(i int) bool { return v.Loads[i].ID >= id })
	if i < len(v.Loads) && v.Loads[i].ID == id {
		return v.Loads[i], true
	}
	return model.Load{}, false
}

// View captures an immutable snapshot of the store.
func (s *Store) View(now time.Time) View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vehicles := make([]model.VehicleSnapshot, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		vehicles = append(vehicles, v)
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].ID < vehicles[j].ID })

	loads := make([]model.Load, 0, len(s.loads))
	for _, l := range s.loads {
		loads = append(loads, l)
	}
	sort.Slice(loads, func(i, j int) bool { return loads[i].ID < loads[j].ID })

	return View{Vehicles: vehicles, Loads: loads, TakenAt: now}
}
