package hubs

import (
	"sort"
	"sync"

	"github.com/haulnet/relay/core/model"
)

// Store is the shared read-mostly view of the active hub set. The selector
// writes it on its slow cadence; candidate generation and the query surface
// read it.
type Store struct {
	mu   sync.RWMutex
	hubs map[string]model.SmartHub
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{hubs: make(map[string]model.SmartHub)}
}

// Replace swaps the active set for the outcome of a selection pass.
func (s *Store) Replace(active []model.SmartHub) {
	next := make(map[string]model.SmartHub, len(active))
	for _, h := range active {
		next[h.ID] = h
	}
	s.mu.Lock()
	s.hubs = next
	s.mu.Unlock()
}

// Get returns the hub with the given id.
func (s *Store) Get(id string) (model.SmartHub, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hubs[id]
	return h, ok
}

// List returns all active hubs sorted by id.
func (s *Store) List() []model.SmartHub {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.SmartHub, 0, len(s.hubs))
	for _, h := range s.hubs {
		res = append(res, h)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Near returns active hubs within radiusKm of the point, nearest first.
func (s *Store) Near(p model.GeoPoint, radiusKm float64) []model.SmartHub {
	all := s.List()
	var res []model.SmartHub
	for _, h := range all {
		if p.DistanceKm(h.Location) <= radiusKm {
			res = append(res, h)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		di, dj := p.DistanceKm(res[i].Location), p.DistanceKm(res[j].Location)
		if di != dj {
			return di < dj
		}
		return res[i].ID < res[j].ID
	})
	return res
}
