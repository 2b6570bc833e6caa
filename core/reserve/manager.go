// Package reserve is the single source of truth for load/vehicle
// reservations. Both the batch optimizer and the on-demand match path go
// through Hold before committing an assignment; whatever holds first wins.
//
// All hold and accept operations are atomic over the full key set of a
// match: a Hold either claims the load key and every vehicle key in one
// step, or claims nothing. No partially held state is ever observable.
package reserve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haulnet/relay/core/logger"
	"github.com/haulnet/relay/core/model"
)

var (
	// ErrConflict means the load or a vehicle is already held or accepted.
	ErrConflict = errors.New("load or vehicle already committed")
	// ErrExpired means the hold's TTL elapsed before Accept.
	ErrExpired = errors.New("hold expired")
	// ErrNotFound means no match exists with the given id.
	ErrNotFound = errors.New("match not found")
	// ErrTerminal means the match is in a state that allows no transition.
	ErrTerminal = errors.New("match is terminal")
)

// Event is published on every reservation state change.
type Event struct {
	Match model.Match
	At    time.Time
}

// EventSink receives reservation lifecycle events.
type EventSink interface {
	Publish(Event)
}

// Manager owns the reservation lock table.
type Manager struct {
	mu      sync.Mutex
	byKey   map[string]string // "load/<id>" or "vehicle/<id>" -> match id
	matches map[string]model.Match

	defaultTTL time.Duration
	clock      func() time.Time
	log        logger.Logger
	sink       EventSink
	onFree     []func(match model.Match, at time.Time)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source, used in tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithEventSink attaches a sink for reservation events.
func WithEventSink(s EventSink) Option {
	return func(m *Manager) { m.sink = s }
}

// NewManager creates a Manager with the given default hold TTL.
func NewManager(defaultTTL time.Duration, log logger.Logger, opts ...Option) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	m := &Manager{
		byKey:      make(map[string]string),
		matches:    make(map[string]model.Match),
		defaultTTL: defaultTTL,
		clock:      time.Now,
		log:        log,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// OnFree registers fn to run whenever a match stops holding its keys, that
// is on expiry, release, or cancellation. Callers use it to return the load
// to the assignable pool and drop its hub commitments. fn runs synchronously
// under the manager's lock and must not call back into the Manager.
func (m *Manager) OnFree(fn func(match model.Match, at time.Time)) {
	m.mu.Lock()
	m.onFree = append(m.onFree, fn)
	m.mu.Unlock()
}

func loadKey(id string) string    { return "load/" + id }
func vehicleKey(id string) string { return "vehicle/" + id }

// keyFree reports whether the key is unclaimed, lazily expiring stale holds.
// Caller must hold m.mu.
func (m *Manager) keyFree(key string, now time.Time) bool {
	matchID, ok := m.byKey[key]
	if !ok {
		return true
	}
	match := m.matches[matchID]
	if match.State == model.MatchHeld && now.After(match.HeldUntil) {
		m.expireLocked(matchID, now)
		return true
	}
	return !match.State.Active()
}

// Hold reserves the load and all vehicles for the candidate. It succeeds
// only if no active match exists for the load or any vehicle; otherwise it
// fails with ErrConflict and claims nothing.
func (m *Manager) Hold(c model.Candidate, ttl time.Duration) (model.Match, error) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	vehicleIDs := c.VehicleIDs()
	if c.LoadID == "" || len(vehicleIDs) == 0 {
		return model.Match{}, fmt.Errorf("hold: candidate %s has no load or vehicles", c.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()

	keys := make([]string, 0, len(vehicleIDs)+1)
	keys = append(keys, loadKey(c.LoadID))
	for _, vid := range vehicleIDs {
		keys = append(keys, vehicleKey(vid))
	}
	for _, k := range keys {
		if !m.keyFree(k, now) {
			return model.Match{}, fmt.Errorf("hold %s: key %s: %w", c.LoadID, k, ErrConflict)
		}
	}

	match := model.Match{
		ID:          uuid.NewString(),
		LoadID:      c.LoadID,
		VehicleIDs:  vehicleIDs,
		CandidateID: c.ID,
		Kind:        c.Kind,
		Score:       c.Score,
		State:       model.MatchHeld,
		HeldUntil:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, k := range keys {
		m.byKey[k] = match.ID
	}
	m.matches[match.ID] = match
	m.emit(match, now)
	return match, nil
}

// Accept transitions Held to Accepted. It fails with ErrExpired when the
// hold TTL has already elapsed; the caller must re-request a hold.
func (m *Manager) Accept(matchID string) (model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()

	match, ok := m.matches[matchID]
	if !ok {
		return model.Match{}, fmt.Errorf("accept %s: %w", matchID, ErrNotFound)
	}
	switch match.State {
	case model.MatchHeld:
	case model.MatchAccepted:
		return match, nil
	default:
		return model.Match{}, fmt.Errorf("accept %s in state %s: %w", matchID, match.State, ErrTerminal)
	}
	if now.After(match.HeldUntil) {
		m.expireLocked(matchID, now)
		return model.Match{}, fmt.Errorf("accept %s: %w", matchID, ErrExpired)
	}

	match.State = model.MatchAccepted
	match.UpdatedAt = now
	m.matches[matchID] = match
	m.emit(match, now)
	return match, nil
}

// Release frees a held match explicitly.
func (m *Manager) Release(matchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()

	match, ok := m.matches[matchID]
	if !ok {
		return fmt.Errorf("release %s: %w", matchID, ErrNotFound)
	}
	if match.State != model.MatchHeld {
		return fmt.Errorf("release %s in state %s: %w", matchID, match.State, ErrTerminal)
	}
	m.freeKeysLocked(match)
	match.State = model.MatchReleased
	match.UpdatedAt = now
	m.matches[matchID] = match
	m.emit(match, now)
	m.freed(match, now)
	return nil
}

// Cancel reverses an Accepted match on an external cancellation event.
func (m *Manager) Cancel(matchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()

	match, ok := m.matches[matchID]
	if !ok {
		return fmt.Errorf("cancel %s: %w", matchID, ErrNotFound)
	}
	if match.State != model.MatchAccepted && match.State != model.MatchHeld {
		return fmt.Errorf("cancel %s in state %s: %w", matchID, match.State, ErrTerminal)
	}
	m.freeKeysLocked(match)
	match.State = model.MatchRejected
	match.UpdatedAt = now
	m.matches[matchID] = match
	m.emit(match, now)
	m.freed(match, now)
	return nil
}

// Sweep expires holds past their TTL and garbage-collects matches that have
// been terminal longer than retain. It returns the matches expired by this
// pass.
func (m *Manager) Sweep(retain time.Duration) []model.Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()

	var expired []model.Match
	for id, match := range m.matches {
		switch {
		case match.State == model.MatchHeld && now.After(match.HeldUntil):
			m.expireLocked(id, now)
			expired = append(expired, m.matches[id])
		case !match.State.Active() && now.Sub(match.UpdatedAt) > retain:
			delete(m.matches, id)
		}
	}
	return expired
}

// Run sweeps expired holds periodically until the context is done.
func (m *Manager) Run(ctx context.Context, every, retain time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := len(m.Sweep(retain)); n > 0 {
				m.log.Debugf("expired %d holds", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// ByLoad returns the current match for the load, if any.
func (m *Manager) ByLoad(loadID string) (model.Match, bool) {
	return m.lookup(loadKey(loadID))
}

// ByVehicle returns the current match for the vehicle, if any.
func (m *Manager) ByVehicle(vehicleID string) (model.Match, bool) {
	return m.lookup(vehicleKey(vehicleID))
}

// Get returns the match with the given id.
func (m *Manager) Get(matchID string) (model.Match, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[matchID]
	return match, ok
}

func (m *Manager) lookup(key string) (model.Match, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matchID, ok := m.byKey[key]
	if !ok {
		return model.Match{}, false
	}
	match, ok := m.matches[matchID]
	if !ok {
		return model.Match{}, false
	}
	// Same lazy expiry as keyFree: a hold past its TTL is not a current
	// match, even before the next sweep touches it.
	now := m.clock()
	if match.State == model.MatchHeld && now.After(match.HeldUntil) {
		m.expireLocked(matchID, now)
		return model.Match{}, false
	}
	return match, true
}

// expireLocked transitions a held match to Expired and frees its keys.
// Caller must hold m.mu.
func (m *Manager) expireLocked(matchID string, now time.Time) {
	match := m.matches[matchID]
	m.freeKeysLocked(match)
	match.State = model.MatchExpired
	match.UpdatedAt = now
	m.matches[matchID] = match
	m.emit(match, now)
	m.freed(match, now)
}

// freeKeysLocked releases the key claims of a match. Caller must hold m.mu.
func (m *Manager) freeKeysLocked(match model.Match) {
	if m.byKey[loadKey(match.LoadID)] == match.ID {
		delete(m.byKey, loadKey(match.LoadID))
	}
	for _, vid := range match.VehicleIDs {
		if m.byKey[vehicleKey(vid)] == match.ID {
			delete(m.byKey, vehicleKey(vid))
		}
	}
}

func (m *Manager) emit(match model.Match, at time.Time) {
	if m.sink != nil {
		m.sink.Publish(Event{Match: match, At: at})
	}
}

// freed runs the key-release hooks. Caller must hold m.mu.
func (m *Manager) freed(match model.Match, at time.Time) {
	for _, fn := range m.onFree {
		fn(match, at)
	}
}
