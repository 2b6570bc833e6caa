package model

import "time"

// MatchState tracks a reservation through its lifecycle.
type MatchState int

const (
	MatchProposed MatchState = iota
	MatchHeld
	MatchAccepted
	MatchRejected
	MatchExpired
	MatchReleased
)

// String returns a human-readable match state.
func (s MatchState) String() string {
	switch s {
	case MatchProposed:
		return "proposed"
	case MatchHeld:
		return "held"
	case MatchAccepted:
		return "accepted"
	case MatchRejected:
		return "rejected"
	case MatchExpired:
		return "expired"
	case MatchReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Active reports whether the state blocks new holds for the same load or
// vehicles. This is the core exclusivity invariant: at most one match in an
// active state may exist per load id and per vehicle id.
func (s MatchState) Active() bool {
	return s == MatchHeld || s == MatchAccepted
}

// Match is a reservation binding a load to one or more vehicles.
type Match struct {
	ID          string     `json:"match_id"`
	LoadID      string     `json:"load_id"`
	VehicleIDs  []string   `json:"vehicle_ids"`
	CandidateID string     `json:"candidate_id,omitempty"`
	Kind        MatchKind  `json:"kind"`
	Score       float64    `json:"score"`
	State       MatchState `json:"state"`
	HeldUntil   time.Time  `json:"held_until"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
