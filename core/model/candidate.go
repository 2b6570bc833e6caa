package model

import (
	"fmt"
	"time"
)

// MatchKind distinguishes single-vehicle hauls from multi-vehicle relays.
type MatchKind int

const (
	MatchDirect MatchKind = iota
	MatchRelay
)

// String returns a human-readable match kind.
func (k MatchKind) String() string {
	if k == MatchRelay {
		return "relay"
	}
	return "direct"
}

// Leg is one vehicle's segment of a candidate haul. For a direct candidate
// there is a single leg with an empty HubID; for relays every leg except the
// last ends at a hub, and every leg except the first starts at the hub the
// previous leg ended at.
type Leg struct {
	VehicleID  string    `json:"vehicle_id"`
	Start      GeoPoint  `json:"start"`    // vehicle position at generation time, or hand-off hub
	Pickup     GeoPoint  `json:"pickup"`   // where the freight is taken on for this leg
	End        GeoPoint  `json:"end"`      // hub location or final destination
	HubID      string    `json:"hub_id,omitempty"`    // hub this leg ends at, empty on the final leg
	StartHubID string    `json:"start_hub_id,omitempty"` // hub this leg starts at, empty on the first leg
	DepartAt   time.Time `json:"depart_at"`
	ArriveAt   time.Time `json:"arrive_at"`
	EmptyKm    float64   `json:"empty_km"`  // deadhead to reach the pickup
	LoadedKm   float64   `json:"loaded_km"` // distance hauled with freight on board
}

// Candidate is a feasible, scored proposal covering one load. Candidates are
// ephemeral: they live for one optimization pass or one on-demand request and
// are never persisted beyond ExpiresAt.
type Candidate struct {
	ID              string    `json:"candidate_id"`
	LoadID          string    `json:"load_id"`
	Kind            MatchKind `json:"kind"`
	Legs            []Leg     `json:"legs"`
	DeadheadSavedKm float64   `json:"deadhead_saved_km"` // vs. the vehicle returning empty
	DetourKm        float64   `json:"detour_km"`
	SlackHours      float64   `json:"slack_hours"` // tightest remaining window buffer
	PreScore        float64   `json:"pre_score"`
	Score           float64   `json:"score"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// VehicleIDs returns the vehicles used by the candidate in leg order.
func (c Candidate) VehicleIDs() []string {
	ids := make([]string, len(c.Legs))
	for i, leg := range c.Legs {
		ids[i] = leg.VehicleID
	}
	return ids
}

// Expired reports whether the candidate is past its expiry.
func (c Candidate) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// RelayPlan is the concrete, timed execution plan for a relay candidate.
type RelayPlan struct {
	LoadID      string    `json:"load_id"`
	CandidateID string    `json:"candidate_id"`
	Legs        []Leg     `json:"legs"`
	PlannedAt   time.Time `json:"planned_at"`
}

// Validate enforces the chaining invariant: leg i ends at the hub leg i+1
// starts from, and the final leg carries the freight to its destination.
func (p RelayPlan) Validate() error {
	if len(p.Legs) < 2 {
		return fmt.Errorf("relay plan %s: needs at least two legs", p.CandidateID)
	}
	for i := 0; i < len(p.Legs)-1; i++ {
		cur, next := p.Legs[i], p.Legs[i+1]
		if cur.HubID == "" {
			return fmt.Errorf("relay plan %s: leg %d has no hand-off hub", p.CandidateID, i)
		}
		if cur.HubID != next.StartHubID {
			return fmt.Errorf("relay plan %s: leg %d ends at hub %s but leg %d starts at %s",
				p.CandidateID, i, cur.HubID, i+1, next.StartHubID)
		}
		if next.ArriveAt.Before(cur.ArriveAt) {
			return fmt.Errorf("relay plan %s: leg %d arrives before its predecessor", p.CandidateID, i+1)
		}
	}
	if last := p.Legs[len(p.Legs)-1]; last.HubID != "" {
		return fmt.Errorf("relay plan %s: final leg must end at the destination, not hub %s",
			p.CandidateID, last.HubID)
	}
	return nil
}

// HubIDs returns the hand-off hubs traversed by the plan, in order.
func (p RelayPlan) HubIDs() []string {
	var ids []string
	for _, leg := range p.Legs {
		if leg.HubID != "" {
			ids = append(ids, leg.HubID)
		}
	}
	return ids
}
