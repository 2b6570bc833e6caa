package model

import (
	"fmt"
	"time"
)

// LoadStatus tracks the lifecycle of a load. The engine only drives the
// Open → Candidate → Reserved → Assigned/Expired transitions; the rest is
// owned by the external load lifecycle service.
type LoadStatus int

const (
	LoadOpen LoadStatus = iota
	LoadCandidate
	LoadReserved
	LoadAssigned
	LoadInTransit
	LoadDelivered
	LoadCancelled
	LoadExpired
)

// String returns a human-readable load status.
func (s LoadStatus) String() string {
	switch s {
	case LoadOpen:
		return "open"
	case LoadCandidate:
		return "candidate"
	case LoadReserved:
		return "reserved"
	case LoadAssigned:
		return "assigned"
	case LoadInTransit:
		return "in_transit"
	case LoadDelivered:
		return "delivered"
	case LoadCancelled:
		return "cancelled"
	case LoadExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status allows no further transitions.
func (s LoadStatus) Terminal() bool {
	return s == LoadDelivered || s == LoadCancelled || s == LoadExpired
}

// TimeWindow is a half-closed interval [Earliest, Latest].
type TimeWindow struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// Valid reports whether the window is non-empty.
func (w TimeWindow) Valid() bool { return w.Latest.After(w.Earliest) }

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Earliest) && !t.After(w.Latest)
}

// Load is a freight shipment pending assignment.
type Load struct {
	ID             string         `json:"load_id"`
	Origin         GeoPoint       `json:"origin"`
	Destination    GeoPoint       `json:"destination"`
	PickupWindow   TimeWindow     `json:"pickup_window"`
	DeliveryWindow TimeWindow     `json:"delivery_window"`
	WeightLb       float64        `json:"weight_lb"`
	Equipment      EquipmentClass `json:"equipment"`
	Status         LoadStatus     `json:"status"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Validate checks the load against basic structural requirements.
func (l Load) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("load id must not be empty")
	}
	if l.WeightLb <= 0 {
		return fmt.Errorf("load %s: weight must be positive", l.ID)
	}
	if !l.PickupWindow.Valid() {
		return fmt.Errorf("load %s: pickup window is empty", l.ID)
	}
	if !l.DeliveryWindow.Valid() {
		return fmt.Errorf("load %s: delivery window is empty", l.ID)
	}
	if l.DeliveryWindow.Latest.Before(l.PickupWindow.Earliest) {
		return fmt.Errorf("load %s: delivery window ends before pickup window starts", l.ID)
	}
	return nil
}

// LinehaulKm returns the direct origin-to-destination distance.
func (l Load) LinehaulKm() float64 { return l.Origin.DistanceKm(l.Destination) }
