package model

import "time"

// VehicleUpdate is one message on the inbound position/availability feed.
type VehicleUpdate struct {
	VehicleID  string         `json:"vehicle_id"`
	Position   GeoPoint       `json:"position"`
	DutyHours  float64        `json:"duty_hours"`
	CapacityLb float64        `json:"capacity_lb,omitempty"`
	Equipment  EquipmentClass `json:"equipment,omitempty"`
	HomeRegion string         `json:"home_region,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// LoadEventType identifies an inbound load lifecycle event.
type LoadEventType string

const (
	LoadEventCreated       LoadEventType = "created"
	LoadEventCancelled     LoadEventType = "cancelled"
	LoadEventStatusChanged LoadEventType = "status_changed"
)

// LoadEvent is one message on the inbound load lifecycle feed.
type LoadEvent struct {
	Type      LoadEventType `json:"type"`
	Load      Load          `json:"load"`
	Timestamp time.Time     `json:"timestamp"`
}
