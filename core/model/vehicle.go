package model

import (
	"fmt"
	"time"
)

// EquipmentClass identifies the trailer/equipment type of a vehicle or the
// requirement of a load.
type EquipmentClass string

const (
	EquipmentDryVan  EquipmentClass = "dry_van"
	EquipmentReefer  EquipmentClass = "reefer"
	EquipmentFlatbed EquipmentClass = "flatbed"
	EquipmentTanker  EquipmentClass = "tanker"
)

// VehicleSnapshot is the latest known state of a vehicle, refreshed
// continuously by the external position feed. The engine never holds more
// than one snapshot per vehicle.
type VehicleSnapshot struct {
	ID         string         `json:"vehicle_id"`
	Position   GeoPoint       `json:"position"`
	ObservedAt time.Time      `json:"observed_at"`
	DutyHours  float64        `json:"duty_hours"` // remaining legal drive time
	Equipment  EquipmentClass `json:"equipment"`
	CapacityLb float64        `json:"capacity_lb"`
	HomeRegion string         `json:"home_region,omitempty"`
}

// Validate checks that the snapshot is usable for matching.
func (v VehicleSnapshot) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vehicle id must not be empty")
	}
	if v.CapacityLb <= 0 {
		return fmt.Errorf("vehicle %s: capacity must be positive", v.ID)
	}
	return nil
}

// CanHaul reports whether the vehicle's equipment and capacity satisfy the
// load requirement. Time and duty-hour feasibility are checked separately.
func (v VehicleSnapshot) CanHaul(l Load) bool {
	return v.Equipment == l.Equipment && v.CapacityLb >= l.WeightLb
}
