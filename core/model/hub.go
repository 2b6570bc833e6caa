package model

// SmartHub is a geographic exchange point where relay legs hand off.
// Hubs are created and retired exclusively by the hub selector; the rest of
// the engine treats them as read-only.
type SmartHub struct {
	ID          string     `json:"hub_id"`
	Location    GeoPoint   `json:"location"`
	Capacity    int        `json:"capacity"` // concurrent exchanges
	Suitability float64    `json:"suitability"`
	Window      TimeWindow `json:"window"` // daily activity window, zero value means always open
}

// OpenAt reports whether the hub accepts exchanges at the given instant.
func (h SmartHub) OpenAt(w TimeWindow) bool {
	if h.Window.Earliest.IsZero() && h.Window.Latest.IsZero() {
		return true
	}
	return h.Window.Contains(w.Earliest) && h.Window.Contains(w.Latest)
}
