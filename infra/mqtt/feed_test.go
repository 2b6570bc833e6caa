package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/haulnet/relay/core/model"
	"github.com/haulnet/relay/core/snapshot"
)

type mockMessage struct {
	topic   string
	payload []byte
}

func (m mockMessage) Duplicate() bool            { return false }
func (m mockMessage) Qos() byte                  { return 1 }
func (m mockMessage) Retained() bool             { return false }
func (m mockMessage) Topic() string              { return m.topic }
func (m mockMessage) MessageID() uint16          { return 0 }
func (m mockMessage) Payload() []byte            { return m.payload }
func (m mockMessage) Ack()                       {}
func (m mockMessage) Read(b []byte) (int, error) { copy(b, m.payload); return len(m.payload), nil }

func TestOnPositionAppliesUpdate(t *testing.T) {
	snap := snapshot.NewStore()
	f := NewFeed(nil, snap, nil)

	u := model.VehicleUpdate{
		VehicleID: "v1",
		Position:  model.GeoPoint{Lat: 41.88, Lon: -87.63},
		DutyHours: 9,
		Equipment: model.EquipmentDryVan,
		Timestamp: time.Now(),
	}
	payload, _ := json.Marshal(u)
	f.onPosition(nil, mockMessage{topic: "fleet/v1/position", payload: payload})

	v, ok := snap.Vehicle("v1")
	if !ok || v.DutyHours != 9 {
		t.Fatalf("vehicle not applied: %+v ok=%v", v, ok)
	}
}

func TestOnPositionDropsInvalid(t *testing.T) {
	snap := snapshot.NewStore()
	f := NewFeed(nil, snap, nil)

	f.onPosition(nil, mockMessage{topic: "fleet/x/position", payload: []byte("{not json")})

	// Missing vehicle_id.
	payload, _ := json.Marshal(model.VehicleUpdate{Timestamp: time.Now()})
	f.onPosition(nil, mockMessage{topic: "fleet/x/position", payload: payload})

	// Missing timestamp.
	payload, _ = json.Marshal(model.VehicleUpdate{VehicleID: "v1"})
	f.onPosition(nil, mockMessage{topic: "fleet/v1/position", payload: payload})

	if snap.VehicleCount() != 0 {
		t.Fatalf("invalid messages reached the store")
	}
}

func TestOnLoadAppliesEvent(t *testing.T) {
	snap := snapshot.NewStore()
	f := NewFeed(nil, snap, nil)

	e := model.LoadEvent{
		Type:      model.LoadEventCreated,
		Load:      model.Load{ID: "l1", Status: model.LoadOpen},
		Timestamp: time.Now(),
	}
	payload, _ := json.Marshal(e)
	f.onLoad(nil, mockMessage{topic: "loads/events", payload: payload})

	l, ok := snap.Load("l1")
	if !ok || l.Status != model.LoadOpen {
		t.Fatalf("load not applied: %+v ok=%v", l, ok)
	}
}

func TestOnLoadDropsInvalid(t *testing.T) {
	snap := snapshot.NewStore()
	f := NewFeed(nil, snap, nil)

	f.onLoad(nil, mockMessage{topic: "loads/events", payload: []byte("nope")})

	payload, _ := json.Marshal(model.LoadEvent{Timestamp: time.Now()})
	f.onLoad(nil, mockMessage{topic: "loads/events", payload: payload})

	if _, ok := snap.Load(""); ok {
		t.Fatalf("invalid load event reached the store")
	}
}
