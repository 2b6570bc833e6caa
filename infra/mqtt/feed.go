package mqtt

import (
	"encoding/json"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/haulnet/relay/core/logger"
	coremetrics "github.com/haulnet/relay/core/metrics"
	"github.com/haulnet/relay/core/model"
	"github.com/haulnet/relay/core/snapshot"
	infralog "github.com/haulnet/relay/infra/logger"
)

// Feed subscribes to the inbound position and load topics and applies each
// message to the snapshot store. Decoding failures are logged and dropped;
// ordering and duplicates are handled by the store's idempotent upserts.
type Feed struct {
	client *PahoClient
	snap   *snapshot.Store
	sink   coremetrics.MetricsSink
	log    logger.Logger
}

// NewFeed wires the subscriptions. sink may be nil.
func NewFeed(client *PahoClient, snap *snapshot.Store, sink coremetrics.MetricsSink) *Feed {
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	return &Feed{client: client, snap: snap, sink: sink, log: infralog.New("feed")}
}

// Start subscribes to both inbound topics.
func (f *Feed) Start(cfg Config) error {
	cfg.SetDefaults()
	if err := f.client.Subscribe(cfg.PositionTopic, "position", f.onPosition); err != nil {
		return err
	}
	return f.client.Subscribe(cfg.LoadTopic, "load", f.onLoad)
}

func (f *Feed) onPosition(_ paho.Client, msg paho.Message) {
	var u model.VehicleUpdate
	if err := json.Unmarshal(msg.Payload(), &u); err != nil {
		f.log.Errorf("drop position message on %s: %v", msg.Topic(), err)
		return
	}
	if u.VehicleID == "" || u.Timestamp.IsZero() {
		f.log.Warnf("drop position message on %s: missing vehicle_id or timestamp", msg.Topic())
		return
	}
	if f.snap.ApplyVehicleUpdate(u) {
		f.log.Debugw("vehicle update applied", map[string]any{
			"vehicle_id": u.VehicleID,
			"lat":        u.Position.Lat,
			"lon":        u.Position.Lon,
		})
		if rec, ok := f.sink.(coremetrics.FleetSizeRecorder); ok {
			_ = rec.RecordFleetSize(f.snap.VehicleCount())
		}
	}
}

func (f *Feed) onLoad(_ paho.Client, msg paho.Message) {
	var e model.LoadEvent
	if err := json.Unmarshal(msg.Payload(), &e); err != nil {
		f.log.Errorf("drop load event on %s: %v", msg.Topic(), err)
		return
	}
	if e.Load.ID == "" || e.Timestamp.IsZero() {
		f.log.Warnf("drop load event on %s: missing load id or timestamp", msg.Topic())
		return
	}
	if f.snap.ApplyLoadEvent(e) {
		f.log.Debugw("load event applied", map[string]any{
			"load_id": e.Load.ID,
			"type":    string(e.Type),
		})
	}
}
