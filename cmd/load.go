package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haulnet/relay/config"
	"github.com/haulnet/relay/core/model"
	"github.com/haulnet/relay/infra/mqtt"
)

var (
	loadOriginLat, loadOriginLon float64
	loadDestLat, loadDestLon     float64
	loadEquipment                string
	loadWeight                   float64
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Publish a synthetic load event to exercise the feed end to end",
	RunE:  publishLoad,
}

func init() {
	loadCmd.Flags().Float64Var(&loadOriginLat, "origin-lat", 41.88, "origin latitude")
	loadCmd.Flags().Float64Var(&loadOriginLon, "origin-lon", -87.63, "origin longitude")
	loadCmd.Flags().Float64Var(&loadDestLat, "dest-lat", 39.77, "destination latitude")
	loadCmd.Flags().Float64Var(&loadDestLon, "dest-lon", -86.16, "destination longitude")
	loadCmd.Flags().StringVar(&loadEquipment, "equipment", string(model.EquipmentDryVan), "required equipment class")
	loadCmd.Flags().Float64Var(&loadWeight, "weight", 20000, "weight in pounds")
	rootCmd.AddCommand(loadCmd)
}

func publishLoad(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client, err := mqtt.NewPahoClient(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()

	now := time.Now()
	ev := model.LoadEvent{
		Type: model.LoadEventCreated,
		Load: model.Load{
			ID:          uuid.NewString(),
			Origin:      model.GeoPoint{Lat: loadOriginLat, Lon: loadOriginLon},
			Destination: model.GeoPoint{Lat: loadDestLat, Lon: loadDestLon},
			Equipment:   model.EquipmentClass(loadEquipment),
			WeightLb:    loadWeight,
			PickupWindow: model.TimeWindow{
				Earliest: now.Add(2 * time.Hour),
				Latest:   now.Add(8 * time.Hour),
			},
			DeliveryWindow: model.TimeWindow{
				Earliest: now.Add(6 * time.Hour),
				Latest:   now.Add(24 * time.Hour),
			},
			Status: model.LoadOpen,
		},
		Timestamp: now,
	}
	if err := client.Publish(cfg.MQTT.LoadTopic, ev); err != nil {
		return fmt.Errorf("publish load event: %w", err)
	}
	fmt.Printf("published load %s to %s\n", ev.Load.ID, cfg.MQTT.LoadTopic)
	return nil
}
