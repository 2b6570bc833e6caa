package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/haulnet/relay/config"
	"github.com/haulnet/relay/core/hubs"
	"github.com/haulnet/relay/infra/logger"
)

var hubsCmd = &cobra.Command{
	Use:   "hubs",
	Short: "Preview the hub set the facility registry would produce",
	RunE:  previewHubs,
}

func init() {
	rootCmd.AddCommand(hubsCmd)
}

// previewHubs runs one offline selection pass treating every configured
// facility as a qualifying crossover cluster, and prints the result.
func previewHubs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sel := hubs.NewSelector(func() hubs.Config { return cfg.Hubs.Selection }, logger.New("hubs-command"))
	points := make([]hubs.Crossover, 0, len(cfg.Hubs.Facilities))
	for _, f := range cfg.Hubs.Facilities {
		points = append(points, hubs.Crossover{Location: f.Location, Count: cfg.Hubs.Selection.MinCrossovers + 1})
	}
	res := sel.Select(points, cfg.Hubs.Facilities, nil, nil, time.Now())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Active)
}
