package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haulnet/relay/app"
	"github.com/haulnet/relay/config"
	"github.com/haulnet/relay/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Freight network matching and relay optimization engine",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New("main")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store := config.NewStore(cfg)
	if err := store.Watch(cfgPath, log); err != nil {
		log.Warnf("config watch unavailable: %v", err)
	}

	svc, err := app.New(store, logger.New("service"))
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
