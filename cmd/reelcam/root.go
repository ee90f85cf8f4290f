package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/zsiec/reelcam/internal/config"
	"github.com/zsiec/reelcam/internal/logger"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "reelcam",
		Short:         "Camera overlay capture and recording daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/default.yaml", "Path to configuration file")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newRecordCommand(&configPath))
	root.AddCommand(newVersionCommand())
	return root
}

// loadConfig loads configuration and builds the root logger.
func loadConfig(path string) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func startMetricsServer(cfg config.MetricsConfig, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.WithField("addr", addr).Info("Starting metrics server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("Metrics server error")
	}
}
