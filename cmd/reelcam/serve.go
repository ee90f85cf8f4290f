package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zsiec/reelcam/internal/server"
	"github.com/zsiec/reelcam/pkg/version"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the capture pipeline and the control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log.WithField("version", version.GetInfo().Short()).Info("Starting reelcam")
	log.WithField("config_path", configPath).Debug("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.Metrics.Enabled {
		go startMetricsServer(cfg.Metrics, log)
	}

	// the pipeline outlives the API so an active recording can finalize
	pipeCtx, stopPipeline := context.WithCancel(context.Background())
	defer stopPipeline()
	pipeDone := a.run(pipeCtx)

	srv := server.New(&cfg.Server, a.ctrl, a.health, log)
	serveErr := srv.Start(ctx)

	finishCtx, cancelFinish := context.WithTimeout(context.Background(), cfg.Server.StopTimeout)
	defer cancelFinish()
	if res, stopped := a.finishRecording(finishCtx); stopped {
		if res.Err != nil {
			log.WithError(res.Err).Warn("Active recording did not finalize cleanly")
		} else {
			log.WithField("path", res.Path).Info("Active recording finalized")
		}
	}

	stopPipeline()
	if err := <-pipeDone; err != nil {
		log.WithError(err).Error("Capture pipeline error")
	}

	log.Info("Server shutdown complete")
	return serveErr
}
