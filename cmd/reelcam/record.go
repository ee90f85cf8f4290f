package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newRecordCommand(configPath *string) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the camera for a fixed duration and print the file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration <= 0 {
				return errors.New("--duration must be positive")
			}
			path, err := runRecord(*configPath, duration)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 5*time.Second, "How long to record")
	return cmd
}

// runRecord records until duration elapses or an interrupt arrives,
// whichever is first.
func runRecord(configPath string, duration time.Duration) (string, error) {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return "", err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return "", err
	}
	defer a.close()

	pipeCtx, stopPipeline := context.WithCancel(context.Background())
	defer stopPipeline()
	pipeDone := a.run(pipeCtx)

	if err := a.ctrl.StartRecording(); err != nil {
		return "", err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		log.Info("Recording interrupted")
	case err := <-pipeDone:
		return "", fmt.Errorf("capture pipeline exited early: %w", err)
	}

	finishCtx, cancelFinish := context.WithTimeout(context.Background(), cfg.Server.StopTimeout)
	defer cancelFinish()
	res, _ := a.finishRecording(finishCtx)

	stopPipeline()
	<-pipeDone

	if res.Err != nil {
		return "", fmt.Errorf("recording failed: %w", res.Err)
	}
	return res.Path, nil
}
