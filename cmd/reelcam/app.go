package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"k8s.io/utils/clock"

	"github.com/zsiec/reelcam/internal/capture/container"
	"github.com/zsiec/reelcam/internal/capture/controller"
	"github.com/zsiec/reelcam/internal/capture/convert"
	"github.com/zsiec/reelcam/internal/capture/muxer"
	"github.com/zsiec/reelcam/internal/capture/throttle"
	"github.com/zsiec/reelcam/internal/config"
	"github.com/zsiec/reelcam/internal/handoff"
	"github.com/zsiec/reelcam/internal/health"
	"github.com/zsiec/reelcam/internal/logger"
	"github.com/zsiec/reelcam/internal/overlay"
	"github.com/zsiec/reelcam/internal/render"
	"github.com/zsiec/reelcam/internal/source"
)

// minFreeBytes is the free space below which the output dir reports
// degraded.
const minFreeBytes = 256 << 20

// app is the assembled capture pipeline.
type app struct {
	log    logger.Logger
	ctrl   *controller.Controller
	source *source.Synthetic
	muxer  *muxer.Muxer
	health *health.Manager
	redis  *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	clk := clock.RealClock{}

	position, err := overlay.ParseCameraPosition(cfg.Camera.InitialPosition)
	if err != nil {
		return nil, err
	}

	a := &app{log: log}

	var pub handoff.Publisher = handoff.NopPublisher{}
	if cfg.Handoff.Enabled {
		a.redis, err = handoff.NewClient(ctx, &cfg.Handoff)
		if err != nil {
			return nil, fmt.Errorf("failed to connect handoff store: %w", err)
		}
		log.WithField("addr", cfg.Handoff.RedisAddr).Info("Connected to handoff store")
		pub = handoff.NewRedisPublisher(a.redis, cfg.Handoff.KeyPrefix, cfg.Handoff.TTL, log)
	}

	engine := overlay.NewEngine(overlay.Config{
		SwitchDebounce: cfg.Overlay.SwitchDebounce,
		FallbackScale:  cfg.Overlay.FallbackScale,
		Position:       position,
	}, clk, log)

	comp := render.NewCompositor(render.Config{
		FocalLength: cfg.Overlay.FocalLength,
		Watermark:   cfg.Overlay.Watermark,
	}, engine.Catalog())

	factory := muxer.NewContainerWriterFactory(container.Options{
		FragmentDuration:    cfg.Recorder.FragmentDuration,
		MaxPendingFragments: cfg.Recorder.MaxPendingFragments,
	}, log)

	a.muxer = muxer.New(muxer.Config{
		OutputDir:       cfg.Recorder.OutputDir,
		FilePrefix:      cfg.Recorder.FilePrefix,
		VideoTimescale:  cfg.Recorder.VideoTimescale,
		AudioSampleRate: cfg.Recorder.AudioSampleRate,
		QueueSize:       cfg.Recorder.QueueSize,
	}, factory, clk, log)

	thr := throttle.New(cfg.Recorder.SampleEvery, log)
	conv := convert.New(convert.Config{
		JPEGQuality: cfg.Recorder.JPEGQuality,
		Composite:   cfg.Overlay.Composite,
	}, comp, thr, a.muxer, log)

	a.source = source.NewSynthetic(source.SyntheticConfig{
		Width:             cfg.Camera.Width,
		Height:            cfg.Camera.Height,
		DisplayRate:       cfg.Camera.DisplayRate,
		AudioSampleRate:   cfg.Recorder.AudioSampleRate,
		AudioChunkSamples: cfg.Camera.AudioChunkSamples,
		PoolSize:          cfg.Camera.PoolSize,
		InitialPosition:   position,
		SwitchSettle:      cfg.Camera.SwitchSettle,
	}, clk, log)

	a.ctrl = controller.New(controller.Options{
		SwitchGuard: cfg.Camera.SwitchGuard,
		Engine:      engine,
		Throttle:    thr,
		Converter:   conv,
		Recorder:    a.muxer,
		Handoff:     pub,
		Clock:       clk,
		Logger:      log,
	})

	a.health = health.NewManager(log, clk)
	a.health.Register(health.NewOutputDirChecker(cfg.Recorder.OutputDir, minFreeBytes))
	a.health.Register(health.NewCameraChecker(a.ctrl))
	if a.redis != nil {
		a.health.Register(health.NewRedisChecker(a.redis))
	}

	return a, nil
}

// run pumps the pipeline until ctx is cancelled. The returned channel
// yields Run's error once it exits.
func (a *app) run(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- a.ctrl.Run(ctx, a.source)
	}()
	return done
}

// finishRecording stops an active recording and waits for finalize until
// ctx expires.
func (a *app) finishRecording(ctx context.Context) (muxer.StopResult, bool) {
	if !a.ctrl.IsRecording() {
		return muxer.StopResult{}, false
	}
	select {
	case res := <-a.ctrl.StopRecording():
		return res, true
	case <-ctx.Done():
		return muxer.StopResult{Err: ctx.Err()}, true
	}
}

func (a *app) close() {
	a.muxer.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Error("Failed to close handoff store connection")
		}
	}
}
