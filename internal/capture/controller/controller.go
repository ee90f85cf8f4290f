// Package controller implements the recording state machine and wires a
// frame source through the overlay engine, throttler and converter into
// the muxer.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/zsiec/reelcam/internal/capture/convert"
	"github.com/zsiec/reelcam/internal/capture/muxer"
	"github.com/zsiec/reelcam/internal/capture/throttle"
	"github.com/zsiec/reelcam/internal/handoff"
	"github.com/zsiec/reelcam/internal/logger"
	"github.com/zsiec/reelcam/internal/metrics"
	"github.com/zsiec/reelcam/internal/overlay"
	"github.com/zsiec/reelcam/internal/source"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrFinalizing       = errors.New("previous recording is still finalizing")
	ErrNotRecording     = errors.New("not recording")
	ErrSwitchPending    = errors.New("camera switch already pending")
	ErrSourceNotRunning = errors.New("camera source not running")
	ErrAlreadyRunning   = errors.New("pipeline already running")
)

const handoffTimeout = 5 * time.Second

// Recorder is the muxer surface the controller drives.
type Recorder interface {
	StartRecording()
	StopRecording() <-chan muxer.StopResult
	Stats() muxer.Stats
}

type Options struct {
	// SwitchGuard bounds how long a camera switch blocks further switches
	// when the source never reports ready.
	SwitchGuard time.Duration

	Engine    *overlay.Engine
	Throttle  *throttle.Throttler
	Converter *convert.Converter
	Recorder  Recorder
	Handoff   handoff.Publisher
	Clock     clock.WithDelayedExecution
	Logger    logger.Logger
}

// Status is a point-in-time view of the controller for the API.
type Status struct {
	State          State          `json:"state"`
	Recording      bool           `json:"recording"`
	Ready          bool           `json:"ready"`
	Switching      bool           `json:"switching"`
	CameraPosition string         `json:"camera_position"`
	Illumination   bool           `json:"illumination"`
	TrackingStatus string         `json:"tracking_status"`
	AppliedOverlay string         `json:"applied_overlay,omitempty"`
	OverlayMode    overlay.Mode   `json:"overlay_mode"`
	Muxer          muxer.Stats    `json:"muxer"`
	Throttle       throttle.Stats `json:"throttle"`
	Converter      convert.Stats  `json:"converter"`
}

type Controller struct {
	opts   Options
	clock  clock.WithDelayedExecution
	logger logger.Logger

	mu           sync.Mutex
	state        State
	src          source.FrameSource
	running      bool
	sourceReady  bool
	switching    bool
	switchGen    uint64
	guard        clock.Timer
	position     overlay.CameraPosition
	illumination bool
	tracking     string

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Handoff == nil {
		opts.Handoff = handoff.NopPublisher{}
	}
	if opts.SwitchGuard <= 0 {
		opts.SwitchGuard = 2 * time.Second
	}

	c := &Controller{
		opts:     opts,
		clock:    opts.Clock,
		logger:   logger.WithComponent(opts.Logger, "controller"),
		state:    Idle,
		position: opts.Engine.Active(),
		tracking: overlay.TrackingStatus(overlay.TrackingInitializing),
		subs:     make(map[int]chan Event),
	}
	metrics.SetRecordingState(Idle.String(), stateNames)
	return c
}

// setStateLocked must be called with c.mu held.
func (c *Controller) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	metrics.SetRecordingState(to.String(), stateNames)
	c.logger.WithFields(map[string]interface{}{
		"from": from.String(),
		"to":   to.String(),
	}).Info("Recording state changed")
	c.emit(StateChanged{From: from, To: to})
}

// StartRecording opens a new recording. It fails while a recording is
// active or the previous one is still finalizing.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Recording, RecordingLocked:
		return ErrAlreadyRecording
	case Finalizing:
		return ErrFinalizing
	}

	c.opts.Throttle.Reset()
	c.opts.Recorder.StartRecording()
	c.setStateLocked(Recording)
	return nil
}

// StopRecording finalizes the active recording. The returned channel yields
// one result and is then closed. The state returns to Idle as soon as the
// writer completes; a successful recording is handed off before the result
// is delivered.
func (c *Controller) StopRecording() <-chan muxer.StopResult {
	out := make(chan muxer.StopResult, 1)

	c.mu.Lock()
	if !c.state.IsRecording() {
		c.mu.Unlock()
		out <- muxer.StopResult{Err: ErrNotRecording}
		close(out)
		return out
	}
	c.setStateLocked(Finalizing)
	pending := c.opts.Recorder.StopRecording()
	c.mu.Unlock()

	go func() {
		defer close(out)
		res := <-pending

		c.mu.Lock()
		c.setStateLocked(Idle)
		c.mu.Unlock()

		if res.Err == nil {
			c.handoff(res)
		}

		c.emit(RecordingFinished{Path: res.Path, Err: res.Err, Result: res})
		out <- res
	}()
	return out
}

func (c *Controller) handoff(res muxer.StopResult) {
	ctx, cancel := context.WithTimeout(context.Background(), handoffTimeout)
	defer cancel()

	rec := &handoff.Recording{
		ID:        res.SessionID,
		Path:      res.Path,
		Size:      res.Size,
		Duration:  res.Duration,
		Frames:    res.Frames,
		CreatedAt: c.clock.Now().UTC(),
	}
	if err := c.opts.Handoff.Publish(ctx, rec); err != nil {
		c.logger.WithError(err).WithField("path", res.Path).Error("Failed to hand off recording")
	}
}

// LockRecording keeps the recording running after the record gesture ends.
func (c *Controller) LockRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsRecording() {
		return ErrNotRecording
	}
	c.setStateLocked(RecordingLocked)
	return nil
}

func (c *Controller) UnlockRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsRecording() {
		return ErrNotRecording
	}
	c.setStateLocked(Recording)
	return nil
}

// ToggleCameraSource switches between the front and rear cameras. Further
// switches are rejected until the source reports ready or the guard
// expires.
func (c *Controller) ToggleCameraSource() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrSourceNotRunning
	}
	if c.switching {
		metrics.IncCameraSwitch("rejected")
		return ErrSwitchPending
	}

	to := c.position.Other()
	err := c.src.SwitchSource(to)
	if errors.Is(err, source.ErrSwitchInProgress) {
		// still settling from start or an earlier switch
		metrics.IncCameraSwitch("rejected")
		return ErrSwitchPending
	}
	if err != nil {
		metrics.IncCameraSwitch("failed")
		return fmt.Errorf("failed to switch camera: %w", err)
	}

	c.switching = true
	c.switchGen++
	c.position = to
	c.illumination = false
	c.opts.Engine.BeginSourceSwitch(to)

	gen := c.switchGen
	c.guard = c.clock.AfterFunc(c.opts.SwitchGuard, func() { c.guardExpired(gen) })

	c.logger.WithField("position", to.String()).Info("Camera switch requested")
	return nil
}

func (c *Controller) guardExpired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.switching || c.switchGen != gen {
		return
	}
	c.switching = false
	c.guard = nil
	metrics.IncCameraSwitch("timeout")
	c.logger.WithField("position", c.position.String()).Warn("Camera did not report ready, releasing switch guard")
	c.emit(CameraSwitched{Position: c.position, TimedOut: true})
}

func (c *Controller) handleReady(pos overlay.CameraPosition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sourceReady = true
	c.position = pos
	if !c.switching {
		return
	}

	c.switching = false
	if c.guard != nil {
		c.guard.Stop()
		c.guard = nil
	}
	metrics.IncCameraSwitch("completed")
	c.logger.WithField("position", pos.String()).Info("Camera switch completed")
	c.emit(CameraSwitched{Position: pos})
}

// ToggleIllumination switches the torch and reports its new state.
func (c *Controller) ToggleIllumination() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return false, ErrSourceNotRunning
	}
	on := c.src.ToggleIllumination()
	if on != c.illumination {
		c.illumination = on
		c.emit(IlluminationChanged{On: on})
	}
	return on, nil
}

// SelectOverlay toggles an overlay element; see overlay.Engine.Select.
func (c *Controller) SelectOverlay(id string) error {
	return c.opts.Engine.Select(id)
}

func (c *Controller) setTrackingStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if status == c.tracking {
		return
	}
	c.tracking = status
	c.emit(TrackingStatusChanged{Status: status})
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) IsRecording() bool {
	return c.State().IsRecording()
}

// IsReady reports whether the source is running, has settled and no switch
// is pending.
func (c *Controller) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.sourceReady && !c.switching
}

func (c *Controller) CameraPosition() overlay.CameraPosition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *Controller) TrackingStatus() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracking
}

// Engine exposes the overlay engine for catalog and slot queries.
func (c *Controller) Engine() *overlay.Engine {
	return c.opts.Engine
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		State:          c.state,
		Recording:      c.state.IsRecording(),
		Ready:          c.running && c.sourceReady && !c.switching,
		Switching:      c.switching,
		CameraPosition: c.position.String(),
		Illumination:   c.illumination,
		TrackingStatus: c.tracking,
	}
	c.mu.Unlock()

	st.AppliedOverlay = c.opts.Engine.Applied()
	st.OverlayMode = c.opts.Engine.Mode()
	st.Muxer = c.opts.Recorder.Stats()
	st.Throttle = c.opts.Throttle.Stats()
	if c.opts.Converter != nil {
		st.Converter = c.opts.Converter.Stats()
	}
	return st
}
