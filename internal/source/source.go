// Package source provides camera frame sources for the capture pipeline.
package source

import (
	"context"
	"errors"

	"github.com/zsiec/reelcam/internal/capture/media"
	"github.com/zsiec/reelcam/internal/overlay"
)

var (
	ErrNotRunning       = errors.New("source not running")
	ErrAlreadyStarted   = errors.New("source already started")
	ErrSwitchInProgress = errors.New("camera switch in progress")
)

// FrameSource delivers raw media and tracking for one camera at a time.
//
// Frames and chunks received from Video and Audio belong to the receiver,
// which must release them. Sends never block: when a consumer lags the
// source drops and releases the item itself. All channels are closed by
// Stop.
type FrameSource interface {
	Start(ctx context.Context) error
	Video() <-chan *media.VideoFrame
	Audio() <-chan *media.AudioChunk
	Tracking() <-chan overlay.TrackingSample
	Status() <-chan string
	// Ready yields the active position each time the camera settles after
	// Start or SwitchSource.
	Ready() <-chan overlay.CameraPosition
	SwitchSource(to overlay.CameraPosition) error
	ToggleIllumination() bool
	Stop()
}
