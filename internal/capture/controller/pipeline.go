package controller

import (
	"context"
	"fmt"

	"github.com/zsiec/reelcam/internal/capture/media"
	"github.com/zsiec/reelcam/internal/source"
)

// Run starts src and pumps its output until ctx is cancelled or the source
// closes. Tracking always drives the overlay engine; video and audio reach
// the muxer only while recording. The source is stopped on return.
func (c *Controller) Run(ctx context.Context, src source.FrameSource) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	if err := src.Start(ctx); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to start camera source: %w", err)
	}
	c.src = src
	c.running = true
	c.sourceReady = false
	c.mu.Unlock()

	c.opts.Converter.Start(ctx)
	defer func() {
		src.Stop()
		c.opts.Converter.Stop()

		c.mu.Lock()
		c.running = false
		c.sourceReady = false
		c.switching = false
		if c.guard != nil {
			c.guard.Stop()
			c.guard = nil
		}
		c.src = nil
		c.mu.Unlock()
	}()

	c.logger.Info("Capture pipeline running")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Capture pipeline stopping")
			return nil

		case sample, ok := <-src.Tracking():
			if !ok {
				return nil
			}
			c.opts.Engine.Update(sample)

		case frame, ok := <-src.Video():
			if !ok {
				return nil
			}
			c.handleFrame(frame)

		case chunk, ok := <-src.Audio():
			if !ok {
				return nil
			}
			c.handleAudio(chunk)

		case status, ok := <-src.Status():
			if !ok {
				return nil
			}
			c.setTrackingStatus(status)

		case pos, ok := <-src.Ready():
			if !ok {
				return nil
			}
			c.handleReady(pos)
		}
	}
}

// handleFrame takes ownership of frame.
func (c *Controller) handleFrame(frame *media.VideoFrame) {
	if !c.IsRecording() {
		frame.Release()
		return
	}
	if ok, _ := c.opts.Throttle.Offer(); !ok {
		frame.Release()
		return
	}

	// slots are captured now so the composite matches what was on screen
	slots := c.opts.Engine.Slots()
	if err := c.opts.Converter.SubmitVideo(frame, slots); err != nil {
		c.logger.WithError(err).Debug("Sampled frame not converted")
	}
}

func (c *Controller) handleAudio(chunk *media.AudioChunk) {
	if !c.IsRecording() {
		chunk.Release()
		return
	}
	c.opts.Converter.ConvertAudio(chunk)
}
