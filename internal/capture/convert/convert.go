// Package convert turns raw frames and audio into samples the container
// writer accepts: JPEG video and big-endian 16-bit PCM audio.
//
// Video conversion runs on a single worker goroutine. The throttler
// guarantees at most one video job is outstanding, so the job channel never
// holds more than one frame.
package convert

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/reelcam/internal/capture/media"
	"github.com/zsiec/reelcam/internal/capture/throttle"
	"github.com/zsiec/reelcam/internal/logger"
	"github.com/zsiec/reelcam/internal/metrics"
	"github.com/zsiec/reelcam/internal/overlay"
	"github.com/zsiec/reelcam/internal/render"
)

var ErrNotRunning = errors.New("converter not running")

// Sink receives converted samples. The muxer is the production sink.
type Sink interface {
	WriteVideoFrame(v media.EncodedVideo)
	WriteAudioChunk(a media.EncodedAudio)
}

type Config struct {
	JPEGQuality int
	Composite   bool
}

type Stats struct {
	VideoConverted uint64 `json:"video_converted"`
	VideoFailed    uint64 `json:"video_failed"`
	AudioConverted uint64 `json:"audio_converted"`
	Composited     uint64 `json:"composited"`
}

type job struct {
	frame *media.VideoFrame
	slots [overlay.NumCategories]overlay.Slot
}

type Converter struct {
	cfg        Config
	compositor *render.Compositor
	throttle   *throttle.Throttler
	sink       Sink
	logger     logger.Logger

	jobs    chan job
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	videoConverted atomic.Uint64
	videoFailed    atomic.Uint64
	audioConverted atomic.Uint64
	composited     atomic.Uint64
}

// New builds a converter. A nil compositor disables compositing regardless
// of cfg.Composite.
func New(cfg Config, comp *render.Compositor, thr *throttle.Throttler, sink Sink, log logger.Logger) *Converter {
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = jpeg.DefaultQuality
	}
	return &Converter{
		cfg:        cfg,
		compositor: comp,
		throttle:   thr,
		sink:       sink,
		logger:     logger.WithComponent(log, "convert"),
		jobs:       make(chan job, 1),
	}
}

// Start launches the video worker. It stops when ctx is cancelled or Stop
// is called.
func (c *Converter) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.wg.Add(1)
	go c.worker(ctx)
}

// Stop cancels the worker and waits for it. Queued frames are released.
func (c *Converter) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
}

// SubmitVideo hands a throttler-accepted frame to the worker together with
// the overlay slots captured when it was sampled. The converter owns the
// frame from here on; on error it has already been released and the
// throttler slot freed.
func (c *Converter) SubmitVideo(frame *media.VideoFrame, slots [overlay.NumCategories]overlay.Slot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		c.discard(frame)
		return ErrNotRunning
	}
	select {
	case c.jobs <- job{frame: frame, slots: slots}:
		return nil
	default:
		c.discard(frame)
		return fmt.Errorf("video job already pending")
	}
}

// ConvertAudio converts a chunk inline, releases it and passes the result
// to the sink.
func (c *Converter) ConvertAudio(chunk *media.AudioChunk) {
	started := time.Now()
	out := media.EncodedAudio{
		Payload:     EncodePCM(chunk.Samples),
		SampleCount: len(chunk.Samples),
		SampleRate:  chunk.SampleRate,
		PTS:         chunk.PTS,
	}
	chunk.Release()
	metrics.ObserveConversion("audio", time.Since(started).Seconds())

	c.audioConverted.Add(1)
	c.sink.WriteAudioChunk(out)
}

func (c *Converter) Stats() Stats {
	return Stats{
		VideoConverted: c.videoConverted.Load(),
		VideoFailed:    c.videoFailed.Load(),
		AudioConverted: c.audioConverted.Load(),
		Composited:     c.composited.Load(),
	}
}

func (c *Converter) worker(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			c.drain()
			return
		case j := <-c.jobs:
			c.convert(j)
		}
	}
}

func (c *Converter) drain() {
	for {
		select {
		case j := <-c.jobs:
			c.discard(j.frame)
		default:
			return
		}
	}
}

func (c *Converter) discard(frame *media.VideoFrame) {
	frame.Release()
	c.throttle.Done()
}

func (c *Converter) convert(j job) {
	defer c.throttle.Done()

	started := time.Now()
	if c.cfg.Composite && c.compositor != nil {
		if n := c.compositor.Compose(j.frame, j.slots); n > 0 {
			c.composited.Add(1)
		}
	}

	out, err := EncodeVideo(j.frame, c.cfg.JPEGQuality)
	j.frame.Release()
	metrics.ObserveConversion("video", time.Since(started).Seconds())
	if err != nil {
		c.videoFailed.Add(1)
		c.logger.WithError(err).Warn("Failed to encode video frame")
		return
	}

	c.videoConverted.Add(1)
	c.sink.WriteVideoFrame(out)
}

// EncodeVideo JPEG-encodes a frame cropped to even dimensions. The frame is
// not released.
func EncodeVideo(frame *media.VideoFrame, quality int) (media.EncodedVideo, error) {
	w, h := frame.Width&^1, frame.Height&^1
	if w == 0 || h == 0 {
		return media.EncodedVideo{}, fmt.Errorf("frame too small: %dx%d", frame.Width, frame.Height)
	}

	img := frame.Image().SubImage(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	buf.Grow(w * h / 4)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return media.EncodedVideo{}, fmt.Errorf("jpeg encode: %w", err)
	}

	return media.EncodedVideo{
		Payload: buf.Bytes(),
		Width:   w,
		Height:  h,
		PTS:     frame.PTS,
	}, nil
}

// EncodePCM serialises samples as big-endian signed 16-bit PCM.
func EncodePCM(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.BigEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}
