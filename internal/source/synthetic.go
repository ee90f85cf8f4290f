package source

import (
	"context"
	"math"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/zsiec/reelcam/internal/capture/media"
	"github.com/zsiec/reelcam/internal/logger"
	"github.com/zsiec/reelcam/internal/metrics"
	"github.com/zsiec/reelcam/internal/overlay"
)

const (
	toneHz    = 440.0
	toneLevel = 0.2 * math.MaxInt16
)

type SyntheticConfig struct {
	Width             int
	Height            int
	DisplayRate       int
	AudioSampleRate   int
	AudioChunkSamples int
	PoolSize          int
	InitialPosition   overlay.CameraPosition
	SwitchSettle      time.Duration
}

// Synthetic generates a moving test pattern, a sine tone and a face that
// sways in front of the camera. The front camera reports a full mesh, the
// rear camera only a coarse anchor.
type Synthetic struct {
	cfg    SyntheticConfig
	clock  clock.WithTickerAndDelayedExecution
	logger logger.Logger

	frames *media.FramePool
	chunks *media.AudioPool

	video    chan *media.VideoFrame
	audio    chan *media.AudioChunk
	tracking chan overlay.TrackingSample
	status   chan string
	ready    chan overlay.CameraPosition

	mu           sync.Mutex
	started      bool
	stopped      bool
	position     overlay.CameraPosition
	switching    bool
	settle       clock.Timer
	illumination bool
	lastStatus   string

	epoch  time.Time
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSynthetic(cfg SyntheticConfig, clk clock.WithTickerAndDelayedExecution, log logger.Logger) *Synthetic {
	if cfg.DisplayRate < 1 {
		cfg.DisplayRate = 60
	}
	if cfg.AudioSampleRate < 1 {
		cfg.AudioSampleRate = 44100
	}
	if cfg.AudioChunkSamples < 1 {
		cfg.AudioChunkSamples = 1024
	}
	if cfg.PoolSize < 2 {
		cfg.PoolSize = 8
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Synthetic{
		cfg:      cfg,
		clock:    clk,
		logger:   logger.WithComponent(log, "source"),
		frames:   media.NewFramePool(cfg.Width, cfg.Height, cfg.PoolSize),
		chunks:   media.NewAudioPool(cfg.AudioChunkSamples, cfg.AudioSampleRate, cfg.PoolSize),
		video:    make(chan *media.VideoFrame, 2),
		audio:    make(chan *media.AudioChunk, 8),
		tracking: make(chan overlay.TrackingSample, 2),
		status:   make(chan string, 4),
		ready:    make(chan overlay.CameraPosition, 1),
		position: cfg.InitialPosition,
	}
}

func (s *Synthetic) Video() <-chan *media.VideoFrame         { return s.video }
func (s *Synthetic) Audio() <-chan *media.AudioChunk         { return s.audio }
func (s *Synthetic) Tracking() <-chan overlay.TrackingSample { return s.tracking }
func (s *Synthetic) Status() <-chan string                   { return s.status }
func (s *Synthetic) Ready() <-chan overlay.CameraPosition    { return s.ready }

// Start begins generating media. The camera reports ready once the settle
// delay has passed.
func (s *Synthetic) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrNotRunning
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.epoch = s.clock.Now()

	ctx, s.cancel = context.WithCancel(ctx)
	s.beginSettleLocked(overlay.TrackingInitializing)

	s.wg.Add(2)
	go s.runVideo(ctx)
	go s.runAudio(ctx)

	s.logger.WithFields(map[string]interface{}{
		"width":    s.cfg.Width,
		"height":   s.cfg.Height,
		"rate":     s.cfg.DisplayRate,
		"position": s.position.String(),
	}).Info("Synthetic camera started")
	return nil
}

// SwitchSource moves to another camera. Tracking is suspended until the new
// camera settles and Ready fires.
func (s *Synthetic) SwitchSource(to overlay.CameraPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return ErrNotRunning
	}
	if s.switching {
		return ErrSwitchInProgress
	}

	s.position = to
	if to == overlay.Front {
		s.illumination = false
	}
	s.beginSettleLocked(overlay.TrackingRelocalizing)
	s.logger.WithField("position", to.String()).Info("Switching camera")
	return nil
}

func (s *Synthetic) beginSettleLocked(reason overlay.TrackingReason) {
	s.switching = true
	s.setStatusLocked(overlay.TrackingStatus(reason))
	if s.cfg.SwitchSettle <= 0 {
		s.settledLocked()
		return
	}
	s.settle = s.clock.AfterFunc(s.cfg.SwitchSettle, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.stopped {
			s.settledLocked()
		}
	})
}

func (s *Synthetic) settledLocked() {
	s.switching = false
	if s.position == overlay.Front {
		s.setStatusLocked(overlay.TrackingStatus(overlay.TrackingNormal))
	} else {
		s.setStatusLocked(overlay.TrackingStatus(overlay.TrackingInsufficientFeatures))
	}

	// only the latest position matters
	select {
	case <-s.ready:
	default:
	}
	s.ready <- s.position
}

func (s *Synthetic) setStatusLocked(status string) {
	if status == s.lastStatus {
		return
	}
	s.lastStatus = status
	select {
	case s.status <- status:
	default:
	}
}

// ToggleIllumination switches the torch. It is only available on the rear
// camera and reports the resulting state.
func (s *Synthetic) ToggleIllumination() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position != overlay.Rear {
		s.illumination = false
		return false
	}
	s.illumination = !s.illumination
	return s.illumination
}

// Stop halts generation, waits for the generators and closes all channels.
// Anything still buffered is discarded, so receivers observe the close at
// once. Buffered frames and chunks are released.
func (s *Synthetic) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	settle, cancel := s.settle, s.cancel
	s.mu.Unlock()

	if settle != nil {
		settle.Stop()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	close(s.video)
	close(s.audio)
	close(s.tracking)
	close(s.status)
	close(s.ready)
	for f := range s.video {
		f.Release()
	}
	for c := range s.audio {
		c.Release()
	}
	for range s.tracking {
	}
	for range s.status {
	}
	for range s.ready {
	}
	s.logger.Info("Synthetic camera stopped")
}

// snapshot returns the state a generator needs for one tick.
func (s *Synthetic) snapshot() (overlay.CameraPosition, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position, s.switching, s.illumination
}

func (s *Synthetic) runVideo(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(time.Second / time.Duration(s.cfg.DisplayRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			s.emitFrame(now.Sub(s.epoch))
		}
	}
}

func (s *Synthetic) emitFrame(pts time.Duration) {
	position, switching, torch := s.snapshot()

	frame := s.frames.Get(pts)
	paint(frame, position, torch)
	select {
	case s.video <- frame:
	default:
		frame.Release()
		metrics.IncFrameDropped(metrics.StageSource, "consumer_lag")
	}

	var sample overlay.TrackingSample
	switch {
	case switching:
		sample = overlay.NoTracking{Source: position}
	case position == overlay.Front:
		sample = overlay.MeshPoints{Source: position, Anchor: faceCenter(pts), Points: faceMesh(pts)}
	default:
		sample = overlay.CoarseAnchor{Source: position, Origin: faceCenter(pts)}
	}
	select {
	case s.tracking <- sample:
	default:
	}
}

func (s *Synthetic) runAudio(ctx context.Context) {
	defer s.wg.Done()

	rate := s.cfg.AudioSampleRate
	n := s.cfg.AudioChunkSamples
	ticker := s.clock.NewTicker(time.Duration(n) * time.Second / time.Duration(rate))
	defer ticker.Stop()

	// timestamps follow the sample count so chunks stay contiguous
	var emitted int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			pts := time.Duration(emitted) * time.Second / time.Duration(rate)
			chunk := s.chunks.Get(pts)
			fillTone(chunk.Samples, emitted, rate)
			emitted += int64(n)

			select {
			case s.audio <- chunk:
			default:
				chunk.Release()
			}
		}
	}
}

// paint draws vertical colour bars scrolling with time. The rear camera uses
// a cooler palette; the torch brightens everything.
func paint(f *media.VideoFrame, position overlay.CameraPosition, torch bool) {
	bars := [...][3]byte{
		{0xC0, 0xC0, 0xC0}, {0xC0, 0xC0, 0x00}, {0x00, 0xC0, 0xC0}, {0x00, 0xC0, 0x00},
		{0xC0, 0x00, 0xC0}, {0xC0, 0x00, 0x00}, {0x00, 0x00, 0xC0},
	}
	shift := int(f.PTS / (20 * time.Millisecond))
	barWidth := f.Width/len(bars) + 1

	row := f.Pix[:f.Width*4]
	for x := 0; x < f.Width; x++ {
		c := bars[((x+shift)/barWidth)%len(bars)]
		if position == overlay.Rear {
			c[0] /= 2
		}
		if torch {
			c[0] |= 0x3F
			c[1] |= 0x3F
			c[2] |= 0x3F
		}
		row[x*4] = c[0]
		row[x*4+1] = c[1]
		row[x*4+2] = c[2]
		row[x*4+3] = 0xFF
	}
	for y := 1; y < f.Height; y++ {
		copy(f.Pix[y*f.Stride:], row)
	}
}

func fillTone(dst []int16, offset int64, rate int) {
	for i := range dst {
		t := float64(offset+int64(i)) / float64(rate)
		dst[i] = int16(toneLevel * math.Sin(2*math.Pi*toneHz*t))
	}
}

// faceCenter sways slowly left and right about half a metre from the lens.
func faceCenter(pts time.Duration) overlay.Vec3 {
	t := pts.Seconds()
	return overlay.Vec3{X: 0.03 * math.Sin(t), Y: 0.01 * math.Sin(2*t), Z: 0.45}
}

// Landmarks relative to the face centre, laid out to match the mesh indices
// the placement engine averages.
var meshLayout = [overlay.MeshPointCount]overlay.Vec3{
	{X: -0.045, Y: 0.035, Z: 0.010}, {X: -0.015, Y: 0.035, Z: 0.005}, {X: 0.015, Y: 0.035, Z: 0.005}, {X: 0.045, Y: 0.035, Z: 0.010}, // eyes
	{X: 0, Y: 0.010, Z: -0.020}, {X: -0.012, Y: -0.005, Z: -0.010}, {X: 0.012, Y: -0.005, Z: -0.010}, // nose
	{X: -0.060, Y: 0, Z: 0.020}, {X: 0.060, Y: 0, Z: 0.020}, {X: 0, Y: -0.030, Z: -0.005}, // cheeks, mouth
	{X: -0.050, Y: -0.050, Z: 0.015}, {X: -0.025, Y: -0.070, Z: 0.005}, {X: 0, Y: -0.080, Z: 0}, {X: 0.025, Y: -0.070, Z: 0.005}, {X: 0.050, Y: -0.050, Z: 0.015}, // jaw
	{X: 0, Y: 0.080, Z: 0.010}, // forehead
}

func faceMesh(pts time.Duration) []overlay.Vec3 {
	c := faceCenter(pts)
	points := make([]overlay.Vec3, len(meshLayout))
	for i, p := range meshLayout {
		points[i] = c.Add(p)
	}
	return points
}
