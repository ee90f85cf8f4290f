// Package muxer owns the single active recording session and serialises
// every container writer mutation onto one queue.
//
// Frame and audio writes are fire-and-forget: they are enqueued without
// blocking and dropped when they cannot be written. StopRecording returns a
// channel that yields the outcome once the container is finalized.
package muxer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/zsiec/reelcam/internal/capture/container"
	"github.com/zsiec/reelcam/internal/capture/media"
	"github.com/zsiec/reelcam/internal/logger"
	"github.com/zsiec/reelcam/internal/metrics"
)

var (
	ErrNoSession        = errors.New("no recording session")
	ErrNoActiveWriter   = errors.New("recording has no active writer")
	ErrWriterNotWriting = errors.New("writer is not in writing state")
	ErrFinalizeFailed   = errors.New("container finalize failed")
	ErrEmptyOutput      = errors.New("recording produced no usable output")
	ErrClosed           = errors.New("muxer closed")
)

// Drop reasons for video frames and audio chunks.
const (
	DropNoSession     = "no_session"
	DropSetupFailed   = "setup_failed"
	DropNoTimeBase    = "no_time_base"
	DropBeforeSession = "before_session"
	DropNotReady      = "not_ready"
	DropOutOfOrder    = "out_of_order"
	DropQueueFull     = "queue_full"
)

type Config struct {
	OutputDir       string
	FilePrefix      string
	VideoTimescale  uint32
	AudioSampleRate int
	QueueSize       int
}

// StopResult is the outcome of StopRecording. Err is nil only when Path
// names a non-empty file.
type StopResult struct {
	SessionID string
	Path      string
	Size      int64
	Duration  time.Duration
	Frames    uint64
	Err       error
}

// Stats are cumulative across sessions except for the session fields.
type Stats struct {
	Recording     bool              `json:"recording"`
	SessionID     string            `json:"session_id,omitempty"`
	OutputPath    string            `json:"output_path,omitempty"`
	SessionFrames uint64            `json:"session_frames"`
	VideoAppended uint64            `json:"video_appended"`
	VideoDropped  map[string]uint64 `json:"video_dropped"`
	AudioAppended uint64            `json:"audio_appended"`
	AudioDropped  map[string]uint64 `json:"audio_dropped"`
	SetupFailures uint64            `json:"setup_failures"`
	QueueLength   int               `json:"queue_length"`
}

// session is the one active recording. It is only touched from the queue
// goroutine.
type session struct {
	id       string
	path     string
	writer   ContainerWriter
	start    *time.Duration
	frames   uint64
	setupErr error
}

type Muxer struct {
	cfg     Config
	factory WriterFactory
	clock   clock.PassiveClock
	logger  logger.Logger
	sampled *logger.SampledLogger

	queueMu sync.RWMutex
	queue   chan func()
	closed  bool
	done    chan struct{}

	session *session

	statsMu       sync.Mutex
	current       Stats
	videoAppended atomic.Uint64
	audioAppended atomic.Uint64
	setupFailures atomic.Uint64
	videoDropped  sync.Map // reason -> *atomic.Uint64
	audioDropped  sync.Map
}

// New starts the muxer's queue goroutine. A nil factory uses fragmented MP4
// writers with default options; a nil clock uses the wall clock.
func New(cfg Config, factory WriterFactory, clk clock.PassiveClock, log logger.Logger) *Muxer {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.VideoTimescale == 0 {
		cfg.VideoTimescale = 90000
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	log = logger.WithComponent(log, "muxer")
	if factory == nil {
		factory = NewContainerWriterFactory(container.Options{}, log)
	}

	m := &Muxer{
		cfg:     cfg,
		factory: factory,
		clock:   clk,
		logger:  log,
		sampled: logger.NewSampledLogger(log).WithSampler(logger.CategoryFrameProcessing, 250*time.Millisecond, 5),
		queue:   make(chan func(), cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Muxer) run() {
	defer close(m.done)
	for fn := range m.queue {
		fn()
	}
	m.shutdown()
}

// enqueue waits for queue space. It reports false after Close.
func (m *Muxer) enqueue(fn func()) bool {
	m.queueMu.RLock()
	defer m.queueMu.RUnlock()

	if m.closed {
		return false
	}
	m.queue <- fn
	return true
}

// tryEnqueue never blocks.
func (m *Muxer) tryEnqueue(fn func()) bool {
	m.queueMu.RLock()
	defer m.queueMu.RUnlock()

	if m.closed {
		return false
	}
	select {
	case m.queue <- fn:
		return true
	default:
		return false
	}
}

// StartRecording opens a new session unless one is already active. The
// container writer is created lazily by the first video frame.
func (m *Muxer) StartRecording() {
	m.enqueue(m.start)
}

func (m *Muxer) start() {
	if m.session != nil {
		m.logger.WithField("session_id", m.session.id).Debug("Recording already active, start ignored")
		return
	}

	id := uuid.New().String()
	name := fmt.Sprintf("%s-%s-%s.mp4", m.cfg.FilePrefix, m.clock.Now().UTC().Format("20060102T150405.000Z"), id[:8])
	m.session = &session{
		id:   id,
		path: filepath.Join(m.cfg.OutputDir, name),
	}

	m.statsMu.Lock()
	m.current.Recording = true
	m.current.SessionID = id
	m.current.OutputPath = m.session.path
	m.current.SessionFrames = 0
	m.statsMu.Unlock()

	m.logger.WithFields(map[string]interface{}{
		"session_id": id,
		"path":       m.session.path,
	}).Info("Recording session started")
}

// WriteVideoFrame appends an encoded frame to the active session. The
// first frame sizes the writer and fixes the session start time.
func (m *Muxer) WriteVideoFrame(v media.EncodedVideo) {
	if !m.tryEnqueue(func() { m.writeVideo(v) }) {
		m.dropVideo(DropQueueFull, v.PTS)
	}
}

func (m *Muxer) writeVideo(v media.EncodedVideo) {
	s := m.session
	if s == nil {
		m.dropVideo(DropNoSession, v.PTS)
		return
	}
	if s.setupErr != nil {
		m.dropVideo(DropSetupFailed, v.PTS)
		return
	}

	if s.writer == nil {
		if err := m.openWriter(s, v.Width, v.Height); err != nil {
			s.setupErr = err
			m.setupFailures.Add(1)
			m.logger.WithError(err).WithField("session_id", s.id).Error("Failed to open container writer")
			m.dropVideo(DropSetupFailed, v.PTS)
			return
		}
	}

	if s.start == nil {
		start := v.PTS
		s.start = &start
		s.writer.StartSession(start)
	}

	in := s.writer.VideoInput()
	if !in.ReadyForMoreMediaData() {
		m.dropVideo(DropNotReady, v.PTS)
		return
	}

	if !in.Append(container.Sample{PTS: v.PTS, Payload: v.Payload}) {
		reason := DropOutOfOrder
		if v.PTS < *s.start {
			reason = DropBeforeSession
		}
		m.dropVideo(reason, v.PTS)
		return
	}

	s.frames++
	m.videoAppended.Add(1)
	metrics.IncFramesAppended()

	m.statsMu.Lock()
	m.current.SessionFrames = s.frames
	m.statsMu.Unlock()
}

// openWriter creates and starts a writer sized to the frame, rounded down
// to even dimensions.
func (m *Muxer) openWriter(s *session, width, height int) error {
	if err := os.MkdirAll(m.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	w, err := m.factory(s.path,
		container.VideoSettings{Width: width &^ 1, Height: height &^ 1, Timescale: m.cfg.VideoTimescale},
		container.AudioSettings{SampleRate: m.cfg.AudioSampleRate, Channels: 1, BitDepth: 16},
	)
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}
	if err := w.StartWriting(); err != nil {
		return fmt.Errorf("failed to start writer: %w", err)
	}

	s.writer = w
	m.logger.WithFields(map[string]interface{}{
		"session_id": s.id,
		"width":      width &^ 1,
		"height":     height &^ 1,
	}).Debug("Container writer opened")
	return nil
}

// WriteAudioChunk appends audio once a video frame has established the
// session time base. Earlier chunks are dropped.
func (m *Muxer) WriteAudioChunk(a media.EncodedAudio) {
	if !m.tryEnqueue(func() { m.writeAudio(a) }) {
		m.dropAudio(DropQueueFull)
	}
}

func (m *Muxer) writeAudio(a media.EncodedAudio) {
	s := m.session
	switch {
	case s == nil:
		m.dropAudio(DropNoSession)
		return
	case s.writer == nil || s.start == nil || s.writer.Status() != container.StatusWriting:
		m.dropAudio(DropNoTimeBase)
		return
	case a.PTS < *s.start:
		m.dropAudio(DropBeforeSession)
		return
	}

	in := s.writer.AudioInput()
	if !in.ReadyForMoreMediaData() {
		m.dropAudio(DropNotReady)
		return
	}
	if !in.Append(container.Sample{PTS: a.PTS, Payload: a.Payload, Duration: a.Duration()}) {
		m.dropAudio(DropOutOfOrder)
		return
	}

	m.audioAppended.Add(1)
	metrics.IncAudioChunk("appended")
}

// StopRecording finalizes the active session. The returned channel yields
// exactly one result, after the container is closed.
func (m *Muxer) StopRecording() <-chan StopResult {
	res := make(chan StopResult, 1)
	if !m.enqueue(func() { res <- m.stop() }) {
		res <- StopResult{Err: ErrClosed}
	}
	return res
}

func (m *Muxer) stop() StopResult {
	s := m.session
	if s == nil {
		return StopResult{Err: ErrNoSession}
	}

	m.session = nil
	m.statsMu.Lock()
	m.current.Recording = false
	m.current.SessionID = ""
	m.current.OutputPath = ""
	m.statsMu.Unlock()

	res := m.finalize(s)

	outcome := "success"
	switch {
	case errors.Is(res.Err, ErrNoActiveWriter):
		outcome = "no_writer"
	case errors.Is(res.Err, ErrWriterNotWriting):
		outcome = "not_writing"
	case errors.Is(res.Err, ErrFinalizeFailed):
		outcome = "finalize_failed"
	case errors.Is(res.Err, ErrEmptyOutput):
		outcome = "empty_output"
	}
	metrics.IncRecording(outcome)

	entry := m.logger.WithFields(map[string]interface{}{
		"session_id": s.id,
		"path":       s.path,
		"frames":     s.frames,
		"result":     outcome,
	})
	if res.Err != nil {
		entry.WithError(res.Err).Warn("Recording session ended without output")
	} else {
		entry.WithField("size", res.Size).Info("Recording session finalized")
	}
	return res
}

func (m *Muxer) finalize(s *session) StopResult {
	res := StopResult{SessionID: s.id, Frames: s.frames}

	if s.writer == nil {
		res.Err = ErrNoActiveWriter
		if s.setupErr != nil {
			res.Err = fmt.Errorf("%w: %v", ErrNoActiveWriter, s.setupErr)
		}
		return res
	}
	if st := s.writer.Status(); st != container.StatusWriting {
		res.Err = fmt.Errorf("%w: %s", ErrWriterNotWriting, st)
		return res
	}

	s.writer.VideoInput().MarkAsFinished()
	s.writer.AudioInput().MarkAsFinished()

	started := m.clock.Now()
	finished := make(chan struct{})
	s.writer.FinishWriting(func() { close(finished) })
	<-finished
	metrics.ObserveFinalize(m.clock.Since(started).Seconds())

	if s.writer.Status() != container.StatusCompleted {
		res.Err = fmt.Errorf("%w: %v", ErrFinalizeFailed, s.writer.Err())
		return res
	}

	info, err := os.Stat(s.path)
	if err != nil || info.Size() == 0 {
		res.Err = ErrEmptyOutput
		return res
	}

	res.Path = s.path
	res.Size = info.Size()
	res.Duration = s.writer.Stats().Duration
	return res
}

// Stats returns a snapshot of the muxer counters.
func (m *Muxer) Stats() Stats {
	m.statsMu.Lock()
	st := m.current
	m.statsMu.Unlock()

	st.VideoAppended = m.videoAppended.Load()
	st.AudioAppended = m.audioAppended.Load()
	st.SetupFailures = m.setupFailures.Load()
	st.VideoDropped = snapshot(&m.videoDropped)
	st.AudioDropped = snapshot(&m.audioDropped)
	st.QueueLength = len(m.queue)
	return st
}

// Close drains the queue and stops the muxer. An active session is
// finalized first.
func (m *Muxer) Close() {
	m.queueMu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.queueMu.Unlock()
	<-m.done
}

func (m *Muxer) shutdown() {
	if m.session == nil {
		return
	}
	res := m.stop()
	if res.Err == nil {
		m.logger.WithField("path", res.Path).Info("Active recording finalized on close")
	}
}

func (m *Muxer) dropVideo(reason string, pts time.Duration) {
	counter(&m.videoDropped, reason).Add(1)
	metrics.IncFrameDropped(metrics.StageMuxer, reason)
	m.sampled.DebugWithCategory(logger.CategoryFrameProcessing, "Video frame dropped", map[string]interface{}{
		"reason": reason,
		"pts":    pts.String(),
	})
}

func (m *Muxer) dropAudio(reason string) {
	counter(&m.audioDropped, reason).Add(1)
	metrics.IncAudioChunk("dropped_" + reason)
}

func counter(set *sync.Map, reason string) *atomic.Uint64 {
	if c, ok := set.Load(reason); ok {
		return c.(*atomic.Uint64)
	}
	c, _ := set.LoadOrStore(reason, new(atomic.Uint64))
	return c.(*atomic.Uint64)
}

func snapshot(set *sync.Map) map[string]uint64 {
	out := make(map[string]uint64)
	set.Range(func(k, v interface{}) bool {
		out[k.(string)] = v.(*atomic.Uint64).Load()
		return true
	})
	return out
}
