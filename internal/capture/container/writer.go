// Package container writes recordings as fragmented MP4 with an MJPEG video
// track and a mono LPCM audio track.
//
// The Writer mirrors a platform asset writer: it is created unstarted, moves
// to writing once the file and init segment exist, accepts samples through
// per-track inputs, and finalizes asynchronously. Callers drive it from a
// single queue; the internal lock only guards state read by other
// goroutines.
package container

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/zsiec/reelcam/internal/capture/media"
	"github.com/zsiec/reelcam/internal/logger"
)

const (
	videoTrackID = 1
	audioTrackID = 2

	defaultVideoDuration = time.Second / 30
)

var (
	ErrOddDimensions  = errors.New("video dimensions must be positive and even")
	ErrInvalidAudio   = errors.New("audio must be mono 16-bit PCM with a positive sample rate")
	ErrAlreadyStarted = errors.New("writer already started")
)

type VideoSettings struct {
	Width     int
	Height    int
	Timescale uint32
}

type AudioSettings struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

type Options struct {
	FragmentDuration    time.Duration
	MaxPendingFragments int
}

// Stats describes what has been written so far.
type Stats struct {
	Status       string        `json:"status"`
	Fragments    int           `json:"fragments"`
	VideoSamples uint64        `json:"video_samples"`
	AudioSamples uint64        `json:"audio_samples"`
	Duration     time.Duration `json:"duration"`
	InitSize     int           `json:"init_size"`
}

type Writer struct {
	path   string
	video  VideoSettings
	audio  AudioSettings
	opts   Options
	logger logger.Logger

	mu             sync.Mutex
	status         Status
	err            error
	file           *os.File
	initSize       int
	sessionStart   time.Duration
	sessionStarted bool
	finishing      bool
	seq            uint32
	fragStartDTS   int64
	fragments      int

	videoIn *Input
	audioIn *Input

	flushq    chan *fmp4.Part
	flushDone chan struct{}
	flushErr  error // owned by the flusher until flushDone closes
}

// Create validates the settings and returns an unstarted writer for path.
// Nothing touches the filesystem until StartWriting.
func Create(path string, video VideoSettings, audio AudioSettings, opts Options, log logger.Logger) (*Writer, error) {
	if video.Width <= 0 || video.Height <= 0 || video.Width%2 != 0 || video.Height%2 != 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrOddDimensions, video.Width, video.Height)
	}
	if audio.Channels != 1 || audio.BitDepth != 16 || audio.SampleRate <= 0 {
		return nil, ErrInvalidAudio
	}
	if video.Timescale == 0 {
		video.Timescale = 90000
	}
	if opts.FragmentDuration <= 0 {
		opts.FragmentDuration = time.Second
	}
	if opts.MaxPendingFragments < 1 {
		opts.MaxPendingFragments = 1
	}

	w := &Writer{
		path:   path,
		video:  video,
		audio:  audio,
		opts:   opts,
		logger: log.WithField("path", path),
		status: StatusUnknown,
		flushq: make(chan *fmp4.Part, opts.MaxPendingFragments),
	}
	w.videoIn = newInput(w, videoTrackID, video.Timescale, media.ToTimescale(defaultVideoDuration, video.Timescale), true)
	w.audioIn = newInput(w, audioTrackID, uint32(audio.SampleRate), 0, false)
	return w, nil
}

// StartWriting creates the output file and writes the init segment.
func (w *Writer) StartWriting() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status != StatusUnknown {
		return ErrAlreadyStarted
	}

	init := &fmp4.Init{
		Tracks: []*fmp4.InitTrack{
			{
				ID:        videoTrackID,
				TimeScale: w.video.Timescale,
				Codec: &mp4.CodecMJPEG{
					Width:  w.video.Width,
					Height: w.video.Height,
				},
			},
			{
				ID:        audioTrackID,
				TimeScale: uint32(w.audio.SampleRate),
				Codec: &mp4.CodecLPCM{
					LittleEndian: false,
					BitDepth:     w.audio.BitDepth,
					SampleRate:   w.audio.SampleRate,
					ChannelCount: w.audio.Channels,
				},
			},
		},
	}

	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return w.failLocked(fmt.Errorf("failed to marshal init segment: %w", err))
	}

	f, err := os.Create(w.path)
	if err != nil {
		return w.failLocked(fmt.Errorf("failed to create output file: %w", err))
	}
	n, err := f.Write(buf.Bytes())
	if err != nil {
		f.Close()
		return w.failLocked(fmt.Errorf("failed to write init segment: %w", err))
	}

	w.file = f
	w.initSize = n
	w.status = StatusWriting
	w.flushDone = make(chan struct{})
	go w.runFlusher()

	w.logger.WithFields(map[string]interface{}{
		"width":     w.video.Width,
		"height":    w.video.Height,
		"init_size": n,
	}).Debug("Container writer started")
	return nil
}

func (w *Writer) failLocked(err error) error {
	w.status = StatusFailed
	w.err = err
	return err
}

// StartSession sets the source time that maps to zero in the output. Only
// the first call has an effect.
func (w *Writer) StartSession(at time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sessionStarted {
		return
	}
	w.sessionStart = at
	w.sessionStarted = true
}

func (w *Writer) VideoInput() *Input { return w.videoIn }
func (w *Writer) AudioInput() *Input { return w.audioIn }

func (w *Writer) Path() string { return w.path }

func (w *Writer) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Err returns the error that moved the writer to StatusFailed.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Stats{
		Status:       w.status.String(),
		Fragments:    w.fragments,
		VideoSamples: w.videoIn.appended,
		AudioSamples: w.audioIn.appended,
		Duration:     w.videoIn.durationLocked(),
		InitSize:     w.initSize,
	}
}

// maybeCutLocked closes the current fragment once video has covered the
// fragment duration and the flush queue has room.
func (w *Writer) maybeCutLocked(videoDTS int64) {
	limit := media.ToTimescale(w.opts.FragmentDuration, w.video.Timescale)
	if videoDTS-w.fragStartDTS < limit {
		return
	}
	if len(w.flushq) == cap(w.flushq) {
		return
	}
	if part := w.cutLocked(); part != nil {
		w.flushq <- part
		w.fragStartDTS = videoDTS
	}
}

// cutLocked moves every completed sample into a new part.
func (w *Writer) cutLocked() *fmp4.Part {
	var tracks []*fmp4.PartTrack
	for _, in := range []*Input{w.videoIn, w.audioIn} {
		if t := in.takeLocked(); t != nil {
			tracks = append(tracks, t)
		}
	}
	if len(tracks) == 0 {
		return nil
	}

	w.seq++
	w.fragments++
	return &fmp4.Part{
		SequenceNumber: w.seq,
		Tracks:         tracks,
	}
}

func (w *Writer) runFlusher() {
	defer close(w.flushDone)

	for part := range w.flushq {
		if w.flushErr != nil {
			continue
		}

		var buf seekablebuffer.Buffer
		if err := part.Marshal(&buf); err != nil {
			w.flushErr = fmt.Errorf("failed to marshal fragment %d: %w", part.SequenceNumber, err)
			continue
		}
		if _, err := w.file.Write(buf.Bytes()); err != nil {
			w.flushErr = fmt.Errorf("failed to write fragment %d: %w", part.SequenceNumber, err)
		}
	}
}

// FinishWriting flushes buffered samples, closes the file and then calls
// done from another goroutine. Inputs stop accepting samples immediately.
func (w *Writer) FinishWriting(done func()) {
	w.mu.Lock()
	if w.status != StatusWriting || w.finishing {
		w.mu.Unlock()
		if done != nil {
			go done()
		}
		return
	}

	w.finishing = true
	w.videoIn.finished = true
	w.audioIn.finished = true
	w.videoIn.releaseHeldLocked()
	w.audioIn.releaseHeldLocked()
	final := w.cutLocked()
	w.mu.Unlock()

	go func() {
		if final != nil {
			w.flushq <- final
		}
		close(w.flushq)
		<-w.flushDone

		err := w.flushErr
		if serr := w.file.Sync(); serr != nil && err == nil {
			err = fmt.Errorf("failed to sync output: %w", serr)
		}
		if cerr := w.file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output: %w", cerr)
		}

		w.mu.Lock()
		if err != nil {
			w.status = StatusFailed
			w.err = err
		} else {
			w.status = StatusCompleted
		}
		w.mu.Unlock()

		if err != nil {
			w.logger.WithError(err).Error("Container finalize failed")
		}
		if done != nil {
			done()
		}
	}()
}
