package container

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/reelcam/internal/logger"
)

var (
	testVideo = VideoSettings{Width: 64, Height: 48, Timescale: 90000}
	testAudio = AudioSettings{SampleRate: 44100, Channels: 1, BitDepth: 16}
)

func newTestWriter(t *testing.T, opts Options) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.mp4")
	w, err := Create(path, testVideo, testAudio, opts, logger.NewNullLogger())
	require.NoError(t, err)
	return w, path
}

func finish(t *testing.T, w *Writer) {
	t.Helper()
	done := make(chan struct{})
	w.FinishWriting(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("finish did not complete")
	}
}

func TestCreateValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name  string
		video VideoSettings
		audio AudioSettings
		err   error
	}{
		{"odd width", VideoSettings{Width: 63, Height: 48}, testAudio, ErrOddDimensions},
		{"zero height", VideoSettings{Width: 64}, testAudio, ErrOddDimensions},
		{"stereo", testVideo, AudioSettings{SampleRate: 44100, Channels: 2, BitDepth: 16}, ErrInvalidAudio},
		{"24 bit", testVideo, AudioSettings{SampleRate: 44100, Channels: 1, BitDepth: 24}, ErrInvalidAudio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Create(filepath.Join(dir, "x.mp4"), tt.video, tt.audio, Options{}, logger.NewNullLogger())
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestWriterLifecycle(t *testing.T) {
	w, path := newTestWriter(t, Options{FragmentDuration: 100 * time.Millisecond, MaxPendingFragments: 8})
	assert.Equal(t, StatusUnknown, w.Status())
	assert.False(t, w.VideoInput().ReadyForMoreMediaData())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nothing is written before StartWriting")

	require.NoError(t, w.StartWriting())
	assert.Equal(t, StatusWriting, w.Status())
	assert.ErrorIs(t, w.StartWriting(), ErrAlreadyStarted)

	start := 5 * time.Second
	w.StartSession(start)
	w.StartSession(start + time.Hour) // ignored

	for i := 0; i < 10; i++ {
		pts := start + time.Duration(i)*time.Second/30
		require.True(t, w.VideoInput().ReadyForMoreMediaData())
		require.True(t, w.VideoInput().Append(Sample{PTS: pts, Payload: []byte{0xFF, 0xD8, byte(i)}}))
		require.True(t, w.AudioInput().Append(Sample{
			PTS:      pts,
			Payload:  make([]byte, 2*1470),
			Duration: time.Second / 30,
		}))
	}

	finish(t, w)
	assert.Equal(t, StatusCompleted, w.Status())
	assert.NoError(t, w.Err())

	stats := w.Stats()
	assert.Equal(t, uint64(10), stats.VideoSamples)
	assert.Equal(t, uint64(10), stats.AudioSamples)
	assert.InDelta(t, float64(time.Second/3), float64(stats.Duration), float64(time.Millisecond))
	assert.GreaterOrEqual(t, stats.Fragments, 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), stats.InitSize)

	var parts fmp4.Parts
	require.NoError(t, parts.Unmarshal(data[stats.InitSize:]))
	assert.Len(t, parts, stats.Fragments)

	var videoSamples int
	var videoTicks uint64
	lastBase := int64(-1)
	for _, p := range parts {
		for _, tr := range p.Tracks {
			if tr.ID != videoTrackID {
				continue
			}
			assert.Greater(t, int64(tr.BaseTime), lastBase, "fragment base times increase")
			lastBase = int64(tr.BaseTime)
			assert.Equal(t, videoTicks, tr.BaseTime, "fragments are contiguous")
			for _, s := range tr.Samples {
				assert.Positive(t, s.Duration)
				videoTicks += uint64(s.Duration)
				videoSamples++
			}
		}
	}
	assert.Equal(t, 10, videoSamples)
	assert.Equal(t, uint64(30000), videoTicks, "10 frames at 30fps span a third of a second")
}

func TestAppendRejections(t *testing.T) {
	w, _ := newTestWriter(t, Options{})

	assert.False(t, w.VideoInput().Append(Sample{PTS: time.Second}), "not writing yet")

	require.NoError(t, w.StartWriting())
	assert.False(t, w.VideoInput().Append(Sample{PTS: time.Second}), "no session yet")

	w.StartSession(time.Second)
	assert.False(t, w.AudioInput().Append(Sample{PTS: 900 * time.Millisecond}), "before session start")
	assert.True(t, w.VideoInput().Append(Sample{PTS: time.Second}))
	assert.False(t, w.VideoInput().Append(Sample{PTS: time.Second}), "same timestamp")
	assert.False(t, w.VideoInput().Append(Sample{PTS: 999 * time.Millisecond}), "backwards")
	assert.True(t, w.VideoInput().Append(Sample{PTS: time.Second + 40*time.Millisecond}))

	w.VideoInput().MarkAsFinished()
	assert.False(t, w.VideoInput().ReadyForMoreMediaData())
	assert.False(t, w.VideoInput().Append(Sample{PTS: 2 * time.Second}))
	assert.True(t, w.AudioInput().ReadyForMoreMediaData())

	finish(t, w)
	assert.Equal(t, uint64(2), w.Stats().VideoSamples)
	assert.False(t, w.AudioInput().Append(Sample{PTS: 3 * time.Second}), "after finish")
}

func TestVideoNotReadyWhenFlushQueueFull(t *testing.T) {
	w, _ := newTestWriter(t, Options{FragmentDuration: 10 * time.Millisecond, MaxPendingFragments: 1})

	// writing state without a flusher, so cut fragments stay queued
	w.status = StatusWriting
	w.StartSession(0)

	in := w.VideoInput()
	require.True(t, in.Append(Sample{PTS: 0}))
	require.True(t, in.Append(Sample{PTS: 20 * time.Millisecond}))
	assert.Len(t, w.flushq, 1)

	assert.False(t, in.ReadyForMoreMediaData())
	assert.False(t, in.Append(Sample{PTS: 40 * time.Millisecond}))
	assert.True(t, w.AudioInput().ReadyForMoreMediaData(), "audio is never gated")
}

func TestStartWritingFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "out.mp4")
	w, err := Create(path, testVideo, testAudio, Options{}, logger.NewNullLogger())
	require.NoError(t, err)

	err = w.StartWriting()
	require.Error(t, err)
	assert.Equal(t, StatusFailed, w.Status())
	assert.Equal(t, err, w.Err())
	assert.False(t, w.AudioInput().ReadyForMoreMediaData())

	// finishing a failed writer still completes
	finish(t, w)
	assert.Equal(t, StatusFailed, w.Status())
}

func TestFinishWithoutSamples(t *testing.T) {
	w, path := newTestWriter(t, Options{})
	require.NoError(t, w.StartWriting())

	finish(t, w)
	assert.Equal(t, StatusCompleted, w.Status())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(w.Stats().InitSize), info.Size())
	assert.Zero(t, w.Stats().Duration)

	finish(t, w) // second finish is a no-op that still signals
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "unknown", StatusUnknown.String())
	assert.Equal(t, "writing", StatusWriting.String())
	assert.Equal(t, "completed", StatusCompleted.String())
	assert.Equal(t, "failed", StatusFailed.String())
}
