package convert

import (
	"bytes"
	"context"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/reelcam/internal/capture/media"
	"github.com/zsiec/reelcam/internal/capture/throttle"
	"github.com/zsiec/reelcam/internal/logger"
	"github.com/zsiec/reelcam/internal/overlay"
	"github.com/zsiec/reelcam/internal/render"
)

type recordingSink struct {
	mu    sync.Mutex
	video []media.EncodedVideo
	audio []media.EncodedAudio
	got   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{got: make(chan struct{}, 16)}
}

func (s *recordingSink) WriteVideoFrame(v media.EncodedVideo) {
	s.mu.Lock()
	s.video = append(s.video, v)
	s.mu.Unlock()
	s.got <- struct{}{}
}

func (s *recordingSink) WriteAudioChunk(a media.EncodedAudio) {
	s.mu.Lock()
	s.audio = append(s.audio, a)
	s.mu.Unlock()
}

func (s *recordingSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.got:
	case <-time.After(5 * time.Second):
		t.Fatal("no video delivered")
	}
}

func noSlots() [overlay.NumCategories]overlay.Slot {
	return [overlay.NumCategories]overlay.Slot{}
}

func TestEncodeVideoCropsToEvenDimensions(t *testing.T) {
	frame := media.NewVideoFrame(65, 49, 3*time.Second)
	for i := range frame.Pix {
		frame.Pix[i] = 0x80
	}

	out, err := EncodeVideo(frame, 80)
	require.NoError(t, err)
	assert.Equal(t, 64, out.Width)
	assert.Equal(t, 48, out.Height)
	assert.Equal(t, 3*time.Second, out.PTS)

	img, err := jpeg.Decode(bytes.NewReader(out.Payload))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}

func TestEncodeVideoRejectsTinyFrame(t *testing.T) {
	_, err := EncodeVideo(media.NewVideoFrame(1, 10, 0), 80)
	assert.Error(t, err)
}

func TestEncodePCM(t *testing.T) {
	out := EncodePCM([]int16{0, 1, -1, 0x1234, -32768})
	assert.Equal(t, []byte{
		0x00, 0x00,
		0x00, 0x01,
		0xFF, 0xFF,
		0x12, 0x34,
		0x80, 0x00,
	}, out)
}

func TestVideoJobReleasesFrameAndSlot(t *testing.T) {
	thr := throttle.New(1, logger.NewNullLogger())
	sink := newRecordingSink()
	c := New(Config{JPEGQuality: 70}, nil, thr, sink, logger.NewNullLogger())
	c.Start(context.Background())
	defer c.Stop()

	pool := media.NewFramePool(32, 32, 2)
	frame := pool.Get(time.Second)

	ok, _ := thr.Offer()
	require.True(t, ok)
	require.NoError(t, c.SubmitVideo(frame, noSlots()))
	sink.wait(t)

	require.Eventually(t, func() bool { return !thr.Stats().InFlight }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), c.Stats().VideoConverted)

	sink.mu.Lock()
	require.Len(t, sink.video, 1)
	assert.Equal(t, time.Second, sink.video[0].PTS)
	sink.mu.Unlock()

	// the released frame is handed out again
	again := pool.Get(2 * time.Second)
	assert.Same(t, frame, again)
}

func TestCompositeUsesCapturedSlots(t *testing.T) {
	thr := throttle.New(1, logger.NewNullLogger())
	sink := newRecordingSink()
	comp := render.NewCompositor(render.Config{FocalLength: 200}, overlay.DefaultCatalog())
	c := New(Config{JPEGQuality: 90, Composite: true}, comp, thr, sink, logger.NewNullLogger())
	c.Start(context.Background())
	defer c.Stop()

	slots := noSlots()
	slots[overlay.Nose] = overlay.Slot{
		Category:  overlay.Nose,
		ElementID: "clown-nose",
		Visible:   true,
		Position:  overlay.Vec3{Z: 0.3},
		Scale:     0.035,
	}

	ok, _ := thr.Offer()
	require.True(t, ok)
	require.NoError(t, c.SubmitVideo(media.NewVideoFrame(64, 64, 0), slots))
	sink.wait(t)

	require.Eventually(t, func() bool { return c.Stats().Composited == 1 }, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	payload := sink.video[0].Payload
	sink.mu.Unlock()
	img, err := jpeg.Decode(bytes.NewReader(payload))
	require.NoError(t, err)
	r, _, _, _ := img.At(32, 32).RGBA()
	assert.Greater(t, r>>8, uint32(0x80), "nose drawn at the centre")
}

func TestCompositeDisabled(t *testing.T) {
	thr := throttle.New(1, logger.NewNullLogger())
	sink := newRecordingSink()
	comp := render.NewCompositor(render.Config{FocalLength: 200}, overlay.DefaultCatalog())
	c := New(Config{Composite: false}, comp, thr, sink, logger.NewNullLogger())
	c.Start(context.Background())
	defer c.Stop()

	slots := noSlots()
	slots[overlay.Nose] = overlay.Slot{ElementID: "clown-nose", Visible: true, Position: overlay.Vec3{Z: 0.3}, Scale: 0.035}

	ok, _ := thr.Offer()
	require.True(t, ok)
	require.NoError(t, c.SubmitVideo(media.NewVideoFrame(64, 64, 0), slots))
	sink.wait(t)
	assert.Zero(t, c.Stats().Composited)
}

func TestSubmitWhenStoppedReleases(t *testing.T) {
	thr := throttle.New(1, logger.NewNullLogger())
	c := New(Config{}, nil, thr, newRecordingSink(), logger.NewNullLogger())

	pool := media.NewFramePool(16, 16, 1)
	frame := pool.Get(0)
	ok, _ := thr.Offer()
	require.True(t, ok)

	assert.ErrorIs(t, c.SubmitVideo(frame, noSlots()), ErrNotRunning)
	assert.False(t, thr.Stats().InFlight)
	assert.Same(t, frame, pool.Get(0))
}

func TestSecondJobRejectedWhilePending(t *testing.T) {
	thr := throttle.New(1, logger.NewNullLogger())
	c := New(Config{}, nil, thr, newRecordingSink(), logger.NewNullLogger())

	// running without a worker so the first job stays queued
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	require.NoError(t, c.SubmitVideo(media.NewVideoFrame(16, 16, 0), noSlots()))
	assert.Error(t, c.SubmitVideo(media.NewVideoFrame(16, 16, 0), noSlots()))
	assert.Len(t, c.jobs, 1)
}

func TestStopDrainsQueuedFrame(t *testing.T) {
	thr := throttle.New(1, logger.NewNullLogger())
	c := New(Config{}, nil, thr, newRecordingSink(), logger.NewNullLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := media.NewFramePool(16, 16, 1)
	frame := pool.Get(0)
	c.jobs <- job{frame: frame}

	c.running = true
	c.cancel = cancel
	c.wg.Add(1)
	c.worker(ctx)

	assert.Empty(t, c.jobs)
	assert.Same(t, frame, pool.Get(0), "frame returned to the pool")
}

func TestConvertAudio(t *testing.T) {
	sink := newRecordingSink()
	c := New(Config{}, nil, throttle.New(1, logger.NewNullLogger()), sink, logger.NewNullLogger())

	pool := media.NewAudioPool(4, 44100, 1)
	chunk := pool.Get(500 * time.Millisecond)
	copy(chunk.Samples, []int16{1, 2, 3, 4})

	c.ConvertAudio(chunk)

	require.Len(t, sink.audio, 1)
	a := sink.audio[0]
	assert.Equal(t, []byte{0, 1, 0, 2, 0, 3, 0, 4}, a.Payload)
	assert.Equal(t, 4, a.SampleCount)
	assert.Equal(t, 44100, a.SampleRate)
	assert.Equal(t, 500*time.Millisecond, a.PTS)
	assert.Equal(t, uint64(1), c.Stats().AudioConverted)
	assert.Same(t, chunk, pool.Get(0))
}

func TestStartStopIdempotent(t *testing.T) {
	c := New(Config{}, nil, throttle.New(1, logger.NewNullLogger()), newRecordingSink(), logger.NewNullLogger())
	c.Start(context.Background())
	c.Start(context.Background())
	c.Stop()
	c.Stop()
}
