package throttle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/reelcam/internal/logger"
)

func TestOfferSamplesEveryN(t *testing.T) {
	th := New(4, logger.NewNullLogger())

	var accepted []int
	for i := 0; i < 12; i++ {
		ok, reason := th.Offer()
		if ok {
			accepted = append(accepted, i)
			th.Done()
		} else {
			assert.Equal(t, DropInterval, reason)
		}
	}

	assert.Equal(t, []int{0, 4, 8}, accepted)
	stats := th.Stats()
	assert.Equal(t, uint64(12), stats.Seen)
	assert.Equal(t, uint64(3), stats.Accepted)
	assert.Equal(t, uint64(9), stats.DroppedInterval)
	assert.Zero(t, stats.DroppedBusy)
}

func TestOfferDropsWhileBusy(t *testing.T) {
	th := New(2, logger.NewNullLogger())

	ok, _ := th.Offer() // frame 0 accepted, never Done
	require.True(t, ok)

	_, reason := th.Offer() // frame 1 off-interval
	assert.Equal(t, DropInterval, reason)

	ok, reason = th.Offer() // frame 2 eligible but busy
	assert.False(t, ok)
	assert.Equal(t, DropBusy, reason)

	th.Done()
	th.Offer()              // frame 3
	ok, reason = th.Offer() // frame 4
	assert.True(t, ok)
	assert.Equal(t, Accepted, reason)
	assert.True(t, th.Stats().InFlight)
	assert.Equal(t, uint64(1), th.Stats().DroppedBusy)
}

func TestResetKeepsInFlightSlot(t *testing.T) {
	th := New(3, logger.NewNullLogger())
	ok, _ := th.Offer()
	require.True(t, ok)
	th.Offer()

	th.Reset()
	stats := th.Stats()
	assert.Zero(t, stats.Seen)
	assert.Zero(t, stats.Accepted)
	assert.True(t, stats.InFlight)

	ok, reason := th.Offer()
	assert.False(t, ok)
	assert.Equal(t, DropBusy, reason)
}

func TestIntervalBelowOne(t *testing.T) {
	th := New(0, logger.NewNullLogger())

	for i := 0; i < 3; i++ {
		ok, _ := th.Offer()
		assert.True(t, ok)
		th.Done()
	}
}

// With a converter slower than the sampling interval, the number of frames
// taken over a window never exceeds window / interval.
func TestBackpressureBound(t *testing.T) {
	const (
		every       = 4
		frames      = 400
		convertTime = 7 // frames a conversion takes to finish
	)
	th := New(every, logger.NewNullLogger())

	busyUntil := -1
	taken := 0
	for i := 0; i < frames; i++ {
		if busyUntil >= 0 && i >= busyUntil {
			th.Done()
			busyUntil = -1
		}
		if ok, _ := th.Offer(); ok {
			taken++
			busyUntil = i + convertTime
		}
	}

	assert.LessOrEqual(t, taken, frames/every)
	assert.Positive(t, th.Stats().DroppedBusy)
}

func TestConcurrentOffersTakeOneSlot(t *testing.T) {
	th := New(1, logger.NewNullLogger())

	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := th.Offer(); ok {
				mu.Lock()
				taken++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, taken)
}
