// Package throttle decides which display frames are converted for recording.
//
// One frame in every N is eligible. An eligible frame is taken only when no
// conversion is in flight; otherwise it is dropped, never queued, so the
// conversion backlog is bounded to a single frame.
package throttle

import (
	"sync/atomic"
	"time"

	"github.com/zsiec/reelcam/internal/logger"
	"github.com/zsiec/reelcam/internal/metrics"
)

// DropReason explains why Offer rejected a frame.
type DropReason string

const (
	Accepted     DropReason = ""
	DropInterval DropReason = "interval"
	DropBusy     DropReason = "busy"
)

type Stats struct {
	Seen            uint64 `json:"seen"`
	Accepted        uint64 `json:"accepted"`
	DroppedInterval uint64 `json:"dropped_interval"`
	DroppedBusy     uint64 `json:"dropped_busy"`
	InFlight        bool   `json:"in_flight"`
}

type Throttler struct {
	every  uint64
	logger *logger.SampledLogger

	counter         atomic.Uint64
	inFlight        atomic.Bool
	accepted        atomic.Uint64
	droppedInterval atomic.Uint64
	droppedBusy     atomic.Uint64
}

// New returns a throttler sampling one frame in every. Values below one are
// treated as one.
func New(every int, log logger.Logger) *Throttler {
	if every < 1 {
		every = 1
	}
	sampled := logger.NewSampledLogger(logger.WithComponent(log, "throttle")).
		WithSampler(logger.CategoryBackpressure, 500*time.Millisecond, 3)

	return &Throttler{
		every:  uint64(every),
		logger: sampled,
	}
}

// Offer reports whether the next frame should be converted. An accepted
// frame holds the in-flight slot until Done is called.
func (t *Throttler) Offer() (bool, DropReason) {
	n := t.counter.Add(1) - 1
	metrics.IncFramesSeen()

	if n%t.every != 0 {
		t.droppedInterval.Add(1)
		return false, DropInterval
	}

	if !t.inFlight.CompareAndSwap(false, true) {
		busy := t.droppedBusy.Add(1)
		metrics.IncFrameDropped(metrics.StageThrottle, string(DropBusy))
		t.logger.WarnWithCategory(logger.CategoryBackpressure, "Conversion in flight, dropping sampled frame", map[string]interface{}{
			"frame":        n,
			"dropped_busy": busy,
			"sample_every": t.every,
		})
		return false, DropBusy
	}

	t.accepted.Add(1)
	metrics.IncFramesSampled()
	return true, Accepted
}

// Done releases the in-flight slot taken by an accepted Offer.
func (t *Throttler) Done() {
	t.inFlight.Store(false)
}

// Reset restarts the frame counter and statistics. A conversion still in
// flight keeps its slot.
func (t *Throttler) Reset() {
	t.counter.Store(0)
	t.accepted.Store(0)
	t.droppedInterval.Store(0)
	t.droppedBusy.Store(0)
}

func (t *Throttler) Stats() Stats {
	return Stats{
		Seen:            t.counter.Load(),
		Accepted:        t.accepted.Load(),
		DroppedInterval: t.droppedInterval.Load(),
		DroppedBusy:     t.droppedBusy.Load(),
		InFlight:        t.inFlight.Load(),
	}
}
