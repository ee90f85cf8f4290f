package container

import (
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"

	"github.com/zsiec/reelcam/internal/capture/media"
)

// Sample is one access unit for an Input. Duration is optional; when zero
// the sample lasts until the next one.
type Sample struct {
	PTS      time.Duration
	Payload  []byte
	Duration time.Duration
}

// Input appends samples to one track of a Writer.
type Input struct {
	w         *Writer
	id        int
	timescale uint32
	gated     bool // readiness follows the flush queue

	defaultDuration int64

	queued   []*fmp4.Sample
	baseDTS  int64
	held     *fmp4.Sample
	heldDTS  int64
	heldDur  int64
	firstDTS int64
	lastDTS  int64
	hasLast  bool
	finished bool
	appended uint64
}

func newInput(w *Writer, id int, timescale uint32, defaultDuration int64, gated bool) *Input {
	return &Input{
		w:               w,
		id:              id,
		timescale:       timescale,
		gated:           gated,
		defaultDuration: defaultDuration,
	}
}

// ReadyForMoreMediaData reports whether Append would currently accept a
// sample. It never blocks.
func (in *Input) ReadyForMoreMediaData() bool {
	in.w.mu.Lock()
	defer in.w.mu.Unlock()
	return in.readyLocked()
}

func (in *Input) readyLocked() bool {
	if in.w.status != StatusWriting || in.w.finishing || in.finished {
		return false
	}
	if in.gated && len(in.w.flushq) == cap(in.w.flushq) {
		return false
	}
	return true
}

// Append adds s to the track. It returns false, leaving the track
// unchanged, when the input is not ready, the session has not started, or
// s is not strictly after the previous sample and the session start.
func (in *Input) Append(s Sample) bool {
	w := in.w
	w.mu.Lock()
	defer w.mu.Unlock()

	if !in.readyLocked() || !w.sessionStarted || s.PTS < w.sessionStart {
		return false
	}

	dts := media.ToTimescale(s.PTS-w.sessionStart, in.timescale)
	if in.hasLast && dts <= in.lastDTS {
		return false
	}

	if in.held != nil {
		in.held.Duration = uint32(dts - in.heldDTS)
		in.queueLocked(in.held, in.heldDTS)
	} else if !in.hasLast {
		in.firstDTS = dts
	}

	nominal := media.ToTimescale(s.Duration, in.timescale)
	if nominal <= 0 {
		nominal = in.defaultDuration
		if in.hasLast {
			nominal = dts - in.lastDTS
		}
	}

	in.held = &fmp4.Sample{Payload: s.Payload}
	in.heldDTS = dts
	in.heldDur = nominal
	in.lastDTS = dts
	in.hasLast = true
	in.appended++

	if in.gated {
		w.maybeCutLocked(dts)
	}
	return true
}

// MarkAsFinished stops the input from accepting samples.
func (in *Input) MarkAsFinished() {
	in.w.mu.Lock()
	defer in.w.mu.Unlock()
	in.finished = true
}

func (in *Input) queueLocked(s *fmp4.Sample, dts int64) {
	if len(in.queued) == 0 {
		in.baseDTS = dts
	}
	in.queued = append(in.queued, s)
}

// releaseHeldLocked queues the held sample with its nominal duration.
func (in *Input) releaseHeldLocked() {
	if in.held == nil {
		return
	}
	d := in.heldDur
	if d <= 0 {
		d = 1
	}
	in.held.Duration = uint32(d)
	in.queueLocked(in.held, in.heldDTS)
	in.held = nil
}

func (in *Input) takeLocked() *fmp4.PartTrack {
	if len(in.queued) == 0 {
		return nil
	}
	t := &fmp4.PartTrack{
		ID:       in.id,
		BaseTime: uint64(in.baseDTS),
		Samples:  in.queued,
	}
	in.queued = nil
	return t
}

// durationLocked is the span from the first sample to the end of the last.
func (in *Input) durationLocked() time.Duration {
	if !in.hasLast {
		return 0
	}
	return media.FromTimescale(in.lastDTS+in.heldDur-in.firstDTS, in.timescale)
}
