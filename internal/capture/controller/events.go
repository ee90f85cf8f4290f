package controller

import (
	"github.com/zsiec/reelcam/internal/capture/muxer"
	"github.com/zsiec/reelcam/internal/overlay"
)

// Event is delivered to subscribers. The concrete types are StateChanged,
// RecordingFinished, CameraSwitched, TrackingStatusChanged and
// IlluminationChanged.
type Event interface {
	event()
}

type StateChanged struct {
	From State
	To   State
}

// RecordingFinished reports the outcome of a stop. Path is empty when Err is
// set.
type RecordingFinished struct {
	Path   string
	Err    error
	Result muxer.StopResult
}

// CameraSwitched fires when a switch completes or its guard times out.
type CameraSwitched struct {
	Position overlay.CameraPosition
	TimedOut bool
}

type TrackingStatusChanged struct {
	Status string
}

type IlluminationChanged struct {
	On bool
}

func (StateChanged) event()          {}
func (RecordingFinished) event()     {}
func (CameraSwitched) event()        {}
func (TrackingStatusChanged) event() {}
func (IlluminationChanged) event()   {}

const subscriberBuffer = 32

// Subscribe returns a channel of controller events and a cancel function
// that closes it. Events are dropped for subscribers that fall behind.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (c *Controller) emit(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.WithField("event", ev).Debug("Subscriber lagging, event dropped")
		}
	}
}
