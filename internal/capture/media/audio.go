package media

import (
	"sync/atomic"
	"time"
)

// AudioChunk is a run of mono 16-bit samples. Ownership follows VideoFrame.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	PTS        time.Duration

	pool     *AudioPool
	released atomic.Bool
}

// Duration is the playback length of the chunk.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

func (c *AudioChunk) Release() {
	if c == nil || !c.released.CompareAndSwap(false, true) {
		return
	}
	if c.pool != nil {
		c.pool.list.put(c)
	}
}

// AudioPool recycles chunks with a fixed sample count.
type AudioPool struct {
	list *freeList[*AudioChunk]
}

func NewAudioPool(samples, sampleRate, size int) *AudioPool {
	p := &AudioPool{}
	p.list = newFreeList(size, func() *AudioChunk {
		return &AudioChunk{
			Samples:    make([]int16, samples),
			SampleRate: sampleRate,
			pool:       p,
		}
	})
	return p
}

func (p *AudioPool) Get(pts time.Duration) *AudioChunk {
	c := p.list.get()
	c.PTS = pts
	c.released.Store(false)
	return c
}

func (p *AudioPool) Stats() PoolStats {
	return p.list.stats()
}
