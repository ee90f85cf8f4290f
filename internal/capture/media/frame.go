package media

import (
	"image"
	"sync/atomic"
	"time"
)

// VideoFrame is a raw RGBA frame. Frames from a pool must be released exactly
// once by whoever holds them last; nothing may keep a reference afterwards.
type VideoFrame struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
	PTS    time.Duration

	pool     *FramePool
	released atomic.Bool
}

// NewVideoFrame allocates an unpooled frame.
func NewVideoFrame(width, height int, pts time.Duration) *VideoFrame {
	return &VideoFrame{
		Width:  width,
		Height: height,
		Stride: width * 4,
		Pix:    make([]byte, width*height*4),
		PTS:    pts,
	}
}

// Image returns an RGBA view over the frame's pixels without copying.
func (f *VideoFrame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Release hands the buffer back to its pool. Extra calls are ignored.
func (f *VideoFrame) Release() {
	if f == nil || !f.released.CompareAndSwap(false, true) {
		return
	}
	if f.pool != nil {
		f.pool.list.put(f)
	}
}

// FramePool recycles frames of a single geometry.
type FramePool struct {
	width  int
	height int
	list   *freeList[*VideoFrame]
}

func NewFramePool(width, height, size int) *FramePool {
	p := &FramePool{width: width, height: height}
	p.list = newFreeList(size, func() *VideoFrame {
		f := NewVideoFrame(width, height, 0)
		f.pool = p
		return f
	})
	return p
}

// Get returns a frame stamped with pts. Pixel contents are whatever the
// previous user left behind.
func (p *FramePool) Get(pts time.Duration) *VideoFrame {
	f := p.list.get()
	f.PTS = pts
	f.released.Store(false)
	return f
}

func (p *FramePool) Size() (width, height int) {
	return p.width, p.height
}

func (p *FramePool) Stats() PoolStats {
	return p.list.stats()
}
