package render

import (
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/zsiec/reelcam/internal/capture/media"
	"github.com/zsiec/reelcam/internal/overlay"
)

// Slots closer than this to the lens are not drawn.
const minDepth = 0.01

type Config struct {
	FocalLength float64 // pixels
	Watermark   string
}

// Compositor draws overlay slots onto raw frames in place. Sprites are built
// lazily per element and cached.
type Compositor struct {
	cfg      Config
	elements map[string]overlay.Element

	mu      sync.Mutex
	sprites map[string]*image.RGBA
}

func NewCompositor(cfg Config, catalog []overlay.Element) *Compositor {
	c := &Compositor{
		cfg:      cfg,
		elements: make(map[string]overlay.Element, len(catalog)),
		sprites:  make(map[string]*image.RGBA),
	}
	for _, el := range catalog {
		c.elements[el.ID] = el
	}
	return c
}

// Compose draws every visible slot into frame and returns the number of
// sprites drawn.
func (c *Compositor) Compose(frame *media.VideoFrame, slots [overlay.NumCategories]overlay.Slot) int {
	dst := frame.Image()
	drawn := 0

	for _, slot := range slots {
		if !slot.Visible {
			continue
		}
		sprite := c.sprite(slot.ElementID)
		if sprite == nil {
			continue
		}
		r, ok := c.Project(slot, sprite.Bounds(), dst.Bounds())
		if !ok {
			continue
		}
		draw.BiLinear.Scale(dst, r, sprite, sprite.Bounds(), draw.Over, nil)
		drawn++
	}

	if c.cfg.Watermark != "" {
		c.stamp(dst)
	}
	return drawn
}

// Project maps a slot to its on-screen rectangle with a pinhole camera
// centred on the frame. ok is false when the slot is behind the lens,
// degenerate, or entirely off-screen.
func (c *Compositor) Project(slot overlay.Slot, sprite, frame image.Rectangle) (image.Rectangle, bool) {
	p := slot.Position
	if !p.IsFinite() || p.Z < minDepth || slot.Scale <= 0 || sprite.Dx() == 0 {
		return image.Rectangle{}, false
	}

	f := c.cfg.FocalLength
	cx := float64(frame.Dx())/2 + f*p.X/p.Z
	cy := float64(frame.Dy())/2 - f*p.Y/p.Z
	w := f * slot.Scale / p.Z
	h := w * float64(sprite.Dy()) / float64(sprite.Dx())

	if w < 1 || h < 1 || w > 8*float64(frame.Dx()) {
		return image.Rectangle{}, false
	}

	r := image.Rect(
		int(math.Round(cx-w/2)), int(math.Round(cy-h/2)),
		int(math.Round(cx+w/2)), int(math.Round(cy+h/2)),
	)
	if !r.Overlaps(frame) {
		return image.Rectangle{}, false
	}
	return r, true
}

func (c *Compositor) sprite(id string) *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sprites[id]; ok {
		return s
	}
	el, ok := c.elements[id]
	if !ok {
		return nil
	}
	s := newSprite(el)
	c.sprites[id] = s
	return s
}

func (c *Compositor) stamp(dst *image.RGBA) {
	face := basicfont.Face7x13
	y := dst.Bounds().Dy() - 8
	if y < face.Ascent {
		return
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(8), Y: fixed.I(y)},
	}
	d.DrawString(c.cfg.Watermark)
}
