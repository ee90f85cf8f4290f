package render

import (
	"image"
	"image/color"
	"math"

	"github.com/zsiec/reelcam/internal/overlay"
)

// Sprite resolution; the width maps to the slot's scale in metres.
const spriteWidth = 128

// newSprite draws a flat placeholder asset for el.
func newSprite(el overlay.Element) *image.RGBA {
	switch el.Category {
	case overlay.Glasses:
		return glassesSprite(el.Color)
	case overlay.Beard:
		return beardSprite(el.Color)
	default:
		return noseSprite(el.Color)
	}
}

func noseSprite(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, spriteWidth, spriteWidth))
	r := float64(spriteWidth) / 2
	fillEllipse(img, r, r, r-1, r-1, c)
	return img
}

func glassesSprite(c color.RGBA) *image.RGBA {
	h := spriteWidth * 3 / 8
	img := image.NewRGBA(image.Rect(0, 0, spriteWidth, h))
	lens := float64(h)/2 - 1
	cy := float64(h) / 2

	fillRing(img, lens+1, cy, lens, 5, c)
	fillRing(img, float64(spriteWidth)-lens-1, cy, lens, 5, c)

	bridge := image.Rect(int(2*lens), int(cy)-2, spriteWidth-int(2*lens), int(cy)+2)
	for y := bridge.Min.Y; y < bridge.Max.Y; y++ {
		for x := bridge.Min.X; x < bridge.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func beardSprite(c color.RGBA) *image.RGBA {
	h := spriteWidth * 3 / 4
	img := image.NewRGBA(image.Rect(0, 0, spriteWidth, h))
	rx := float64(spriteWidth)/2 - 1
	ry := float64(h) - 1

	// lower half of an ellipse with a mouth cut-out
	for y := 0; y < h; y++ {
		for x := 0; x < spriteWidth; x++ {
			dx := (float64(x) + 0.5 - rx) / rx
			dy := (float64(y) + 0.5) / ry
			if dx*dx+dy*dy > 1 {
				continue
			}
			mx := (float64(x) + 0.5 - rx) / (rx * 0.45)
			my := (float64(y) + 0.5 - ry*0.25) / (ry * 0.12)
			if mx*mx+my*my <= 1 {
				continue
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func fillEllipse(img *image.RGBA, cx, cy, rx, ry float64, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dx := (float64(x) + 0.5 - cx) / rx
			dy := (float64(y) + 0.5 - cy) / ry
			if dx*dx+dy*dy <= 1 {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

func fillRing(img *image.RGBA, cx, cy, r, thickness float64, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			if d <= r && d >= r-thickness {
				img.SetRGBA(x, y, c)
			}
		}
	}
}
