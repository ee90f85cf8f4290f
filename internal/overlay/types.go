package overlay

import (
	"fmt"
	"image/color"
	"math"
)

// Category is one of the overlay slots placed on a tracked face.
type Category int

const (
	Nose Category = iota
	Glasses
	Beard
)

// NumCategories is the number of overlay slots.
const NumCategories = 3

func (c Category) String() string {
	switch c {
	case Nose:
		return "nose"
	case Glasses:
		return "glasses"
	case Beard:
		return "beard"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// ParseCategory is the inverse of Category.String.
func ParseCategory(s string) (Category, error) {
	for c := Category(0); c < NumCategories; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown overlay category %q", s)
}

// CameraPosition identifies the active capture source.
type CameraPosition int

const (
	Front CameraPosition = iota // tracked, mesh available
	Rear                        // fallback, coarse anchor only
)

func (p CameraPosition) String() string {
	if p == Rear {
		return "rear"
	}
	return "front"
}

// Other returns the opposite camera.
func (p CameraPosition) Other() CameraPosition {
	if p == Front {
		return Rear
	}
	return Front
}

func ParseCameraPosition(s string) (CameraPosition, error) {
	switch s {
	case "front":
		return Front, nil
	case "rear":
		return Rear, nil
	default:
		return Front, fmt.Errorf("unknown camera position %q", s)
	}
}

// Vec3 is a point or offset in camera space, in metres. X is right, Y is up
// and Z is depth away from the lens.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) IsFinite() bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// TrackingSample is the per-frame tracking result. It is one of MeshPoints,
// CoarseAnchor or NoTracking.
type TrackingSample interface {
	Camera() CameraPosition
	trackingSample()
}

// MeshPoints carries a face mesh. A sample with no points is treated like a
// CoarseAnchor at Anchor.
type MeshPoints struct {
	Source CameraPosition
	Anchor Vec3
	Points []Vec3
}

// CoarseAnchor carries only the origin of a detected face region.
type CoarseAnchor struct {
	Source CameraPosition
	Origin Vec3
}

// NoTracking means nothing was tracked this frame.
type NoTracking struct {
	Source CameraPosition
}

func (s MeshPoints) Camera() CameraPosition   { return s.Source }
func (s CoarseAnchor) Camera() CameraPosition { return s.Source }
func (s NoTracking) Camera() CameraPosition   { return s.Source }

func (MeshPoints) trackingSample()   {}
func (CoarseAnchor) trackingSample() {}
func (NoTracking) trackingSample()   {}

// Element is a selectable overlay asset.
type Element struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Category   Category   `json:"-"`
	AssetScale float64    `json:"asset_scale"`
	Color      color.RGBA `json:"-"`
}

// Slot is the placement of one category's overlay for the current frame.
type Slot struct {
	Category  Category `json:"-"`
	ElementID string   `json:"element_id,omitempty"`
	Visible   bool     `json:"visible"`
	Position  Vec3     `json:"position"`
	Scale     float64  `json:"scale"`
	Billboard bool     `json:"billboard"`
}

// DefaultCatalog is the built-in set of overlay elements.
func DefaultCatalog() []Element {
	return []Element{
		{ID: "clown-nose", Name: "Clown nose", Category: Nose, AssetScale: 0.035, Color: color.RGBA{R: 0xE0, G: 0x1B, B: 0x24, A: 0xFF}},
		{ID: "pig-snout", Name: "Pig snout", Category: Nose, AssetScale: 0.045, Color: color.RGBA{R: 0xF4, G: 0x9A, B: 0xC1, A: 0xFF}},
		{ID: "aviators", Name: "Aviators", Category: Glasses, AssetScale: 0.14, Color: color.RGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xE0}},
		{ID: "round-specs", Name: "Round specs", Category: Glasses, AssetScale: 0.12, Color: color.RGBA{R: 0x8B, G: 0x5A, B: 0x2B, A: 0xFF}},
		{ID: "full-beard", Name: "Full beard", Category: Beard, AssetScale: 0.16, Color: color.RGBA{R: 0x4A, G: 0x2C, B: 0x12, A: 0xFF}},
		{ID: "goatee", Name: "Goatee", Category: Beard, AssetScale: 0.07, Color: color.RGBA{R: 0x2E, G: 0x1A, B: 0x0B, A: 0xFF}},
	}
}
