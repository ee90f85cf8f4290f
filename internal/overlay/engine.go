package overlay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/zsiec/reelcam/internal/logger"
)

// ErrUnknownElement is returned by Select for ids not in the catalog.
var ErrUnknownElement = errors.New("unknown overlay element")

// ErrInvalidScale is returned by AdjustScale for a bad category or factor.
var ErrInvalidScale = errors.New("invalid overlay scale")

// Mode is the tracking fidelity used for the most recent update.
type Mode string

const (
	ModeHidden   Mode = "hidden"
	ModeMesh     Mode = "mesh"
	ModeFallback Mode = "fallback"
)

type Config struct {
	SwitchDebounce time.Duration
	FallbackScale  float64
	Catalog        []Element
	Position       CameraPosition
}

// Engine maps tracking samples to overlay slot transforms. It is safe for
// concurrent use; Update is expected once per displayed frame.
type Engine struct {
	cfg    Config
	clock  clock.PassiveClock
	logger *logger.SampledLogger

	mu         sync.Mutex
	catalog    map[string]Element
	applied    string
	active     CameraPosition
	switching  bool
	switchedAt time.Time
	mode       Mode
	scales     [NumCategories]float64
	slots      [NumCategories]Slot
}

func NewEngine(cfg Config, clk clock.PassiveClock, log logger.Logger) *Engine {
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.FallbackScale <= 0 {
		cfg.FallbackScale = 1
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	e := &Engine{
		cfg:     cfg,
		clock:   clk,
		logger:  logger.NewSampledLogger(logger.WithComponent(log, "overlay")).WithSampler(logger.CategoryOverlayTracking, time.Second, 1),
		catalog: make(map[string]Element, len(cfg.Catalog)),
		active:  cfg.Position,
		mode:    ModeHidden,
	}
	for _, el := range cfg.Catalog {
		e.catalog[el.ID] = el
	}
	for c := range e.scales {
		e.scales[c] = 1
	}
	e.hideAll()
	return e
}

// Update computes slot transforms for sample and returns a snapshot.
func (e *Engine) Update(sample TrackingSample) [NumCategories]Slot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.switching {
		if e.clock.Since(e.switchedAt) < e.cfg.SwitchDebounce {
			return e.slots
		}
		e.switching = false
	}

	if sample == nil || sample.Camera() != e.active {
		e.setMode(ModeHidden)
		e.hideAll()
		return e.slots
	}

	el, ok := e.catalog[e.applied]
	if !ok {
		e.hideAll()
		return e.slots
	}

	switch s := sample.(type) {
	case MeshPoints:
		if len(s.Points) == 0 {
			e.placeFallback(el, s.Anchor)
		} else {
			e.placeMesh(el, s)
		}
	case CoarseAnchor:
		e.placeFallback(el, s.Origin)
	case NoTracking:
		e.setMode(ModeHidden)
		e.hideAll()
	}

	return e.slots
}

func (e *Engine) placeMesh(el Element, s MeshPoints) {
	c := el.Category
	center, ok := centroid(s.Points, meshIndices[c])
	if !ok {
		e.placeFallback(el, s.Anchor)
		return
	}

	pos := center.Add(meshOffsets[c])
	scale := el.AssetScale * e.scales[c]
	if !pos.IsFinite() || !finite(scale) {
		e.placeFallback(el, s.Anchor)
		return
	}

	e.setMode(ModeMesh)
	e.show(el, pos, scale, false)
}

func (e *Engine) placeFallback(el Element, origin Vec3) {
	c := el.Category
	if !origin.IsFinite() {
		origin = defaultOrigin
	}

	pos := origin.Add(fallbackOffsets[c])
	scale := el.AssetScale * e.scales[c] * e.cfg.FallbackScale
	if !finite(scale) {
		scale = el.AssetScale * e.cfg.FallbackScale
	}

	e.setMode(ModeFallback)
	e.show(el, pos, scale, true)
}

func (e *Engine) show(el Element, pos Vec3, scale float64, billboard bool) {
	for c := range e.slots {
		if Category(c) != el.Category {
			e.slots[c].Visible = false
			continue
		}
		e.slots[c] = Slot{
			Category:  el.Category,
			ElementID: el.ID,
			Visible:   true,
			Position:  pos,
			Scale:     scale,
			Billboard: billboard,
		}
	}
}

func (e *Engine) hideAll() {
	for c := range e.slots {
		e.slots[c].Category = Category(c)
		e.slots[c].Visible = false
	}
}

func (e *Engine) setMode(m Mode) {
	if e.mode == m {
		return
	}
	e.logger.DebugWithCategory(logger.CategoryOverlayTracking, "Overlay tracking mode changed", map[string]interface{}{
		"from":   string(e.mode),
		"to":     string(m),
		"camera": e.active.String(),
	})
	e.mode = m
}

// Select toggles id: selecting the applied element clears the selection,
// any other element becomes the applied one.
func (e *Engine) Select(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.catalog[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownElement, id)
	}

	if e.applied == id {
		e.applied = ""
		e.hideAll()
		return nil
	}

	e.applied = id
	e.hideAll()
	return nil
}

// AdjustScale multiplies the user scale of category c by factor and returns
// the resulting scale. The result persists across selection changes.
func (e *Engine) AdjustScale(c Category, factor float64) (float64, error) {
	if c < 0 || c >= NumCategories {
		return 0, fmt.Errorf("%w: category %d", ErrInvalidScale, int(c))
	}
	if !finite(factor) || factor <= 0 {
		return 0, fmt.Errorf("%w: factor must be positive and finite", ErrInvalidScale)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.scales[c] * factor
	if !finite(next) || next <= 0 {
		return 0, fmt.Errorf("%w: scale out of range", ErrInvalidScale)
	}
	e.scales[c] = next
	return next, nil
}

// BeginSourceSwitch hides every slot and suppresses updates for the
// debounce window while the new camera settles.
func (e *Engine) BeginSourceSwitch(to CameraPosition) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.active = to
	e.switching = true
	e.switchedAt = e.clock.Now()
	e.mode = ModeHidden
	e.hideAll()
}

// Slots returns the current placement snapshot.
func (e *Engine) Slots() [NumCategories]Slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slots
}

// Applied returns the applied element id, or "" when nothing is selected.
func (e *Engine) Applied() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applied
}

func (e *Engine) Active() CameraPosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Switching reports whether the debounce window is still open.
func (e *Engine) Switching() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.switching && e.clock.Since(e.switchedAt) < e.cfg.SwitchDebounce
}

// Catalog returns the selectable elements in catalog order.
func (e *Engine) Catalog() []Element {
	return append([]Element(nil), e.cfg.Catalog...)
}
