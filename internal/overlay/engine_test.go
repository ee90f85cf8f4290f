package overlay

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/zsiec/reelcam/internal/logger"
)

func newTestEngine(t *testing.T) (*Engine, *testingclock.FakeClock) {
	t.Helper()
	clk := testingclock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := NewEngine(Config{
		SwitchDebounce: 1500 * time.Millisecond,
		FallbackScale:  1.6,
		Position:       Front,
	}, clk, logger.NewNullLogger())
	return e, clk
}

// face builds a mesh where every landmark sits at depth z around origin.
func face(z float64) []Vec3 {
	points := make([]Vec3, MeshPointCount)
	for i := range points {
		points[i] = Vec3{X: float64(i%4)*0.01 - 0.015, Y: 0.04 - float64(i/4)*0.025, Z: z}
	}
	return points
}

func visible(slots [NumCategories]Slot) []Category {
	var out []Category
	for _, s := range slots {
		if s.Visible {
			out = append(out, s.Category)
		}
	}
	return out
}

func TestUpdateNothingSelected(t *testing.T) {
	e, _ := newTestEngine(t)

	slots := e.Update(MeshPoints{Source: Front, Points: face(0.4)})
	assert.Empty(t, visible(slots))
}

func TestUpdateMeshPlacement(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.Select("clown-nose"))

	points := face(0.4)
	slots := e.Update(MeshPoints{Source: Front, Anchor: Vec3{Z: 0.4}, Points: points})

	assert.Equal(t, []Category{Nose}, visible(slots))

	nose := slots[Nose]
	expected, ok := centroid(points, meshIndices[Nose])
	require.True(t, ok)
	expected = expected.Add(meshOffsets[Nose])

	assert.Equal(t, "clown-nose", nose.ElementID)
	assert.InDelta(t, expected.X, nose.Position.X, 1e-9)
	assert.InDelta(t, expected.Y, nose.Position.Y, 1e-9)
	assert.InDelta(t, expected.Z, nose.Position.Z, 1e-9)
	assert.InDelta(t, 0.035, nose.Scale, 1e-9)
	assert.False(t, nose.Billboard)
	assert.Equal(t, ModeMesh, e.Mode())
}

func TestUpdateBeardSitsBelowCentroid(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.Select("goatee"))

	points := face(0.4)
	slots := e.Update(MeshPoints{Source: Front, Points: points})

	c, ok := centroid(points, meshIndices[Beard])
	require.True(t, ok)
	assert.Less(t, slots[Beard].Position.Y, c.Y)
	assert.Less(t, slots[Beard].Position.Z, c.Z, "beard is pushed toward the viewer")
}

func TestUpdateFallbackModes(t *testing.T) {
	origin := Vec3{X: 0.01, Y: 0.02, Z: 0.6}

	tests := []struct {
		name   string
		sample TrackingSample
	}{
		{"empty point cloud", MeshPoints{Source: Front, Anchor: origin}},
		{"coarse anchor", CoarseAnchor{Source: Front, Origin: origin}},
		{"indices outside cloud", MeshPoints{Source: Front, Anchor: origin, Points: []Vec3{{Z: 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			require.NoError(t, e.Select("full-beard"))

			slots := e.Update(tt.sample)

			b := slots[Beard]
			assert.True(t, b.Visible)
			assert.True(t, b.Billboard)
			assert.Equal(t, origin.Add(fallbackOffsets[Beard]), b.Position)
			assert.InDelta(t, 0.16*1.6, b.Scale, 1e-9)
			assert.Equal(t, ModeFallback, e.Mode())
		})
	}
}

func TestUpdateTransformsAlwaysFinite(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)

	samples := []TrackingSample{
		MeshPoints{Source: Front},
		MeshPoints{Source: Front, Anchor: Vec3{X: nan}},
		MeshPoints{Source: Front, Anchor: Vec3{Z: inf}, Points: []Vec3{{X: nan}, {Y: inf}}},
		MeshPoints{Source: Front, Points: func() []Vec3 {
			p := face(0.5)
			p[4] = Vec3{X: nan}
			return p
		}()},
		CoarseAnchor{Source: Front, Origin: Vec3{nan, nan, nan}},
		NoTracking{Source: Front},
	}

	for _, id := range []string{"clown-nose", "round-specs", "full-beard"} {
		e, _ := newTestEngine(t)
		require.NoError(t, e.Select(id))

		for _, s := range samples {
			var slots [NumCategories]Slot
			require.NotPanics(t, func() { slots = e.Update(s) })
			for _, slot := range slots {
				assert.True(t, slot.Position.IsFinite(), "%s: %+v", id, slot)
				assert.False(t, math.IsNaN(slot.Scale) || math.IsInf(slot.Scale, 0))
			}
		}
	}
}

func TestUpdateNoTrackingHides(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.Select("clown-nose"))

	e.Update(MeshPoints{Source: Front, Points: face(0.4)})
	slots := e.Update(NoTracking{Source: Front})

	assert.Empty(t, visible(slots))
	assert.Equal(t, ModeHidden, e.Mode())

	assert.Empty(t, visible(e.Update(nil)))
}

func TestSelectToggles(t *testing.T) {
	e, _ := newTestEngine(t)
	sample := MeshPoints{Source: Front, Points: face(0.4)}

	require.NoError(t, e.Select("full-beard"))
	assert.Equal(t, "full-beard", e.Applied())
	assert.Equal(t, []Category{Beard}, visible(e.Update(sample)))

	require.NoError(t, e.Select("aviators"))
	assert.Equal(t, "aviators", e.Applied())
	assert.Equal(t, []Category{Glasses}, visible(e.Update(sample)))

	require.NoError(t, e.Select("aviators"))
	assert.Empty(t, e.Applied())
	assert.Empty(t, visible(e.Slots()))
	assert.Empty(t, visible(e.Update(sample)))
}

func TestSelectUnknownElement(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.Select("monocle")
	assert.ErrorIs(t, err, ErrUnknownElement)
	assert.Empty(t, e.Applied())
}

func TestSelectionKeepsOtherCategoryScale(t *testing.T) {
	e, _ := newTestEngine(t)
	sample := MeshPoints{Source: Front, Points: face(0.4)}

	scale, err := e.AdjustScale(Beard, 2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, scale)
	require.NoError(t, e.Select("clown-nose"))
	e.Update(sample)
	require.NoError(t, e.Select("goatee"))

	slots := e.Update(sample)
	assert.InDelta(t, 0.07*2, slots[Beard].Scale, 1e-9)

	_, err = e.AdjustScale(Beard, 0)
	assert.ErrorIs(t, err, ErrInvalidScale)
	_, err = e.AdjustScale(Category(7), 1)
	assert.ErrorIs(t, err, ErrInvalidScale)
	_, err = e.AdjustScale(Nose, math.Inf(1))
	assert.ErrorIs(t, err, ErrInvalidScale)
}

func TestParseCategory(t *testing.T) {
	for c := Category(0); c < NumCategories; c++ {
		got, err := ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCategory("hat")
	assert.Error(t, err)
}

func TestSourceSwitchDebounce(t *testing.T) {
	e, clk := newTestEngine(t)
	require.NoError(t, e.Select("clown-nose"))

	e.Update(MeshPoints{Source: Front, Points: face(0.4)})
	require.True(t, e.Slots()[Nose].Visible)

	e.BeginSourceSwitch(Rear)
	assert.Empty(t, visible(e.Slots()))
	assert.True(t, e.Switching())
	assert.Equal(t, Rear, e.Active())

	// inside the window every sample is ignored
	clk.Step(time.Second)
	assert.Empty(t, visible(e.Update(CoarseAnchor{Source: Rear, Origin: Vec3{Z: 1}})))

	// after the window, stale front samples stay hidden
	clk.Step(600 * time.Millisecond)
	assert.False(t, e.Switching())
	assert.Empty(t, visible(e.Update(MeshPoints{Source: Front, Points: face(0.4)})))

	// and the first rear sample shows the overlay again
	slots := e.Update(CoarseAnchor{Source: Rear, Origin: Vec3{Z: 1}})
	assert.Equal(t, []Category{Nose}, visible(slots))
	assert.True(t, slots[Nose].Billboard)
}

func TestSourceSwitchWithEmptyMesh(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.Select("round-specs"))
	e.Update(MeshPoints{Source: Front, Points: face(0.3)})

	e.BeginSourceSwitch(Rear)
	slots := e.Update(MeshPoints{Source: Front})

	for _, s := range slots {
		assert.False(t, s.Visible)
	}
}

func TestTrackingStatus(t *testing.T) {
	assert.Equal(t, "tracking unavailable", TrackingStatus(TrackingUnavailable))
	assert.Equal(t, "insufficient features", TrackingStatus(TrackingInsufficientFeatures))
	assert.Equal(t, "excessive motion", TrackingStatus(TrackingExcessiveMotion))
	assert.Equal(t, "relocalizing", TrackingStatus(TrackingRelocalizing))
	assert.Equal(t, "normal", TrackingStatus(TrackingNormal))
}

func TestParseCameraPosition(t *testing.T) {
	p, err := ParseCameraPosition("rear")
	require.NoError(t, err)
	assert.Equal(t, Rear, p)
	assert.Equal(t, Front, p.Other())

	_, err = ParseCameraPosition("top")
	assert.Error(t, err)
}
