package overlay

// MeshPointCount is the size of the face mesh produced by the tracker.
const MeshPointCount = 16

// Mesh landmark indices averaged for each category.
var meshIndices = [NumCategories][]int{
	Nose:    {4, 5, 6},
	Glasses: {0, 1, 2, 3},
	Beard:   {10, 11, 12, 13, 14},
}

// Per-category corrections applied to the mesh centroid. The beard sits
// lower and slightly forward of the jaw points.
var meshOffsets = [NumCategories]Vec3{
	Nose:    {0, 0, -0.010},
	Glasses: {0, 0.005, -0.015},
	Beard:   {0, -0.020, -0.010},
}

// Offsets from the coarse anchor origin when no mesh is available.
var fallbackOffsets = [NumCategories]Vec3{
	Nose:    {0, 0, -0.030},
	Glasses: {0, 0.035, -0.020},
	Beard:   {0, -0.070, -0.010},
}

// defaultOrigin is used when even the anchor is unusable.
var defaultOrigin = Vec3{0, 0, 0.5}

// centroid averages the points at idx. ok is false when no index falls inside
// points or every selected point is non-finite.
func centroid(points []Vec3, idx []int) (Vec3, bool) {
	var sum Vec3
	n := 0
	for _, i := range idx {
		if i < 0 || i >= len(points) || !points[i].IsFinite() {
			continue
		}
		sum = sum.Add(points[i])
		n++
	}
	if n == 0 {
		return Vec3{}, false
	}
	return sum.Scale(1 / float64(n)), true
}
