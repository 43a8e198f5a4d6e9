package terrain

import (
	"errors"
	"fmt"

	"github.com/Faultbox/falcon-terrain/pkg/math"
)

var (
	// ErrInvalidDimensions is returned when a height field is not square with a 2^k+1 side.
	ErrInvalidDimensions = errors.New("height field must be square with 2^k+1 vertices per side")
	// ErrElevationLength is returned when the elevation slice does not match the dimensions.
	ErrElevationLength = errors.New("elevation count does not match dimensions")
	// ErrInvalidSpacing is returned for a non-positive vertex spacing.
	ErrInvalidSpacing = errors.New("vertex spacing must be positive")
)

// HeightField is a square grid of elevation samples.
// Vertex (col,row) sits at world (origin.X + col*spacing, origin.Y + row*spacing, elevation).
// Z is up.
type HeightField struct {
	size    int
	spacing float32
	origin  math.Vec2
	elev    []float32
	normals []math.Vec3 // nil until ComputeNormals
}

// NewHeightField builds a height field from row-major elevations.
// The elevations are copied.
func NewHeightField(width, height int, spacing float32, elevations []float32) (*HeightField, error) {
	if err := validateDimensions(width, height); err != nil {
		return nil, err
	}
	if spacing <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpacing, spacing)
	}
	if len(elevations) != width*height {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrElevationLength, len(elevations), width*height)
	}

	elev := make([]float32, len(elevations))
	copy(elev, elevations)
	return &HeightField{size: width, spacing: spacing, elev: elev}, nil
}

// NewFlatHeightField returns a zero-elevation field of size x size vertices.
func NewFlatHeightField(size int, spacing float32) (*HeightField, error) {
	return NewHeightField(size, size, spacing, make([]float32, size*size))
}

func validateDimensions(width, height int) error {
	if width != height {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if !ValidSize(width) {
		return fmt.Errorf("%w: %d", ErrInvalidDimensions, width)
	}
	return nil
}

// ValidSize reports whether n is 2^k+1 with k >= 1.
func ValidSize(n int) bool {
	m := n - 1
	return m >= 2 && m&(m-1) == 0
}

// Size returns the number of vertices per side.
func (h *HeightField) Size() int { return h.size }

// Spacing returns the world distance between adjacent samples.
func (h *HeightField) Spacing() float32 { return h.spacing }

// Origin returns the world position of vertex (0,0) on the ground plane.
func (h *HeightField) Origin() math.Vec2 { return h.origin }

// SetOrigin moves the field in world space. Used by lattice tiles.
func (h *HeightField) SetOrigin(o math.Vec2) { h.origin = o }

// WorldSize returns the side length covered by the field in world units.
func (h *HeightField) WorldSize() float32 {
	return float32(h.size-1) * h.spacing
}

// VertexCount returns size*size.
func (h *HeightField) VertexCount() int { return len(h.elev) }

// Index returns the flat index of vertex (col,row).
func (h *HeightField) Index(col, row int) int {
	return row*h.size + col
}

// Coords is the inverse of Index.
func (h *HeightField) Coords(i int) (col, row int) {
	return i % h.size, i / h.size
}

// Elevation returns the elevation of vertex i.
func (h *HeightField) Elevation(i int) float32 { return h.elev[i] }

// ElevationAt returns the elevation of vertex (col,row).
func (h *HeightField) ElevationAt(col, row int) float32 {
	return h.elev[h.Index(col, row)]
}

// Elevations exposes the backing slice. Callers must not resize it.
func (h *HeightField) Elevations() []float32 { return h.elev }

// Position returns the world position of vertex i.
func (h *HeightField) Position(i int) math.Vec3 {
	col, row := h.Coords(i)
	return math.Vec3{
		X: h.origin.X + float32(col)*h.spacing,
		Y: h.origin.Y + float32(row)*h.spacing,
		Z: h.elev[i],
	}
}

// SetElevation changes one sample. Block bounds are not updated here;
// call BlockTree.RefreshBounds afterwards.
func (h *HeightField) SetElevation(col, row int, z float32) {
	i := h.Index(col, row)
	h.elev[i] = z
	if h.normals == nil {
		return
	}
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			c, r := col+dc, row+dr
			if c >= 0 && r >= 0 && c < h.size && r < h.size {
				h.normals[h.Index(c, r)] = h.normalAt(c, r)
			}
		}
	}
}

// MinMax returns the lowest and highest elevation in the field.
func (h *HeightField) MinMax() (lo, hi float32) {
	lo, hi = h.elev[0], h.elev[0]
	for _, z := range h.elev[1:] {
		lo = min(lo, z)
		hi = max(hi, z)
	}
	return lo, hi
}

// InterpolatedElevation returns the bilinearly interpolated elevation at a world position.
// Positions outside the field are clamped to its border.
func (h *HeightField) InterpolatedElevation(worldX, worldY float32) float32 {
	fx := (worldX - h.origin.X) / h.spacing
	fy := (worldY - h.origin.Y) / h.spacing

	col := int(fx)
	row := int(fy)

	// Clamp to valid cell range
	if col < 0 {
		col = 0
	}
	if row < 0 {
		row = 0
	}
	if col >= h.size-1 {
		col = h.size - 2
	}
	if row >= h.size-1 {
		row = h.size - 2
	}

	fracX := clampf(fx-float32(col), 0, 1)
	fracY := clampf(fy-float32(row), 0, 1)

	z00 := h.ElevationAt(col, row)
	z10 := h.ElevationAt(col+1, row)
	z01 := h.ElevationAt(col, row+1)
	z11 := h.ElevationAt(col+1, row+1)

	south := z00*(1-fracX) + z10*fracX
	north := z01*(1-fracX) + z11*fracX
	return south*(1-fracY) + north*fracY
}

// ComputeNormals derives per-vertex normals from central differences.
func (h *HeightField) ComputeNormals() {
	if h.normals == nil {
		h.normals = make([]math.Vec3, len(h.elev))
	}
	for row := range h.size {
		for col := range h.size {
			h.normals[h.Index(col, row)] = h.normalAt(col, row)
		}
	}
}

// HasNormals reports whether ComputeNormals has run.
func (h *HeightField) HasNormals() bool { return h.normals != nil }

// Normal returns the normal of vertex i, or +Z if normals were never computed.
func (h *HeightField) Normal(i int) math.Vec3 {
	if h.normals == nil {
		return math.Vec3{Z: 1}
	}
	return h.normals[i]
}

func (h *HeightField) normalAt(col, row int) math.Vec3 {
	l := h.ElevationAt(max(col-1, 0), row)
	r := h.ElevationAt(min(col+1, h.size-1), row)
	d := h.ElevationAt(col, max(row-1, 0))
	u := h.ElevationAt(col, min(row+1, h.size-1))

	dx := float32(min(col+1, h.size-1)-max(col-1, 0)) * h.spacing
	dy := float32(min(row+1, h.size-1)-max(row-1, 0)) * h.spacing

	n := math.Vec3{X: -(r - l) / dx, Y: -(u - d) / dy, Z: 1}
	return n.Normalize()
}

func clampf(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
