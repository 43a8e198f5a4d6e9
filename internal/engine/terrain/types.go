// Package terrain implements view-dependent level of detail for height fields:
// a quad-tree of blocks is simplified against a screen-space threshold into
// triangle strips, and T-junctions between blocks of different detail are
// closed with triangle fans.
package terrain

import "github.com/Faultbox/falcon-terrain/pkg/math"

// Vertex is the GPU vertex layout of a height field sample.
// The vertex buffer holds one Vertex per sample, in HeightField index order,
// so primitive indices address it directly. Texture coordinates are derived
// from Position against the bound tile rectangle, so none are stored.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	Shade    float32 // baked sun term, 0..1
}

// Bounds holds the axis-aligned bounding box of the terrain.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// AABB converts to the math type.
func (b Bounds) AABB() math.AABB {
	return math.AABB{
		Min: math.Vec3{X: b.Min[0], Y: b.Min[1], Z: b.Min[2]},
		Max: math.Vec3{X: b.Max[0], Y: b.Max[1], Z: b.Max[2]},
	}
}
