package terrain

import (
	"fmt"
	gomath "math"

	"github.com/Faultbox/falcon-terrain/pkg/math"
)

// Method selects the screen-size estimate used for LOD decisions.
type Method int

const (
	// MethodColumn projects the top and bottom of the block's vertical center column.
	MethodColumn Method = iota
	// MethodCorners uses the screen rectangle of all eight box corners.
	MethodCorners
	// MethodPlaneBand is MethodColumn over the best-fit plane band instead of min/max.
	MethodPlaneBand
	// MethodDistance scales the block extent by focal length over camera distance.
	MethodDistance
)

var methodNames = [...]string{
	MethodColumn:    "column",
	MethodCorners:   "corners",
	MethodPlaneBand: "plane_band",
	MethodDistance:  "distance",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseMethod maps a config name to a Method.
func ParseMethod(name string) (Method, error) {
	for i, n := range methodNames {
		if n == name {
			return Method(i), nil
		}
	}
	return MethodColumn, fmt.Errorf("unknown tessellate method %q", name)
}

// ViewState is the per-frame camera input to tessellation.
type ViewState struct {
	View       math.Mat4
	Projection math.Mat4
	Viewport   math.Viewport
	Eye        math.Vec3

	viewProj math.Mat4
	frustum  math.Frustum
	focal    float32 // pixels per world unit at depth 1
}

// NewViewState derives the combined matrix, frustum and eye position.
func NewViewState(view, projection math.Mat4, viewport math.Viewport) ViewState {
	inv := view.Inverse()
	vp := projection.Mul(view)
	return ViewState{
		View:       view,
		Projection: projection,
		Viewport:   viewport,
		Eye:        math.Vec3{X: inv[12], Y: inv[13], Z: inv[14]},
		viewProj:   vp,
		frustum:    math.FrustumFromMatrix(vp),
		focal:      viewport.Height / 2 * projection[5],
	}
}

// ViewProjection returns Projection * View.
func (v *ViewState) ViewProjection() math.Mat4 { return v.viewProj }

// Frustum returns the clip planes of the view.
func (v *ViewState) Frustum() *math.Frustum { return &v.frustum }

// FocalPixels returns the number of pixels spanned by one world unit at depth 1.
func (v *ViewState) FocalPixels() float32 { return v.focal }

var inf = float32(gomath.Inf(1))

// screenSize estimates how large block b appears on screen, in pixels.
// Anything projecting at or behind the eye returns +Inf.
func (t *Tessellator) screenSize(b *Block, box math.AABB) float32 {
	switch t.settings.Method {
	case MethodCorners:
		return t.cornersSize(box)
	case MethodPlaneBand:
		cx, cy := t.tree.center(b)
		half := b.Thickness / 2
		return t.columnSize(cx, cy, b.MeanZ+half, b.MeanZ-half)
	case MethodDistance:
		return t.distanceSize(b, box)
	default:
		cx, cy := t.tree.center(b)
		return t.columnSize(cx, cy, b.MaxZ, b.MinZ)
	}
}

func (t *Tessellator) columnSize(cx, cy, top, bottom float32) float32 {
	v := &t.view
	a, ok := math.Project(v.viewProj, v.Viewport, math.Vec3{X: cx, Y: cy, Z: top})
	if !ok {
		return inf
	}
	c, ok := math.Project(v.viewProj, v.Viewport, math.Vec3{X: cx, Y: cy, Z: bottom})
	if !ok {
		return inf
	}

	dx := a.X - c.X
	dy := a.Y - c.Y
	// Depth difference expressed in pixels at the column's mean depth.
	meanDepth := (a.W + c.W) / 2
	dz := float32(gomath.Abs(float64(a.W-c.W))) * v.focal / meanDepth * t.settings.ZWeight

	return float32(gomath.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
}

func (t *Tessellator) cornersSize(box math.AABB) float32 {
	v := &t.view
	minX, minY := inf, inf
	maxX, maxY := -inf, -inf
	for _, p := range box.Corners() {
		sp, ok := math.Project(v.viewProj, v.Viewport, p)
		if !ok {
			return inf
		}
		minX = min(minX, sp.X)
		minY = min(minY, sp.Y)
		maxX = max(maxX, sp.X)
		maxY = max(maxY, sp.Y)
	}
	dx := maxX - minX
	dy := maxY - minY
	return float32(gomath.Sqrt(float64(dx*dx + dy*dy)))
}

func (t *Tessellator) distanceSize(b *Block, box math.AABB) float32 {
	v := &t.view
	// Reject points behind the eye the same way the projecting methods do.
	if sp, ok := math.Project(v.viewProj, v.Viewport, box.Center()); !ok || sp.W <= 0 {
		return inf
	}
	d := box.Center().Distance(v.Eye)
	if d <= 0 {
		return inf
	}
	footprint := float32(b.Stride) * t.field.Spacing()
	extent := footprint + (b.MaxZ-b.MinZ)*t.settings.ZWeight
	return extent * v.focal / d
}
