package math

import "math"

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min Vec3
	Max Vec3
}

// Center returns the box center.
func (b AABB) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Corners returns the eight box corners, bottom face (Min.Z) first.
func (b AABB) Corners() [8]Vec3 {
	return [8]Vec3{
		{b.Min.X, b.Min.Y, b.Min.Z},
		{b.Max.X, b.Min.Y, b.Min.Z},
		{b.Max.X, b.Max.Y, b.Min.Z},
		{b.Min.X, b.Max.Y, b.Min.Z},
		{b.Min.X, b.Min.Y, b.Max.Z},
		{b.Max.X, b.Min.Y, b.Max.Z},
		{b.Max.X, b.Max.Y, b.Max.Z},
		{b.Min.X, b.Max.Y, b.Max.Z},
	}
}

// Contains reports whether p lies inside or on the box.
func (b AABB) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Plane is the set of points p with Normal·p + D = 0.
// Points with a positive distance lie on the inner side.
type Plane struct {
	Normal Vec3
	D      float32
}

// Distance returns the signed distance of p to the plane.
// The value is only a true distance when Normal is unit length.
func (p Plane) Distance(v Vec3) float32 {
	return p.Normal.Dot(v) + p.D
}

func planeFromVec4(v Vec4) Plane {
	n := Vec3{v[0], v[1], v[2]}
	l := n.Length()
	if l == 0 {
		return Plane{Normal: n, D: v[3]}
	}
	return Plane{Normal: n.Scale(1 / l), D: v[3] / l}
}

// Frustum planes, in extraction order.
const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// Frustum is a six-plane view volume with inward-facing normals.
type Frustum struct {
	Planes [6]Plane
}

// FrustumFromMatrix extracts the clip planes of a combined view-projection matrix
// (Gribb/Hartmann). Planes are normalized.
func FrustumFromMatrix(viewProj Mat4) Frustum {
	r0 := viewProj.Row(0)
	r1 := viewProj.Row(1)
	r2 := viewProj.Row(2)
	r3 := viewProj.Row(3)

	add := func(a, b Vec4) Vec4 { return Vec4{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]} }
	sub := func(a, b Vec4) Vec4 { return Vec4{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]} }

	var f Frustum
	f.Planes[PlaneLeft] = planeFromVec4(add(r3, r0))
	f.Planes[PlaneRight] = planeFromVec4(sub(r3, r0))
	f.Planes[PlaneBottom] = planeFromVec4(add(r3, r1))
	f.Planes[PlaneTop] = planeFromVec4(sub(r3, r1))
	f.Planes[PlaneNear] = planeFromVec4(add(r3, r2))
	f.Planes[PlaneFar] = planeFromVec4(sub(r3, r2))
	return f
}

// IntersectsAABB reports whether any part of the box may be inside the frustum.
// For each plane the box corner furthest along the plane normal is tested;
// the box is rejected only when that corner is behind the plane.
func (f *Frustum) IntersectsAABB(b AABB) bool {
	for _, p := range f.Planes {
		v := b.Min
		if p.Normal.X >= 0 {
			v.X = b.Max.X
		}
		if p.Normal.Y >= 0 {
			v.Y = b.Max.Y
		}
		if p.Normal.Z >= 0 {
			v.Z = b.Max.Z
		}
		if p.Distance(v) < 0 {
			return false
		}
	}
	return true
}

// ContainsPoint reports whether p is inside all six planes.
func (f *Frustum) ContainsPoint(v Vec3) bool {
	for _, p := range f.Planes {
		if p.Distance(v) < 0 {
			return false
		}
	}
	return true
}

// Viewport is a window rectangle in pixels.
type Viewport struct {
	X, Y          float32
	Width, Height float32
}

// ScreenPoint is a point projected into window coordinates.
// W is the clip-space w, which equals the eye-space depth for perspective projections.
type ScreenPoint struct {
	X, Y, Depth float32
	W           float32
}

// Project maps a world point through viewProj into window coordinates,
// like gluProject. ok is false when the point is at or behind the eye plane.
func Project(viewProj Mat4, vp Viewport, p Vec3) (sp ScreenPoint, ok bool) {
	c := viewProj.Clip(p)
	w := c[3]
	if w <= 1e-6 || math.IsNaN(float64(w)) {
		return ScreenPoint{W: w}, false
	}
	ndcX := c[0] / w
	ndcY := c[1] / w
	ndcZ := c[2] / w
	return ScreenPoint{
		X:     vp.X + (ndcX+1)*0.5*vp.Width,
		Y:     vp.Y + (ndcY+1)*0.5*vp.Height,
		Depth: (ndcZ + 1) * 0.5,
		W:     w,
	}, true
}
