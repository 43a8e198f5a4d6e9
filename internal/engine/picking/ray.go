// Package picking provides ray casting against terrain height fields.
package picking

import (
	gomath "math"

	"github.com/Faultbox/falcon-terrain/internal/engine/terrain"
	"github.com/Faultbox/falcon-terrain/pkg/math"
)

// Ray represents a ray in 3D space with origin and direction.
type Ray struct {
	Origin    math.Vec3
	Direction math.Vec3 // Normalized direction
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float32) math.Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// ScreenToRay converts screen coordinates to a world-space ray.
// screenX, screenY are pixel coordinates, viewportW/H are viewport dimensions.
// invViewProj is the inverse of the view-projection matrix.
func ScreenToRay(screenX, screenY, viewportW, viewportH float32, invViewProj math.Mat4) Ray {
	ndcX := 2.0*screenX/viewportW - 1.0
	ndcY := 1.0 - 2.0*screenY/viewportH // Flip Y

	near := unproject(invViewProj, math.Vec4{ndcX, ndcY, -1.0, 1.0})
	far := unproject(invViewProj, math.Vec4{ndcX, ndcY, 1.0, 1.0})

	return Ray{Origin: near, Direction: far.Sub(near).Normalize()}
}

func unproject(inv math.Mat4, ndc math.Vec4) math.Vec3 {
	p := inv.MulVec4(ndc)
	if p[3] != 0 {
		p[0] /= p[3]
		p[1] /= p[3]
		p[2] /= p[3]
	}
	return math.Vec3{X: p[0], Y: p[1], Z: p[2]}
}

// IntersectPlaneZ intersects a ray with a horizontal plane at height z.
func (r Ray) IntersectPlaneZ(z float32) (x, y float32, ok bool) {
	if gomath.Abs(float64(r.Direction.Z)) < 0.001 {
		return 0, 0, false // Ray parallel to plane
	}

	t := (z - r.Origin.Z) / r.Direction.Z
	if t < 0 {
		return 0, 0, false // Intersection behind ray origin
	}
	p := r.At(t)
	return p.X, p.Y, true
}

// IntersectAABB returns the entry and exit distances of the ray through box.
// If the ray starts inside the box, tmin is 0.
func (r Ray) IntersectAABB(box math.AABB) (tmin, tmax float32, hit bool) {
	tmin = 0
	tmax = float32(gomath.MaxFloat32)

	o, d := r.Origin.Array(), r.Direction.Array()
	lo, hi := box.Min.Array(), box.Max.Array()
	for axis := 0; axis < 3; axis++ {
		if d[axis] == 0 {
			if o[axis] < lo[axis] || o[axis] > hi[axis] {
				return 0, 0, false
			}
			continue
		}
		t1 := (lo[axis] - o[axis]) / d[axis]
		t2 := (hi[axis] - o[axis]) / d[axis]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
		if tmax < tmin {
			return 0, 0, false
		}
	}
	return tmin, tmax, true
}

// Hit is a ray hit on a height field.
type Hit struct {
	Point    math.Vec3
	Distance float32
	Col, Row int // nearest lattice vertex
}

// refineSteps bisects the last march interval.
const refineSteps = 12

// RaycastField marches the ray over the field's box in half-spacing steps
// and returns the first point where it drops below the surface.
func RaycastField(field *terrain.HeightField, r Ray, maxDist float32) (Hit, bool) {
	lo, hi := field.MinMax()
	o, w := field.Origin(), field.WorldSize()
	// Extend below the lowest point so flat fields still have a march interval.
	box := math.AABB{
		Min: math.Vec3{X: o.X, Y: o.Y, Z: lo - field.Spacing()},
		Max: math.Vec3{X: o.X + w, Y: o.Y + w, Z: hi},
	}
	tmin, tmax, ok := r.IntersectAABB(box)
	if !ok || tmin > maxDist {
		return Hit{}, false
	}
	tmax = min(tmax, maxDist)

	above := func(t float32) bool {
		p := r.At(t)
		return p.Z >= field.InterpolatedElevation(p.X, p.Y)
	}

	step := field.Spacing() / 2
	prev := tmin
	if !above(prev) {
		return makeHit(field, r, prev), true
	}
	for t := tmin + step; ; t += step {
		t = min(t, tmax)
		if !above(t) {
			a, b := prev, t
			for i := 0; i < refineSteps; i++ {
				m := (a + b) / 2
				if above(m) {
					a = m
				} else {
					b = m
				}
			}
			return makeHit(field, r, b), true
		}
		if t >= tmax {
			return Hit{}, false
		}
		prev = t
	}
}

func makeHit(field *terrain.HeightField, r Ray, t float32) Hit {
	p := r.At(t)
	o, s := field.Origin(), field.Spacing()
	last := field.Size() - 1
	col := min(max(int(gomath.Round(float64((p.X-o.X)/s))), 0), last)
	row := min(max(int(gomath.Round(float64((p.Y-o.Y)/s))), 0), last)
	p.Z = field.InterpolatedElevation(p.X, p.Y)
	return Hit{Point: p, Distance: t, Col: col, Row: row}
}
