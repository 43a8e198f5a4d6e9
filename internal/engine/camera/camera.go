// Package camera provides cameras for viewing terrain. World space is Z-up.
package camera

import (
	gomath "math"

	"github.com/Faultbox/falcon-terrain/internal/engine/terrain"
	"github.com/Faultbox/falcon-terrain/pkg/math"
)

// maxPitch keeps the view direction away from the up axis.
const maxPitch = 1.55

var worldUp = math.Vec3{Z: 1}

// FlightCamera is a free-flying camera.
type FlightCamera struct {
	Position math.Vec3
	Yaw      float32 // radians, 0 looks along +X, counter-clockwise seen from above
	Pitch    float32 // radians, positive looks up

	FOV       float32 // vertical field of view, degrees
	Near, Far float32

	Speed       float32 // world units per Move unit
	Sensitivity float32 // radians per Turn unit
}

// NewFlightCamera creates a camera at pos looking along +X.
func NewFlightCamera(pos math.Vec3) *FlightCamera {
	return &FlightCamera{
		Position:    pos,
		FOV:         60,
		Near:        1,
		Far:         5000,
		Speed:       1,
		Sensitivity: 1,
	}
}

// Forward returns the unit view direction.
func (c *FlightCamera) Forward() math.Vec3 {
	cp, sp := gomath.Cos(float64(c.Pitch)), gomath.Sin(float64(c.Pitch))
	cy, sy := gomath.Cos(float64(c.Yaw)), gomath.Sin(float64(c.Yaw))
	return math.Vec3{X: float32(cp * cy), Y: float32(cp * sy), Z: float32(sp)}
}

// Right returns the horizontal unit vector to the camera's right.
func (c *FlightCamera) Right() math.Vec3 {
	cy, sy := gomath.Cos(float64(c.Yaw)), gomath.Sin(float64(c.Yaw))
	return math.Vec3{X: float32(sy), Y: float32(-cy)}
}

// ViewMatrix returns the view matrix for this camera.
func (c *FlightCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position, c.Position.Add(c.Forward()), worldUp)
}

// ProjectionMatrix returns the perspective projection for the given aspect ratio.
func (c *FlightCamera) ProjectionMatrix(aspect float32) math.Mat4 {
	fov := c.FOV * gomath.Pi / 180
	return math.Perspective(fov, aspect, c.Near, c.Far)
}

// Move translates along the view direction, the horizontal right vector and world up.
func (c *FlightCamera) Move(forward, right, up float32) {
	d := c.Forward().Scale(forward).
		Add(c.Right().Scale(right)).
		Add(worldUp.Scale(up))
	c.Position = c.Position.Add(d.Scale(c.Speed))
}

// Turn changes yaw and pitch. Pitch is clamped short of straight up or down.
func (c *FlightCamera) Turn(dyaw, dpitch float32) {
	c.Yaw += dyaw * c.Sensitivity
	c.Pitch += dpitch * c.Sensitivity

	if c.Pitch > maxPitch {
		c.Pitch = maxPitch
	}
	if c.Pitch < -maxPitch {
		c.Pitch = -maxPitch
	}
	c.Yaw = float32(gomath.Remainder(float64(c.Yaw), 2*gomath.Pi))
}

// ClampAbove keeps the camera at least clearance above the ground height z.
func (c *FlightCamera) ClampAbove(z, clearance float32) {
	if c.Position.Z < z+clearance {
		c.Position.Z = z + clearance
	}
}

// ViewState builds the tessellation input for a width x height viewport.
func (c *FlightCamera) ViewState(width, height int) terrain.ViewState {
	return viewState(c.ViewMatrix(), c.ProjectionMatrix, width, height)
}

func viewState(view math.Mat4, proj func(float32) math.Mat4, width, height int) terrain.ViewState {
	if height <= 0 {
		height = 1
	}
	aspect := float32(width) / float32(height)
	vp := math.Viewport{Width: float32(width), Height: float32(height)}
	return terrain.NewViewState(view, proj(aspect), vp)
}

// OrbitCamera orbits around a center point.
type OrbitCamera struct {
	// Center point to orbit around
	Center math.Vec3

	// Spherical coordinates
	Distance float32 // Distance from center
	Pitch    float32 // elevation above the XY plane, radians
	Yaw      float32 // around Z, radians

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	FOV       float32
	Near, Far float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32
}

// NewOrbitCamera creates a new orbit camera with default settings.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Distance:        200.0,
		Pitch:           0.5,
		MinDistance:     5.0,
		MaxDistance:     20000.0,
		MinPitch:        0.1,
		MaxPitch:        maxPitch,
		FOV:             60,
		Near:            1,
		Far:             50000,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
	}
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() math.Vec3 {
	horiz := c.Distance * float32(gomath.Cos(float64(c.Pitch)))
	return math.Vec3{
		X: c.Center.X + horiz*float32(gomath.Cos(float64(c.Yaw))),
		Y: c.Center.Y + horiz*float32(gomath.Sin(float64(c.Yaw))),
		Z: c.Center.Z + c.Distance*float32(gomath.Sin(float64(c.Pitch))),
	}
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position(), c.Center, worldUp)
}

// ProjectionMatrix returns the perspective projection for the given aspect ratio.
func (c *OrbitCamera) ProjectionMatrix(aspect float32) math.Mat4 {
	return math.Perspective(c.FOV*gomath.Pi/180, aspect, c.Near, c.Far)
}

// ViewState builds the tessellation input for a width x height viewport.
func (c *OrbitCamera) ViewState(width, height int) terrain.ViewState {
	return viewState(c.ViewMatrix(), c.ProjectionMatrix, width, height)
}

// HandleDrag updates rotation based on mouse drag delta.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.Yaw -= deltaX * c.DragSensitivity
	c.Pitch += deltaY * c.DragSensitivity

	// Clamp pitch
	if c.Pitch < c.MinPitch {
		c.Pitch = c.MinPitch
	}
	if c.Pitch > c.MaxPitch {
		c.Pitch = c.MaxPitch
	}
}

// HandleZoom updates distance based on scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Distance * c.ZoomSensitivity
	if c.Distance < c.MinDistance {
		c.Distance = c.MinDistance
	}
	if c.Distance > c.MaxDistance {
		c.Distance = c.MaxDistance
	}
}

// FitToBounds centers the camera on a box and backs off far enough to see it.
func (c *OrbitCamera) FitToBounds(b math.AABB) {
	c.Center = b.Center()

	size := max(b.Max.X-b.Min.X, b.Max.Y-b.Min.Y)
	c.Distance = max(size*0.9, c.MinDistance)
	if c.Distance > c.MaxDistance {
		c.Distance = c.MaxDistance
	}
	c.Pitch = 0.6 // Look down at ~35 degrees
	c.Yaw = -gomath.Pi / 2
}
