package camera

import (
	gomath "math"
	"testing"

	"github.com/Faultbox/falcon-terrain/pkg/math"
)

func near(a, b float32) bool { return gomath.Abs(float64(a-b)) < 1e-4 }

func TestFlightCamera_Forward(t *testing.T) {
	c := NewFlightCamera(math.Vec3{})

	f := c.Forward()
	if !near(f.X, 1) || !near(f.Y, 0) || !near(f.Z, 0) {
		t.Errorf("yaw 0 forward = %+v, want +X", f)
	}

	c.Yaw = gomath.Pi / 2
	f = c.Forward()
	if !near(f.Y, 1) {
		t.Errorf("yaw 90 forward = %+v, want +Y", f)
	}
	r := c.Right()
	if !near(r.X, 1) || !near(r.Z, 0) {
		t.Errorf("yaw 90 right = %+v, want +X", r)
	}
}

func TestFlightCamera_Move(t *testing.T) {
	c := NewFlightCamera(math.Vec3{X: 10, Y: 10, Z: 50})
	c.Speed = 2

	c.Move(1, 0, 0)
	if !near(c.Position.X, 12) || !near(c.Position.Z, 50) {
		t.Errorf("after forward: %+v", c.Position)
	}
	c.Move(0, 1, 0)
	if !near(c.Position.Y, 8) {
		t.Errorf("after right: %+v", c.Position)
	}
	c.Move(0, 0, -1)
	if !near(c.Position.Z, 48) {
		t.Errorf("after down: %+v", c.Position)
	}

	c.ClampAbove(47.5, 1)
	if !near(c.Position.Z, 48.5) {
		t.Errorf("ClampAbove: z = %v", c.Position.Z)
	}
}

func TestFlightCamera_TurnClampsPitch(t *testing.T) {
	c := NewFlightCamera(math.Vec3{})
	c.Turn(0, 10)
	if c.Pitch != maxPitch {
		t.Errorf("pitch = %v, want clamp %v", c.Pitch, maxPitch)
	}
	c.Turn(0, -20)
	if c.Pitch != -maxPitch {
		t.Errorf("pitch = %v, want clamp %v", c.Pitch, -maxPitch)
	}

	c.Turn(7, 0)
	if c.Yaw < -gomath.Pi || c.Yaw > gomath.Pi {
		t.Errorf("yaw %v not wrapped", c.Yaw)
	}
}

func TestFlightCamera_ViewState(t *testing.T) {
	c := NewFlightCamera(math.Vec3{X: 0, Y: 0, Z: 10})
	vs := c.ViewState(800, 600)

	if !near(vs.Eye.X, 0) || !near(vs.Eye.Z, 10) {
		t.Errorf("eye = %+v", vs.Eye)
	}
	ahead := math.Vec3{X: 100, Y: 0, Z: 10}
	behind := math.Vec3{X: -100, Y: 0, Z: 10}
	if !vs.Frustum().ContainsPoint(ahead) {
		t.Error("point ahead not in frustum")
	}
	if vs.Frustum().ContainsPoint(behind) {
		t.Error("point behind in frustum")
	}
	if vs.FocalPixels() <= 0 {
		t.Errorf("focal = %v", vs.FocalPixels())
	}
}

func TestOrbitCamera_FitToBounds(t *testing.T) {
	c := NewOrbitCamera()
	c.FitToBounds(math.AABB{Min: math.Vec3{}, Max: math.Vec3{X: 256, Y: 256, Z: 40}})

	if !near(c.Center.X, 128) || !near(c.Center.Y, 128) {
		t.Errorf("center = %+v", c.Center)
	}
	pos := c.Position()
	if pos.Z <= c.Center.Z {
		t.Errorf("camera below center: %+v", pos)
	}

	vs := c.ViewState(640, 480)
	if !vs.Frustum().ContainsPoint(c.Center) {
		t.Error("orbit center not visible")
	}
}

func TestOrbitCamera_Zoom(t *testing.T) {
	c := NewOrbitCamera()
	c.HandleZoom(100)
	if c.Distance != c.MinDistance {
		t.Errorf("distance = %v, want min", c.Distance)
	}
	c.HandleDrag(0, 1e6)
	if c.Pitch != c.MaxPitch {
		t.Errorf("pitch = %v, want max", c.Pitch)
	}
}
