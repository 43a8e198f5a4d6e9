package lighting

import (
	gomath "math"
	"testing"

	"github.com/Faultbox/falcon-terrain/internal/config"
	"github.com/Faultbox/falcon-terrain/internal/engine/terrain"
	"github.com/Faultbox/falcon-terrain/pkg/math"
)

func near(a, b float32) bool { return gomath.Abs(float64(a-b)) < 1e-4 }

func TestSunDirection(t *testing.T) {
	tests := []struct {
		name          string
		azimuth, elev float32
		want          math.Vec3
	}{
		{"zenith", 0, 90, math.Vec3{Z: 1}},
		{"east horizon", 0, 0, math.Vec3{X: 1}},
		{"north horizon", 90, 0, math.Vec3{Y: 1}},
		{"south-west 45", 225, 45, math.Vec3{X: -0.5, Y: -0.5, Z: 0.70710677}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SunDirection(tt.azimuth, tt.elev)
			if !near(got.X, tt.want.X) || !near(got.Y, tt.want.Y) || !near(got.Z, tt.want.Z) {
				t.Errorf("SunDirection(%v, %v) = %+v, want %+v", tt.azimuth, tt.elev, got, tt.want)
			}
			if !near(got.Length(), 1) {
				t.Errorf("length = %v, want 1", got.Length())
			}
		})
	}
}

func TestShading_MatchesDefault(t *testing.T) {
	got := Shading(config.Default().Terrain)
	want := terrain.DefaultShading()

	if !near(got.Ambient, want.Ambient) {
		t.Errorf("ambient = %v, want %v", got.Ambient, want.Ambient)
	}
	if !near(got.SunDir.Dot(want.SunDir), 1) {
		t.Errorf("sun = %+v, want %+v", got.SunDir, want.SunDir)
	}
}
