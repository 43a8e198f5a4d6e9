// Package lighting derives terrain shading from sun position.
package lighting

import (
	gomath "math"

	"github.com/Faultbox/falcon-terrain/internal/config"
	"github.com/Faultbox/falcon-terrain/internal/engine/terrain"
	"github.com/Faultbox/falcon-terrain/pkg/math"
)

// SunDirection converts azimuth/elevation angles in degrees to a normalized
// vector pointing towards the sun. Azimuth counts from +X toward +Y,
// elevation from the horizon toward +Z.
func SunDirection(azimuth, elevation float32) math.Vec3 {
	az := float64(azimuth) * gomath.Pi / 180.0
	el := float64(elevation) * gomath.Pi / 180.0

	return math.Vec3{
		X: float32(gomath.Cos(el) * gomath.Cos(az)),
		Y: float32(gomath.Cos(el) * gomath.Sin(az)),
		Z: float32(gomath.Sin(el)),
	}
}

// Shading builds vertex shading parameters from terrain configuration.
func Shading(tc config.TerrainConfig) terrain.Shading {
	return terrain.Shading{
		SunDir:  SunDirection(tc.SunAzimuth, tc.SunElevation),
		Ambient: tc.Ambient,
	}
}
