package scene

import (
	gomath "math"

	"github.com/Faultbox/falcon-terrain/internal/engine/terrain"
)

// DemoField generates rolling hills from a few octaves of value noise.
// The same seed always gives the same field.
func DemoField(size int, spacing float32, seed uint32) (*terrain.HeightField, error) {
	if !terrain.ValidSize(size) {
		return terrain.NewHeightField(size, size, spacing, nil)
	}

	elev := make([]float32, size*size)
	amp, freq := float64(spacing)*12, 1.0/32
	for octave := 0; octave < 5; octave++ {
		for row := range size {
			for col := range size {
				elev[row*size+col] += float32(amp * valueNoise(float64(col)*freq, float64(row)*freq, seed+uint32(octave)))
			}
		}
		amp *= 0.45
		freq *= 2
	}
	return terrain.NewHeightField(size, size, spacing, elev)
}

// valueNoise interpolates hashed lattice values with a smoothstep, range [-1,1].
func valueNoise(x, y float64, seed uint32) float64 {
	x0, y0 := gomath.Floor(x), gomath.Floor(y)
	fx, fy := smooth(x-x0), smooth(y-y0)
	ix, iy := int32(x0), int32(y0)

	v00 := lattice2(ix, iy, seed)
	v10 := lattice2(ix+1, iy, seed)
	v01 := lattice2(ix, iy+1, seed)
	v11 := lattice2(ix+1, iy+1, seed)

	a := v00 + (v10-v00)*fx
	b := v01 + (v11-v01)*fx
	return a + (b-a)*fy
}

func smooth(t float64) float64 { return t * t * (3 - 2*t) }

func lattice2(x, y int32, seed uint32) float64 {
	h := uint32(x)*0x8da6b343 ^ uint32(y)*0xd8163841 ^ seed*0xcb1ab31f
	h ^= h >> 13
	h *= 0x5bd1e995
	h ^= h >> 15
	return float64(h)/float64(^uint32(0))*2 - 1
}
