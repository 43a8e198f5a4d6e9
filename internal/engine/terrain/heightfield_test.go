package terrain

import (
	"errors"
	"testing"

	"github.com/Faultbox/falcon-terrain/pkg/math"
)

func TestNewHeightField_Dimensions(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantErr       error
	}{
		{"smallest", 3, 3, nil},
		{"9x9", 9, 9, nil},
		{"257", 257, 257, nil},
		{"not square", 9, 5, ErrInvalidDimensions},
		{"power of two", 8, 8, ErrInvalidDimensions},
		{"too small", 2, 2, ErrInvalidDimensions},
		{"single vertex", 1, 1, ErrInvalidDimensions},
		{"off by two", 11, 11, ErrInvalidDimensions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHeightField(tt.width, tt.height, 1, make([]float32, tt.width*tt.height))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewHeightField_ElevationLength(t *testing.T) {
	_, err := NewHeightField(5, 5, 1, make([]float32, 24))
	if !errors.Is(err, ErrElevationLength) {
		t.Errorf("expected ErrElevationLength, got %v", err)
	}
}

func TestNewHeightField_Spacing(t *testing.T) {
	_, err := NewHeightField(3, 3, 0, make([]float32, 9))
	if !errors.Is(err, ErrInvalidSpacing) {
		t.Errorf("expected ErrInvalidSpacing, got %v", err)
	}
}

func TestNewHeightField_CopiesElevations(t *testing.T) {
	src := make([]float32, 9)
	h, err := NewHeightField(3, 3, 1, src)
	if err != nil {
		t.Fatal(err)
	}
	src[4] = 7
	if h.Elevation(4) != 0 {
		t.Error("height field shares the caller's slice")
	}
}

func TestHeightField_IndexCoords(t *testing.T) {
	h, _ := NewFlatHeightField(9, 1)

	if got := h.Index(3, 2); got != 21 {
		t.Errorf("Index(3,2) = %d, want 21", got)
	}
	col, row := h.Coords(21)
	if col != 3 || row != 2 {
		t.Errorf("Coords(21) = (%d,%d), want (3,2)", col, row)
	}
	if h.WorldSize() != 8 {
		t.Errorf("WorldSize = %v, want 8", h.WorldSize())
	}
}

func TestHeightField_Position(t *testing.T) {
	h, _ := NewFlatHeightField(5, 2.5)
	h.SetOrigin(math.Vec2{X: 100, Y: -50})
	h.SetElevation(2, 3, 12)

	p := h.Position(h.Index(2, 3))
	want := math.Vec3{X: 105, Y: -42.5, Z: 12}
	if p != want {
		t.Errorf("Position = %+v, want %+v", p, want)
	}
}

func TestHeightField_InterpolatedElevation(t *testing.T) {
	h, _ := NewHeightField(3, 3, 2, []float32{
		0, 2, 4,
		2, 4, 6,
		4, 6, 8,
	})

	tests := []struct {
		x, y float32
		want float32
	}{
		{0, 0, 0},
		{2, 0, 2},
		{1, 1, 2},
		{3, 3, 6},
		{4, 4, 8},
		{-10, -10, 0}, // clamped
		{50, 50, 8},   // clamped
	}

	for _, tt := range tests {
		if got := h.InterpolatedElevation(tt.x, tt.y); absf(got-tt.want) > 1e-5 {
			t.Errorf("InterpolatedElevation(%v,%v) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestHeightField_Normals(t *testing.T) {
	h, _ := NewFlatHeightField(5, 1)
	if n := h.Normal(0); n != (math.Vec3{Z: 1}) {
		t.Errorf("normal before ComputeNormals = %+v, want +Z", n)
	}

	// z = x: normal tilts towards -X.
	for row := range 5 {
		for col := range 5 {
			h.SetElevation(col, row, float32(col))
		}
	}
	h.ComputeNormals()

	n := h.Normal(h.Index(2, 2))
	if n.X >= 0 || absf(n.Y) > 1e-6 || n.Z <= 0 {
		t.Errorf("unexpected normal on slope: %+v", n)
	}
	if absf(n.X+n.Z) > 1e-5 {
		t.Errorf("expected 45 degree normal, got %+v", n)
	}

	// Editing keeps neighbor normals current.
	h.SetElevation(2, 2, 2)
	if got := h.Normal(h.Index(2, 2)); got != n {
		t.Errorf("unchanged edit moved normal: %+v vs %+v", got, n)
	}
}

func TestHeightField_MinMax(t *testing.T) {
	h, _ := NewFlatHeightField(3, 1)
	h.SetElevation(0, 2, -4)
	h.SetElevation(2, 0, 9)

	lo, hi := h.MinMax()
	if lo != -4 || hi != 9 {
		t.Errorf("MinMax = (%v,%v), want (-4,9)", lo, hi)
	}
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
