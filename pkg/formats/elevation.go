package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	gomath "math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
)

// Elevation raster errors.
var (
	ErrUnsupportedElevation = errors.New("unsupported elevation format")
	ErrElevationNotSquare   = errors.New("elevation raster must be square with 2^k+1 samples per side")
)

// Elevation is a decoded square elevation raster, row-major.
type Elevation struct {
	Size    int
	Heights []float32
}

// DecodeElevation decodes PNG or BMP grayscale (0..255 per unit of scale,
// 16-bit PNG keeps its precision) or raw little-endian float32 (.f32).
// name selects the raw format; images are detected by signature.
func DecodeElevation(data []byte, name string, scale float32) (*Elevation, error) {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding png elevation: %w", err)
		}
		return elevationFromImage(img, scale)
	case bytes.HasPrefix(data, []byte("BM")):
		img, err := bmp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding bmp elevation: %w", err)
		}
		return elevationFromImage(img, scale)
	case strings.EqualFold(filepath.Ext(name), ".f32"):
		return elevationFromFloat32(data, scale)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedElevation, name)
	}
}

// ReadElevationFile decodes an elevation raster from disk.
func ReadElevationFile(path string, scale float32) (*Elevation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeElevation(data, path, scale)
}

func validSide(n int) bool {
	m := n - 1
	return m >= 2 && m&(m-1) == 0
}

func elevationFromImage(img image.Image, scale float32) (*Elevation, error) {
	b := img.Bounds()
	if b.Dx() != b.Dy() || !validSide(b.Dx()) {
		return nil, fmt.Errorf("%w: got %dx%d", ErrElevationNotSquare, b.Dx(), b.Dy())
	}

	n := b.Dx()
	e := &Elevation{Size: n, Heights: make([]float32, n*n)}
	for y := range n {
		for x := range n {
			var v float32
			switch px := img.At(b.Min.X+x, b.Min.Y+y).(type) {
			case color.Gray:
				v = float32(px.Y)
			case color.Gray16:
				v = float32(px.Y) / 257
			default:
				// 16-bit luminance scaled back to 0..255.
				v = float32(color.Gray16Model.Convert(px).(color.Gray16).Y) / 257
			}
			e.Heights[y*n+x] = v * scale
		}
	}
	return e, nil
}

func elevationFromFloat32(data []byte, scale float32) (*Elevation, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a float32 array", ErrElevationNotSquare, len(data))
	}
	count := len(data) / 4
	n := int(gomath.Sqrt(float64(count)))
	if n*n != count || !validSide(n) {
		return nil, fmt.Errorf("%w: %d samples", ErrElevationNotSquare, count)
	}

	e := &Elevation{Size: n, Heights: make([]float32, count)}
	for i := range e.Heights {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		e.Heights[i] = gomath.Float32frombits(bits) * scale
	}
	return e, nil
}

// EncodeFloat32 writes heights as raw little-endian float32, the .f32 layout.
func EncodeFloat32(heights []float32) []byte {
	out := make([]byte, len(heights)*4)
	for i, h := range heights {
		binary.LittleEndian.PutUint32(out[i*4:], gomath.Float32bits(h))
	}
	return out
}
