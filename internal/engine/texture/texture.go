// Package texture decodes terrain texture and elevation images and cuts them into tiles.
package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
)

// ErrAssetMissing is matched by every failure to find or decode an asset.
var ErrAssetMissing = errors.New("asset missing or unreadable")

// ErrNotPowerOfTwo is returned for texture dimensions that are not powers of two.
var ErrNotPowerOfTwo = errors.New("texture dimensions must be powers of two")

// AssetError reports which asset failed to load.
type AssetError struct {
	Path string
	Err  error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset %s: %v", e.Path, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }

// Is makes every AssetError match ErrAssetMissing.
func (e *AssetError) Is(target error) bool { return target == ErrAssetMissing }

// Decode decodes PNG, BMP or TGA data. name is only used to pick the
// format when the data has no recognizable signature (TGA has none).
func Decode(data []byte, name string) (*image.RGBA, error) {
	var (
		img image.Image
		err error
	)
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		img, err = png.Decode(bytes.NewReader(data))
	case bytes.HasPrefix(data, []byte("BM")):
		img, err = bmp.Decode(bytes.NewReader(data))
	case strings.EqualFold(filepath.Ext(name), ".tga"):
		return DecodeTGA(data)
	default:
		return nil, fmt.Errorf("unrecognized image format for %q", name)
	}
	if err != nil {
		return nil, err
	}
	return ToRGBA(img), nil
}

// Load reads and decodes an image file. All failures are *AssetError.
func Load(path string) (*image.RGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &AssetError{Path: path, Err: err}
	}
	img, err := Decode(data, path)
	if err != nil {
		return nil, &AssetError{Path: path, Err: err}
	}
	return img, nil
}

// ToRGBA converts any image to *image.RGBA anchored at (0,0).
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// CheckPowerOfTwo validates both dimensions of img.
func CheckPowerOfTwo(img image.Image) error {
	b := img.Bounds()
	if !IsPowerOfTwo(b.Dx()) || !IsPowerOfTwo(b.Dy()) {
		return fmt.Errorf("%w: %dx%d", ErrNotPowerOfTwo, b.Dx(), b.Dy())
	}
	return nil
}

// Crop copies the pixels of r out of img as tightly packed RGBA rows.
func Crop(img *image.RGBA, r image.Rectangle) []byte {
	r = r.Intersect(img.Rect)
	w := r.Dx() * 4
	out := make([]byte, 0, w*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := img.PixOffset(r.Min.X, y)
		out = append(out, img.Pix[i:i+w]...)
	}
	return out
}

// TileRect returns the pixel rectangle of tile (col,row) when img is cut
// into tilesPerSide x tilesPerSide equal tiles.
func TileRect(img image.Image, tilesPerSide, col, row int) image.Rectangle {
	b := img.Bounds()
	tw := b.Dx() / tilesPerSide
	th := b.Dy() / tilesPerSide
	return image.Rect(b.Min.X+col*tw, b.Min.Y+row*th, b.Min.X+(col+1)*tw, b.Min.Y+(row+1)*th)
}
