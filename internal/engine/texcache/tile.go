package texcache

import (
	"image"

	"github.com/Faultbox/falcon-terrain/internal/engine/texture"
	"github.com/Faultbox/falcon-terrain/pkg/math"
)

// Uploader moves pixel data to the GPU. Implementations are only called
// from the render thread.
type Uploader interface {
	Upload(pixels []byte, width, height int) (uint32, error)
	Release(id uint32)
}

// Layer is a source image region backing one texture of a tile.
type Layer struct {
	Source *image.RGBA
	Rect   image.Rectangle
}

func (l Layer) bytes() int64 {
	return int64(l.Rect.Dx()) * int64(l.Rect.Dy()) * 4
}

// TextureTile is a square piece of terrain texture covering part of the world.
// Disposing it frees the GPU texture and, unless KeepCPU is set, the pixel
// buffer; Recreate crops the pixels again from the source image.
type TextureTile struct {
	Col, Row int
	Origin   math.Vec2 // world position of the tile's min corner
	Extent   float32   // world side length

	Main   Layer
	Detail *Layer // optional second layer

	// KeepCPU retains pixel buffers across Dispose so recreation skips the crop.
	KeepCPU bool

	uploader Uploader
	priority int

	pixels       []byte
	detailPixels []byte
	texture      uint32
	detailTex    uint32
	resident     bool
}

// NewTextureTile creates a disposed tile. Nothing is cropped or uploaded until Recreate.
func NewTextureTile(col, row int, origin math.Vec2, extent float32, main Layer, up Uploader) *TextureTile {
	return &TextureTile{
		Col:      col,
		Row:      row,
		Origin:   origin,
		Extent:   extent,
		Main:     main,
		uploader: up,
	}
}

// Size returns the resident bytes of all layers.
func (t *TextureTile) Size() int64 {
	n := t.Main.bytes()
	if t.Detail != nil {
		n += t.Detail.bytes()
	}
	return n
}

// Priority returns the eviction class; lower is evicted first.
func (t *TextureTile) Priority() int { return t.priority }

// SetPriority changes the eviction class.
func (t *TextureTile) SetPriority(p int) { t.priority = p }

// Disposed reports whether the tile holds no resident texture.
func (t *TextureTile) Disposed() bool { return !t.resident }

// Recreate regenerates pixels and uploads them when an uploader is set.
func (t *TextureTile) Recreate() error {
	if t.pixels == nil {
		t.pixels = texture.Crop(t.Main.Source, t.Main.Rect)
	}
	if t.Detail != nil && t.detailPixels == nil {
		t.detailPixels = texture.Crop(t.Detail.Source, t.Detail.Rect)
	}

	if t.uploader != nil {
		id, err := t.uploader.Upload(t.pixels, t.Main.Rect.Dx(), t.Main.Rect.Dy())
		if err != nil {
			return err
		}
		t.texture = id
		if t.Detail != nil {
			id, err := t.uploader.Upload(t.detailPixels, t.Detail.Rect.Dx(), t.Detail.Rect.Dy())
			if err != nil {
				t.uploader.Release(t.texture)
				t.texture = 0
				return err
			}
			t.detailTex = id
		}
		if !t.KeepCPU {
			t.pixels = nil
			t.detailPixels = nil
		}
	}

	t.resident = true
	return nil
}

// Dispose releases GPU textures and drops pixels unless KeepCPU is set.
func (t *TextureTile) Dispose() {
	if t.uploader != nil {
		if t.texture != 0 {
			t.uploader.Release(t.texture)
		}
		if t.detailTex != 0 {
			t.uploader.Release(t.detailTex)
		}
	}
	t.texture = 0
	t.detailTex = 0
	if !t.KeepCPU {
		t.pixels = nil
		t.detailPixels = nil
	}
	t.resident = false
}

// Texture returns the GPU id of the main layer, 0 when not uploaded.
func (t *TextureTile) Texture() uint32 { return t.texture }

// DetailTexture returns the GPU id of the detail layer.
func (t *TextureTile) DetailTexture() uint32 { return t.detailTex }

// Pixels returns the CPU copy of the main layer, if held.
func (t *TextureTile) Pixels() []byte { return t.pixels }
