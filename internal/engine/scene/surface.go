package scene

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"path/filepath"

	xdraw "golang.org/x/image/draw"

	"github.com/Faultbox/falcon-terrain/internal/engine/texture"
	"github.com/Faultbox/falcon-terrain/pkg/formats"
)

// CompileSurface cuts img into tilesPerSide^2 embedded RGBA textures.
// Tiles with identical pixels share one texture entry.
func CompileSurface(img *image.RGBA, tilesPerSide int) (*formats.Surface, error) {
	if err := texture.CheckPowerOfTwo(img); err != nil {
		return nil, err
	}
	if !texture.IsPowerOfTwo(tilesPerSide) || img.Rect.Dx() < tilesPerSide {
		return nil, fmt.Errorf("cannot cut %dx%d texture into %d tiles per side", img.Rect.Dx(), img.Rect.Dy(), tilesPerSide)
	}

	s := &formats.Surface{}
	seen := map[string]int32{}
	for row := range tilesPerSide {
		for col := range tilesPerSide {
			r := texture.TileRect(img, tilesPerSide, col, row)
			pix := texture.Crop(img, r)

			idx, ok := seen[string(pix)]
			if !ok {
				idx = int32(len(s.Textures))
				seen[string(pix)] = idx
				s.Textures = append(s.Textures, formats.SurfaceTexture{
					Shared:   -1,
					Width:    int32(r.Dx()),
					Height:   int32(r.Dy()),
					Channels: 4,
					Pixels:   pix,
					Flags:    formats.TextureFlagClamp,
				})
			}
			s.Tiles = append(s.Tiles, formats.SurfaceTile{X: int32(col), Y: int32(row), Base: idx})
		}
	}
	return s, nil
}

// AssembleSurface draws every tile's base texture into one square atlas and
// returns it with the tile grid size. File-backed textures load relative to
// dir. tileSize zero takes the size of the first tile's texture.
func AssembleSurface(s *formats.Surface, dir string, tileSize int) (*image.RGBA, int, error) {
	if len(s.Tiles) == 0 {
		return nil, 0, fmt.Errorf("%w: surface has no tiles", formats.ErrInvalidSurface)
	}

	n := 0
	for _, t := range s.Tiles {
		if t.X < 0 || t.Y < 0 {
			return nil, 0, fmt.Errorf("%w: tile at (%d,%d)", formats.ErrInvalidSurface, t.X, t.Y)
		}
		n = max(n, int(t.X)+1, int(t.Y)+1)
	}
	for !texture.IsPowerOfTwo(n) {
		n++
	}

	images := map[int]image.Image{}
	load := func(i int) (image.Image, error) {
		if img, ok := images[i]; ok {
			return img, nil
		}
		tex, err := s.Resolve(i)
		if err != nil {
			return nil, err
		}
		img, err := surfaceImage(tex, dir)
		if err != nil {
			return nil, err
		}
		images[i] = img
		return img, nil
	}

	if tileSize <= 0 {
		first, err := load(int(s.Tiles[0].Base))
		if err != nil {
			return nil, 0, err
		}
		tileSize = first.Bounds().Dx()
		for !texture.IsPowerOfTwo(tileSize) {
			tileSize++
		}
	}

	atlas := image.NewRGBA(image.Rect(0, 0, n*tileSize, n*tileSize))
	for _, t := range s.Tiles {
		img, err := load(int(t.Base))
		if err != nil {
			return nil, 0, err
		}
		dst := image.Rect(int(t.X)*tileSize, int(t.Y)*tileSize, int(t.X+1)*tileSize, int(t.Y+1)*tileSize)
		if img.Bounds().Size() == dst.Size() {
			draw.Draw(atlas, dst, img, img.Bounds().Min, draw.Src)
		} else {
			xdraw.ApproxBiLinear.Scale(atlas, dst, img, img.Bounds(), draw.Src, nil)
		}
	}
	return atlas, n, nil
}

func surfaceImage(t *formats.SurfaceTexture, dir string) (image.Image, error) {
	if t.FileBacked() {
		return texture.Load(filepath.Join(dir, filepath.FromSlash(t.FileName)))
	}

	w, h := int(t.Width), int(t.Height)
	switch t.Channels {
	case 4:
		return &image.RGBA{Pix: bytes.Clone(t.Pixels), Stride: w * 4, Rect: image.Rect(0, 0, w, h)}, nil
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := 0; i < w*h; i++ {
			copy(img.Pix[i*4:i*4+3], t.Pixels[i*3:i*3+3])
			img.Pix[i*4+3] = 0xff
		}
		return img, nil
	case 1:
		return &image.Gray{Pix: bytes.Clone(t.Pixels), Stride: w, Rect: image.Rect(0, 0, w, h)}, nil
	default:
		return nil, fmt.Errorf("%w: %d channel texture", formats.ErrInvalidSurface, t.Channels)
	}
}
