package texcache

import (
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/Faultbox/falcon-terrain/internal/engine/texture"
	"github.com/Faultbox/falcon-terrain/pkg/math"
)

// Tile priority classes.
const (
	PriorityDistant = 0
	PriorityNear    = 1
)

// TileMap cuts one terrain texture into tiles and pages them through a Cache.
// Tiles bound during a frame stay locked until the first frame that no longer
// uses them. It satisfies terrain.TileResolver and belongs to the render thread.
type TileMap struct {
	cache        *Cache
	tilesPerSide int
	origin       math.Vec2
	worldSize    float32

	tiles   []*TextureTile
	handles []Handle

	locked map[Handle]bool
	frame  map[Handle]bool
}

// NewTileMap splits img into tilesPerSide^2 tiles spanning worldSize units
// from origin. img must be power-of-two sized.
func NewTileMap(cache *Cache, img *image.RGBA, tilesPerSide int, origin math.Vec2, worldSize float32, up Uploader) (*TileMap, error) {
	if err := texture.CheckPowerOfTwo(img); err != nil {
		return nil, err
	}
	if !texture.IsPowerOfTwo(tilesPerSide) {
		return nil, fmt.Errorf("tiles per side must be a power of two, got %d", tilesPerSide)
	}
	if img.Rect.Dx() < tilesPerSide || img.Rect.Dy() < tilesPerSide {
		return nil, fmt.Errorf("texture %dx%d too small for %d tiles per side", img.Rect.Dx(), img.Rect.Dy(), tilesPerSide)
	}

	m := &TileMap{
		cache:        cache,
		tilesPerSide: tilesPerSide,
		origin:       origin,
		worldSize:    worldSize,
		locked:       make(map[Handle]bool),
		frame:        make(map[Handle]bool),
	}

	extent := worldSize / float32(tilesPerSide)
	for row := range tilesPerSide {
		for col := range tilesPerSide {
			o := math.Vec2{X: origin.X + float32(col)*extent, Y: origin.Y + float32(row)*extent}
			tile := NewTextureTile(col, row, o, extent, Layer{Source: img, Rect: texture.TileRect(img, tilesPerSide, col, row)}, up)
			h, err := cache.InsertResource(tile)
			if err != nil {
				m.Close()
				return nil, err
			}
			m.tiles = append(m.tiles, tile)
			m.handles = append(m.handles, h)
		}
	}
	return m, nil
}

// TilesPerSide returns the grid dimension.
func (m *TileMap) TilesPerSide() int { return m.tilesPerSide }

// Tile returns tile (col,row).
func (m *TileMap) Tile(col, row int) *TextureTile {
	return m.tiles[row*m.tilesPerSide+col]
}

// Handle returns the cache handle of tile (col,row).
func (m *TileMap) Handle(col, row int) Handle {
	return m.handles[row*m.tilesPerSide+col]
}

// TileIndex returns the tile covering a world position, clamped to the map.
func (m *TileMap) TileIndex(x, y float32) int {
	n := m.tilesPerSide
	extent := m.worldSize / float32(n)
	col := int((x - m.origin.X) / extent)
	row := int((y - m.origin.Y) / extent)
	col = min(max(col, 0), n-1)
	row = min(max(row, 0), n-1)
	return row*n + col
}

// TileRect returns the world origin and side length of tile i.
func (m *TileMap) TileRect(i int) (math.Vec2, float32) {
	t := m.tiles[i]
	return t.Origin, t.Extent
}

// BeginFrame starts collecting the tiles used by this frame.
func (m *TileMap) BeginFrame() {
	clear(m.frame)
}

// TileAt locks the tile covering (x,y) for this frame and returns its
// index and GPU texture.
func (m *TileMap) TileAt(x, y float32) (int, uint32) {
	i := m.TileIndex(x, y)
	h := m.handles[i]
	if !m.frame[h] {
		m.frame[h] = true
		if !m.locked[h] {
			if _, err := m.cache.Lock(h); err != nil && !errors.Is(err, ErrResourceExceedsBudget) {
				cacheLog.L().Warn("texture tile unavailable", zap.Int("tile", i), zap.Error(err))
				return i, 0
			}
			m.locked[h] = true
		}
	}
	return i, m.tiles[i].Texture()
}

// EndFrame unlocks tiles that were not used since BeginFrame.
func (m *TileMap) EndFrame() {
	for h := range m.locked {
		if m.frame[h] {
			continue
		}
		if err := m.cache.Unlock(h); err != nil {
			cacheLog.L().Warn("unlock texture tile", zap.Uint32("handle", uint32(h)), zap.Error(err))
		}
		delete(m.locked, h)
	}
}

// SetFocus raises the eviction priority of tiles within one tile of (x,y).
func (m *TileMap) SetFocus(x, y float32) {
	i := m.TileIndex(x, y)
	fc, fr := i%m.tilesPerSide, i/m.tilesPerSide
	for _, t := range m.tiles {
		p := PriorityDistant
		if abs(t.Col-fc) <= 1 && abs(t.Row-fr) <= 1 {
			p = PriorityNear
		}
		t.SetPriority(p)
	}
}

// Close unlocks and removes every tile from the cache.
func (m *TileMap) Close() {
	for h := range m.locked {
		m.cache.Unlock(h)
	}
	clear(m.locked)
	for _, h := range m.handles {
		m.cache.Remove(h)
	}
	m.handles = nil
	m.tiles = nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
