package texcache

import (
	"image"
	"image/color"
	"testing"

	"github.com/Faultbox/falcon-terrain/pkg/math"
)

type fakeUploader struct {
	next     uint32
	live     map[uint32]bool
	uploads  int
	releases int
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{next: 1, live: make(map[uint32]bool)}
}

func (u *fakeUploader) Upload(pixels []byte, w, h int) (uint32, error) {
	id := u.next
	u.next++
	u.live[id] = true
	u.uploads++
	return id, nil
}

func (u *fakeUploader) Release(id uint32) {
	delete(u.live, id)
	u.releases++
}

func gradient(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			img.SetRGBA(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	return img
}

func TestTextureTile_DisposeRecreate(t *testing.T) {
	img := gradient(8)
	tile := NewTextureTile(1, 0, math.Vec2{X: 4}, 4, Layer{Source: img, Rect: image.Rect(4, 0, 8, 4)}, nil)

	if !tile.Disposed() {
		t.Fatal("new tile should start disposed")
	}
	if tile.Size() != 4*4*4 {
		t.Errorf("Size = %d, want 64", tile.Size())
	}
	if err := tile.Recreate(); err != nil {
		t.Fatal(err)
	}
	if tile.Disposed() || len(tile.Pixels()) != 64 {
		t.Fatalf("recreated tile: disposed=%v pixels=%d", tile.Disposed(), len(tile.Pixels()))
	}
	if tile.Pixels()[0] != 4 {
		t.Errorf("first pixel red = %d, want 4", tile.Pixels()[0])
	}

	tile.Dispose()
	if !tile.Disposed() || tile.Pixels() != nil {
		t.Error("Dispose should drop pixels without KeepCPU")
	}

	tile.KeepCPU = true
	tile.Recreate()
	tile.Dispose()
	if tile.Pixels() == nil {
		t.Error("KeepCPU tile lost its pixels")
	}
}

func TestTextureTile_Upload(t *testing.T) {
	up := newFakeUploader()
	img := gradient(8)
	tile := NewTextureTile(0, 0, math.Vec2{}, 4, Layer{Source: img, Rect: image.Rect(0, 0, 4, 4)}, up)
	tile.Detail = &Layer{Source: img, Rect: image.Rect(0, 0, 8, 8)}

	if err := tile.Recreate(); err != nil {
		t.Fatal(err)
	}
	if tile.Texture() == 0 || tile.DetailTexture() == 0 || len(up.live) != 2 {
		t.Fatalf("expected two uploads, live=%v", up.live)
	}
	if tile.Pixels() != nil {
		t.Error("uploaded tile should drop CPU pixels")
	}
	if tile.Size() != 64+256 {
		t.Errorf("Size = %d, want 320", tile.Size())
	}

	tile.Dispose()
	if len(up.live) != 0 || tile.Texture() != 0 {
		t.Errorf("Dispose left textures alive: %v", up.live)
	}
}

func TestNewTileMap_Validation(t *testing.T) {
	c := New(1 << 20)
	if _, err := NewTileMap(c, image.NewRGBA(image.Rect(0, 0, 12, 8)), 2, math.Vec2{}, 8, nil); err == nil {
		t.Error("expected error for non power-of-two texture")
	}
	if _, err := NewTileMap(c, gradient(8), 3, math.Vec2{}, 8, nil); err == nil {
		t.Error("expected error for 3 tiles per side")
	}
	if _, err := NewTileMap(c, gradient(4), 8, math.Vec2{}, 8, nil); err == nil {
		t.Error("expected error for more tiles than pixels")
	}
}

func TestTileMap_Resolve(t *testing.T) {
	c := New(1 << 20)
	m, err := NewTileMap(c, gradient(8), 4, math.Vec2{X: 100, Y: 100}, 16, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		x, y float32
		want int
	}{
		{100, 100, 0},
		{104, 100, 1},
		{115.9, 100, 3},
		{100, 108, 8},
		{50, 50, 0},    // clamped
		{500, 500, 15}, // clamped
	}
	for _, tt := range tests {
		if got := m.TileIndex(tt.x, tt.y); got != tt.want {
			t.Errorf("TileIndex(%v,%v) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}

	if tile := m.Tile(3, 2); tile.Origin != (math.Vec2{X: 112, Y: 108}) || tile.Extent != 4 {
		t.Errorf("tile (3,2) origin %v extent %v", tile.Origin, tile.Extent)
	}
	if o, e := m.TileRect(2*4 + 3); o != (math.Vec2{X: 112, Y: 108}) || e != 4 {
		t.Errorf("TileRect(11) = %v, %v", o, e)
	}
}

func TestTileMap_FrameLocking(t *testing.T) {
	up := newFakeUploader()
	tileBytes := int64(4 * 4 * 4)
	c := New(2 * tileBytes)
	m, err := NewTileMap(c, gradient(8), 2, math.Vec2{}, 8, up)
	if err != nil {
		t.Fatal(err)
	}

	m.BeginFrame()
	i0, tex0 := m.TileAt(1, 1)
	i1, tex1 := m.TileAt(5, 1)
	m.TileAt(1.5, 1.5) // same tile again
	m.EndFrame()

	if i0 != 0 || i1 != 1 || tex0 == 0 || tex1 == 0 {
		t.Fatalf("unexpected tiles: %d/%d textures %d/%d", i0, i1, tex0, tex1)
	}
	if s := c.Stats(); s.Locked != 2 || s.CurrentBytes != 2*tileBytes {
		t.Fatalf("unexpected stats after frame 1: %+v", s)
	}

	// Next frame only uses tile 2; tile 0 and 1 get unlocked at EndFrame.
	m.BeginFrame()
	_, tex2 := m.TileAt(1, 5)
	m.EndFrame()

	if tex2 == 0 {
		t.Fatal("tile 2 has no texture")
	}
	s := c.Stats()
	if s.Locked != 1 {
		t.Errorf("expected 1 locked tile, got %d", s.Locked)
	}
	if s.Overallocations != 1 {
		// All candidates were locked while tile 2 was recreated.
		t.Errorf("expected one overallocation, got %d", s.Overallocations)
	}

	// A third tile evicts one of the now unlocked ones.
	m.BeginFrame()
	m.TileAt(1, 5)
	m.TileAt(5, 5)
	m.EndFrame()
	if s := c.Stats(); s.CurrentBytes > 2*tileBytes || s.Evictions == 0 {
		t.Errorf("expected eviction back to budget, got %+v", s)
	}

	m.Close()
	if s := c.Stats(); s.Resources != 0 {
		t.Errorf("Close left %d resources", s.Resources)
	}
	if len(up.live) != 0 {
		t.Errorf("Close leaked %d textures", len(up.live))
	}
}

func TestTileMap_SetFocus(t *testing.T) {
	c := New(1 << 20)
	m, _ := NewTileMap(c, gradient(16), 4, math.Vec2{}, 16, nil)

	m.SetFocus(0.5, 0.5)
	if m.Tile(1, 1).Priority() != PriorityNear {
		t.Error("neighbor tile should be near")
	}
	if m.Tile(2, 0).Priority() != PriorityDistant {
		t.Error("tile two away should be distant")
	}
}
