package tilestore

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/falcon-terrain/internal/engine/lattice"
	"github.com/Faultbox/falcon-terrain/internal/engine/texture"
	"github.com/Faultbox/falcon-terrain/pkg/formats"
)

func writeElevationF32(t *testing.T, path string, size int, z float32) {
	t.Helper()
	h := make([]float32, size*size)
	for i := range h {
		h[i] = z
	}
	if err := os.WriteFile(path, formats.EncodeFloat32(h), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirStore_LoadTile(t *testing.T) {
	dir := t.TempDir()
	writeElevationF32(t, filepath.Join(dir, "tile_0_0.f32"), 5, 2)

	gray := image.NewGray(image.Rect(0, 0, 9, 9))
	gray.SetGray(4, 4, color.Gray{Y: 10})
	writePNG(t, filepath.Join(dir, "tile_-1_2.png"), gray)
	writePNG(t, filepath.Join(dir, "tex_-1_2.png"), image.NewRGBA(image.Rect(0, 0, 16, 16)))

	s, err := NewDirStore(dir, 64, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	data, err := s.LoadTile(context.Background(), lattice.Coord{X: 0, Y: 0})
	if err != nil {
		t.Fatalf("LoadTile(0,0): %v", err)
	}
	f := data.Field
	if f.Size() != 5 || f.Spacing() != 16 || f.WorldSize() != 64 {
		t.Errorf("field size %d spacing %v world %v", f.Size(), f.Spacing(), f.WorldSize())
	}
	if f.ElevationAt(2, 2) != 1 {
		t.Errorf("elevation = %v, want 2*0.5", f.ElevationAt(2, 2))
	}
	if data.Texture != nil {
		t.Error("texture loaded for a tile without one")
	}

	data, err = s.LoadTile(context.Background(), lattice.Coord{X: -1, Y: 2})
	if err != nil {
		t.Fatalf("LoadTile(-1,2): %v", err)
	}
	if data.Field.ElevationAt(4, 4) != 5 {
		t.Errorf("png elevation = %v, want 5", data.Field.ElevationAt(4, 4))
	}
	if data.Texture == nil || data.Texture.Bounds().Dx() != 16 {
		t.Error("texture not loaded")
	}
}

func TestDirStore_Missing(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDirStore(dir, 64, 1)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.LoadTile(context.Background(), lattice.Coord{X: 3, Y: 3})
	if !errors.Is(err, texture.ErrAssetMissing) || !errors.Is(err, ErrTileNotFound) {
		t.Errorf("expected asset-missing tile-not-found error, got %v", err)
	}

	// Unreadable raster.
	os.WriteFile(filepath.Join(dir, "tile_1_1.f32"), []byte{1, 2, 3, 4, 5, 6, 7, 8}, 0o644)
	_, err = s.LoadTile(context.Background(), lattice.Coord{X: 1, Y: 1})
	if !errors.Is(err, texture.ErrAssetMissing) || !errors.Is(err, formats.ErrElevationNotSquare) {
		t.Errorf("expected wrapped decode error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.LoadTile(ctx, lattice.Coord{}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled load = %v", err)
	}

	if _, err := NewDirStore(filepath.Join(dir, "nope"), 64, 1); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestCatalog(t *testing.T) {
	dir := t.TempDir()
	writeElevationF32(t, filepath.Join(dir, "a.f32"), 3, 4)
	os.MkdirAll(filepath.Join(dir, "tex"), 0o755)
	writePNG(t, filepath.Join(dir, "tex", "a.png"), image.NewRGBA(image.Rect(0, 0, 8, 8)))

	cat, err := OpenCatalog(filepath.Join(dir, "tiles.db"), 32)
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	defer cat.Close()

	ctx := context.Background()
	if err := cat.Register(ctx, Entry{Coord: lattice.Coord{X: 1, Y: -1}, ElevationPath: "a.f32", ElevationScale: 2}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Replacing keeps a single row.
	err = cat.Register(ctx, Entry{
		Coord:          lattice.Coord{X: 1, Y: -1},
		ElevationPath:  "a.f32",
		TexturePath:    "tex/a.png",
		ElevationScale: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if n, err := cat.Count(ctx); err != nil || n != 1 {
		t.Errorf("Count = %d, %v", n, err)
	}

	e, err := cat.Lookup(ctx, lattice.Coord{X: 1, Y: -1})
	if err != nil {
		t.Fatal(err)
	}
	if e.TexturePath != "tex/a.png" || e.ElevationScale != 3 {
		t.Errorf("entry = %+v", e)
	}

	data, err := cat.LoadTile(ctx, lattice.Coord{X: 1, Y: -1})
	if err != nil {
		t.Fatalf("LoadTile: %v", err)
	}
	if data.Field.ElevationAt(1, 1) != 12 || data.Field.Spacing() != 16 {
		t.Errorf("elevation %v spacing %v", data.Field.ElevationAt(1, 1), data.Field.Spacing())
	}
	if data.Texture == nil {
		t.Error("catalog texture not loaded")
	}

	if _, err := cat.Lookup(ctx, lattice.Coord{X: 9, Y: 9}); !errors.Is(err, ErrTileNotFound) {
		t.Errorf("expected ErrTileNotFound, got %v", err)
	}
	if err := cat.Register(ctx, Entry{Coord: lattice.Coord{}}); err == nil {
		t.Error("expected error for empty elevation path")
	}
}

func TestCatalog_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "tiles.db")

	cat, err := OpenCatalog(path, 32)
	if err != nil {
		t.Fatal(err)
	}
	cat.Register(context.Background(), Entry{Coord: lattice.Coord{X: 2, Y: 2}, ElevationPath: "x.png", Spacing: 4})
	cat.Close()

	cat, err = OpenCatalog(path, 32)
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()

	e, err := cat.Lookup(context.Background(), lattice.Coord{X: 2, Y: 2})
	if err != nil || e.Spacing != 4 || e.ElevationScale != 1 {
		t.Errorf("reopened entry = %+v, %v", e, err)
	}
}

func TestLatticeWithDirStore(t *testing.T) {
	dir := t.TempDir()
	writeElevationF32(t, filepath.Join(dir, "tile_0_0.f32"), 9, 0)

	s, err := NewDirStore(dir, 8, 1)
	if err != nil {
		t.Fatal(err)
	}
	var _ lattice.TileLoader = s
	var _ lattice.TileLoader = (*Catalog)(nil)

	data, err := s.LoadTile(context.Background(), lattice.Coord{})
	if err != nil {
		t.Fatal(err)
	}
	if !data.Field.HasNormals() {
		t.Error("tile normals not computed")
	}
}
