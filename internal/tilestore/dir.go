package tilestore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/falcon-terrain/internal/assets"
	"github.com/Faultbox/falcon-terrain/internal/engine/lattice"
	"github.com/Faultbox/falcon-terrain/internal/engine/texture"
)

// DirStore serves tiles laid out as tile_<x>_<y>.(png|bmp|f32) elevation
// files with optional tex_<x>_<y>.(png|bmp|tga) textures.
type DirStore struct {
	files          *assets.Manager
	worldSize      float32
	elevationScale float32
}

// NewDirStore serves tiles from dir. Every tile spans worldSize units.
func NewDirStore(dir string, worldSize, elevationScale float32) (*DirStore, error) {
	files := assets.NewManager(16 << 20)
	if err := files.AddRoot(dir); err != nil {
		return nil, fmt.Errorf("tile directory: %w", err)
	}
	return &DirStore{files: files, worldSize: worldSize, elevationScale: elevationScale}, nil
}

// Lookup finds the files for c.
func (s *DirStore) Lookup(c lattice.Coord) (Entry, error) {
	e := Entry{Coord: c, ElevationScale: s.elevationScale}
	for _, ext := range elevationExts {
		if name := fmt.Sprintf("tile_%d_%d%s", c.X, c.Y, ext); s.files.Exists(name) {
			e.ElevationPath = name
			break
		}
	}
	if e.ElevationPath == "" {
		return e, fmt.Errorf("%w: %v", ErrTileNotFound, c)
	}
	for _, ext := range textureExts {
		if name := fmt.Sprintf("tex_%d_%d%s", c.X, c.Y, ext); s.files.Exists(name) {
			e.TexturePath = name
			break
		}
	}
	return e, nil
}

// LoadTile implements lattice.TileLoader.
func (s *DirStore) LoadTile(ctx context.Context, c lattice.Coord) (*lattice.TileData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := s.Lookup(c)
	if err != nil {
		return nil, &texture.AssetError{Path: fmt.Sprintf("tile_%d_%d", c.X, c.Y), Err: err}
	}
	data, err := buildTile(s.files, e, s.worldSize)
	if err != nil {
		return nil, err
	}
	log.L().Debug("tile loaded from directory",
		zap.Stringer("tile", c),
		zap.String("elevation", e.ElevationPath),
		zap.Bool("textured", data.Texture != nil))
	return data, nil
}

// Close releases cached file data.
func (s *DirStore) Close() { s.files.Close() }
