// Package tilestore provides tile sources for the terrain lattice.
package tilestore

import (
	"errors"
	"fmt"
	"image"

	"github.com/Faultbox/falcon-terrain/internal/assets"
	"github.com/Faultbox/falcon-terrain/internal/engine/lattice"
	"github.com/Faultbox/falcon-terrain/internal/engine/terrain"
	"github.com/Faultbox/falcon-terrain/internal/engine/texture"
	"github.com/Faultbox/falcon-terrain/internal/logger"
	"github.com/Faultbox/falcon-terrain/pkg/formats"
)

var log = logger.Named("tilestore")

// ErrTileNotFound is returned for coordinates the store has no data for.
var ErrTileNotFound = errors.New("tile not found")

// Entry describes where one tile's data lives.
type Entry struct {
	Coord          lattice.Coord
	ElevationPath  string
	TexturePath    string // optional
	Spacing        float32
	ElevationScale float32
}

// Elevation and texture extensions, in lookup order.
var (
	elevationExts = []string{".png", ".bmp", ".f32"}
	textureExts   = []string{".png", ".bmp", ".tga"}
)

// buildTile decodes an entry's files into lattice tile data.
// Spacing zero derives the spacing from worldSize.
func buildTile(files *assets.Manager, e Entry, worldSize float32) (*lattice.TileData, error) {
	raw, err := files.Load(e.ElevationPath)
	if err != nil {
		return nil, &texture.AssetError{Path: e.ElevationPath, Err: err}
	}
	elev, err := formats.DecodeElevation(raw, e.ElevationPath, e.ElevationScale)
	if err != nil {
		return nil, &texture.AssetError{Path: e.ElevationPath, Err: err}
	}
	// Decoded rasters are not reused.
	files.Cache().Forget(e.ElevationPath)

	spacing := e.Spacing
	if spacing <= 0 {
		spacing = worldSize / float32(elev.Size-1)
	}
	field, err := terrain.NewHeightField(elev.Size, elev.Size, spacing, elev.Heights)
	if err != nil {
		return nil, fmt.Errorf("tile %v: %w", e.Coord, err)
	}
	field.ComputeNormals()

	data := &lattice.TileData{Field: field}
	if e.TexturePath != "" {
		img, err := loadTexture(files, e.TexturePath)
		if err != nil {
			return nil, err
		}
		data.Texture = img
	}
	return data, nil
}

func loadTexture(files *assets.Manager, path string) (*image.RGBA, error) {
	raw, err := files.Load(path)
	if err != nil {
		return nil, &texture.AssetError{Path: path, Err: err}
	}
	img, err := texture.Decode(raw, path)
	if err != nil {
		return nil, &texture.AssetError{Path: path, Err: err}
	}
	files.Cache().Forget(path)
	return img, nil
}
