// Package scene assembles terrain sources from configuration: a single
// height field with its texture, or a lattice of tiles streamed around the
// camera. It holds no GPU state.
package scene

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/falcon-terrain/internal/config"
	"github.com/Faultbox/falcon-terrain/internal/engine/lattice"
	"github.com/Faultbox/falcon-terrain/internal/engine/terrain"
	"github.com/Faultbox/falcon-terrain/internal/engine/texture"
	"github.com/Faultbox/falcon-terrain/internal/logger"
	"github.com/Faultbox/falcon-terrain/internal/tilestore"
	"github.com/Faultbox/falcon-terrain/pkg/formats"
	"github.com/Faultbox/falcon-terrain/pkg/math"
)

var log = logger.Named("scene")

// DemoSize is the side of the generated field used when no elevation file is configured.
const DemoSize = 257

// Terrain is one loaded height field.
type Terrain struct {
	Field *terrain.HeightField
	Tess  *terrain.Tessellator

	// Texture is nil for untextured terrain.
	Texture      *image.RGBA
	TilesPerSide int
}

// Scene owns the terrain being viewed.
type Scene struct {
	settings terrain.Settings

	single  *Terrain
	lattice *lattice.Lattice
	closeFn func() error
}

// Settings builds tessellator settings from configuration.
func Settings(tc config.TerrainConfig) (terrain.Settings, error) {
	m, err := terrain.ParseMethod(tc.TessellateMethod)
	if err != nil {
		return terrain.Settings{}, err
	}
	return terrain.Settings{Threshold: tc.DetailThreshold, Method: m, ZWeight: tc.ZWeight}, nil
}

// New loads the configured terrain.
func New(cfg *config.Config) (*Scene, error) {
	settings, err := Settings(cfg.Terrain)
	if err != nil {
		return nil, err
	}
	s := &Scene{settings: settings}

	if cfg.Lattice.Enabled {
		loader, closeFn, err := OpenLoader(cfg.Lattice, cfg.Terrain.ElevationScale)
		if err != nil {
			return nil, err
		}
		s.closeFn = closeFn
		s.lattice = lattice.New(loader, lattice.Options{
			TileWorldSize: cfg.Lattice.TileWorldSize,
			Radius:        cfg.Lattice.Radius,
			MaxTriangles:  cfg.Terrain.MaxTriangles,
			Settings:      settings,
		})
		log.L().Info("lattice terrain",
			zap.Float32("tile_world_size", cfg.Lattice.TileWorldSize),
			zap.Int("radius", cfg.Lattice.Radius))
		return s, nil
	}

	t, err := LoadTerrain(cfg.Terrain, settings)
	if err != nil {
		return nil, err
	}
	s.single = t
	return s, nil
}

// NewWithLattice wraps an existing lattice; the caller keeps ownership of its loader.
func NewWithLattice(l *lattice.Lattice, settings terrain.Settings) *Scene {
	return &Scene{settings: settings, lattice: l}
}

// NewWithTerrain wraps an already loaded terrain.
func NewWithTerrain(t *Terrain) *Scene {
	return &Scene{settings: t.Tess.Settings(), single: t}
}

// LoadTerrain loads a single terrain. An empty elevation file yields the demo field.
func LoadTerrain(tc config.TerrainConfig, settings terrain.Settings) (*Terrain, error) {
	var (
		field *terrain.HeightField
		err   error
	)
	if tc.ElevationFile == "" {
		field, err = DemoField(DemoSize, tc.VertexSpacing, 1)
	} else {
		field, err = loadField(tc.ElevationFile, tc.VertexSpacing, tc.ElevationScale)
	}
	if err != nil {
		return nil, err
	}
	field.ComputeNormals()

	t := &Terrain{
		Field:        field,
		Tess:         terrain.New(field, tc.MaxTriangles, settings),
		TilesPerSide: tc.TextureTilesPerSide,
	}

	switch {
	case tc.SurfaceFile != "":
		surf, err := formats.ReadSurfaceFile(tc.SurfaceFile)
		if err != nil {
			return nil, &texture.AssetError{Path: tc.SurfaceFile, Err: err}
		}
		t.Texture, t.TilesPerSide, err = AssembleSurface(surf, filepath.Dir(tc.SurfaceFile), 0)
		if err != nil {
			return nil, err
		}
	case tc.TextureFile != "":
		t.Texture, err = texture.Load(tc.TextureFile)
		if err != nil {
			return nil, err
		}
	}

	if t.Texture != nil {
		if err := texture.CheckPowerOfTwo(t.Texture); err != nil {
			return nil, &texture.AssetError{Path: tc.TextureFile, Err: err}
		}
		t.Tess.SetTextureTiles(t.TilesPerSide)
	}

	log.L().Info("terrain loaded",
		zap.Int("size", field.Size()),
		zap.Float32("spacing", field.Spacing()),
		zap.Bool("textured", t.Texture != nil),
		zap.Int("tiles_per_side", t.TilesPerSide))
	return t, nil
}

func loadField(path string, spacing, scale float32) (*terrain.HeightField, error) {
	elev, err := formats.ReadElevationFile(path, scale)
	if err != nil {
		return nil, &texture.AssetError{Path: path, Err: err}
	}
	return terrain.NewHeightField(elev.Size, elev.Size, spacing, elev.Heights)
}

// OpenLoader opens the configured tile source. The catalog wins over the directory.
func OpenLoader(lc config.LatticeConfig, elevationScale float32) (lattice.TileLoader, func() error, error) {
	switch {
	case lc.CatalogDB != "":
		cat, err := tilestore.OpenCatalog(lc.CatalogDB, lc.TileWorldSize)
		if err != nil {
			return nil, nil, fmt.Errorf("opening tile catalog: %w", err)
		}
		return cat, cat.Close, nil
	case lc.TileDir != "":
		ds, err := tilestore.NewDirStore(lc.TileDir, lc.TileWorldSize, elevationScale)
		if err != nil {
			return nil, nil, err
		}
		return ds, func() error { ds.Close(); return nil }, nil
	default:
		return nil, nil, errors.New("lattice enabled but neither lattice.catalog_db nor lattice.tile_dir is set")
	}
}

// Single returns the single terrain, nil in lattice mode.
func (s *Scene) Single() *Terrain { return s.single }

// Lattice returns the lattice, nil in single mode.
func (s *Scene) Lattice() *lattice.Lattice { return s.lattice }

// Settings returns the current LOD settings.
func (s *Scene) Settings() terrain.Settings { return s.settings }

// SetSettings changes LOD settings for all terrain.
func (s *Scene) SetSettings(settings terrain.Settings) {
	s.settings = settings
	if s.single != nil {
		s.single.Tess.SetSettings(settings)
	}
	if s.lattice != nil {
		s.lattice.SetSettings(settings)
	}
}

// ScaleThreshold multiplies the detail threshold, keeping it within [0.25, 1024].
func (s *Scene) ScaleThreshold(f float32) {
	st := s.settings
	st.Threshold = min(max(st.Threshold*f, 0.25), 1024)
	s.SetSettings(st)
}

// Update follows the camera: the lattice recenters and installs finished loads.
// It returns the number of tiles installed.
func (s *Scene) Update(eye math.Vec3) (int, error) {
	if s.lattice == nil {
		return 0, nil
	}
	if err := s.lattice.Update(eye); err != nil {
		return 0, err
	}
	return s.lattice.Poll(), nil
}

// Tessellate runs one LOD pass for view.
func (s *Scene) Tessellate(view terrain.ViewState) terrain.FrameStats {
	if s.lattice != nil {
		return s.lattice.Tessellate(view)
	}
	return s.single.Tess.ModelViewChanged(view)
}

// GroundHeight returns the terrain elevation under (x,y). ok is false when
// no loaded terrain covers the point.
func (s *Scene) GroundHeight(x, y float32) (z float32, ok bool) {
	var f *terrain.HeightField
	if s.lattice != nil {
		t := s.lattice.Tile(s.lattice.TileAt(x, y))
		if t == nil {
			return 0, false
		}
		f = t.Field()
	} else {
		f = s.single.Field
		o, w := f.Origin(), f.WorldSize()
		if x < o.X || y < o.Y || x > o.X+w || y > o.Y+w {
			return 0, false
		}
	}
	return f.InterpolatedElevation(x, y), true
}

// Fields returns the single terrain's field or those of the loaded lattice tiles.
func (s *Scene) Fields() []*terrain.HeightField {
	if s.single != nil {
		return []*terrain.HeightField{s.single.Field}
	}
	var fields []*terrain.HeightField
	for _, t := range s.lattice.Tiles() {
		fields = append(fields, t.Field())
	}
	return fields
}

// Bounds returns the box of the single terrain, or of the loaded lattice tiles.
func (s *Scene) Bounds() math.AABB {
	var b math.AABB
	for i, f := range s.Fields() {
		lo, hi := f.MinMax()
		o, w := f.Origin(), f.WorldSize()
		fb := math.AABB{
			Min: math.Vec3{X: o.X, Y: o.Y, Z: lo},
			Max: math.Vec3{X: o.X + w, Y: o.Y + w, Z: hi},
		}
		if i == 0 {
			b = fb
			continue
		}
		b.Min = b.Min.Min(fb.Min)
		b.Max = b.Max.Max(fb.Max)
	}
	return b
}

// Close releases the lattice and its tile source.
func (s *Scene) Close() error {
	var errs []error
	if s.lattice != nil {
		if err := s.lattice.Close(); err != nil && !errors.Is(err, lattice.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if s.closeFn != nil {
		errs = append(errs, s.closeFn())
	}
	return errors.Join(errs...)
}
