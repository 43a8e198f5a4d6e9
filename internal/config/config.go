// Package config handles viewer and terrain engine configuration.
package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/falcon-terrain/internal/logger"
)

// Config holds all settings.
type Config struct {
	Graphics GraphicsConfig `yaml:"graphics"`
	Terrain  TerrainConfig  `yaml:"terrain"`
	Lattice  LatticeConfig  `yaml:"lattice"`
	Camera   CameraConfig   `yaml:"camera"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GraphicsConfig holds display and projection settings.
type GraphicsConfig struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Fullscreen bool    `yaml:"fullscreen"`
	VSync      bool    `yaml:"vsync"`
	FOVDegrees float32 `yaml:"fov_degrees"`
	Near       float32 `yaml:"near"`
	Far        float32 `yaml:"far"`

	ScreenshotDir string `yaml:"screenshot_dir"`
}

// TerrainConfig holds the single-terrain source files and LOD tuning.
type TerrainConfig struct {
	ElevationFile  string  `yaml:"elevation_file"`
	TextureFile    string  `yaml:"texture_file"`
	SurfaceFile    string  `yaml:"surface_file"` // optional compiled surface
	VertexSpacing  float32 `yaml:"vertex_spacing"`
	ElevationScale float32 `yaml:"elevation_scale"`

	DetailThreshold  float32 `yaml:"detail_threshold"` // screen-space error in pixels
	MaxTriangles     int     `yaml:"max_triangles"`
	TessellateMethod string  `yaml:"tessellate_method"`
	ZWeight          float32 `yaml:"z_weight"`

	TextureTilesPerSide int `yaml:"texture_tiles_per_side"`
	TextureBudgetMB     int `yaml:"texture_budget_mb"`

	// Sun position in degrees; azimuth counts from +X toward +Y.
	SunAzimuth   float32 `yaml:"sun_azimuth"`
	SunElevation float32 `yaml:"sun_elevation"`
	Ambient      float32 `yaml:"ambient"`
}

// LatticeConfig holds multi-tile terrain settings.
type LatticeConfig struct {
	Enabled       bool    `yaml:"enabled"`
	TileDir       string  `yaml:"tile_dir"`
	CatalogDB     string  `yaml:"catalog_db"` // SQLite tile catalog, takes precedence over tile_dir
	TileWorldSize float32 `yaml:"tile_world_size"`
	Radius        int     `yaml:"radius"` // 1 = 3x3 window
}

// CameraConfig holds the initial camera pose and movement speed.
type CameraConfig struct {
	X     float32 `yaml:"x"`
	Y     float32 `yaml:"y"`
	Z     float32 `yaml:"z"`
	Yaw   float32 `yaml:"yaw"`
	Pitch float32 `yaml:"pitch"`
	Speed float32 `yaml:"speed"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Tessellate method names accepted by terrain.tessellate_method.
var TessellateMethods = []string{"column", "corners", "plane_band", "distance"}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
			FOVDegrees: 60,
			Near:       1,
			Far:        50000,

			ScreenshotDir: "screenshots",
		},
		Terrain: TerrainConfig{
			VertexSpacing:       30,
			ElevationScale:      1,
			DetailThreshold:     8,
			MaxTriangles:        200000,
			TessellateMethod:    "column",
			ZWeight:             1,
			TextureTilesPerSide: 8,
			TextureBudgetMB:     64,
			SunAzimuth:          225,
			SunElevation:        45,
			Ambient:             0.35,
		},
		Lattice: LatticeConfig{
			Enabled:       false,
			TileWorldSize: 7680,
			Radius:        1,
		},
		Camera: CameraConfig{
			Z:     2000,
			Pitch: -0.5,
			Speed: 400,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks value ranges that the engine cannot recover from at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Terrain.VertexSpacing <= 0 {
		errs = append(errs, fmt.Errorf("terrain.vertex_spacing must be positive, got %v", c.Terrain.VertexSpacing))
	}
	if c.Terrain.DetailThreshold <= 0 {
		errs = append(errs, fmt.Errorf("terrain.detail_threshold must be positive, got %v", c.Terrain.DetailThreshold))
	}
	if c.Terrain.MaxTriangles <= 0 {
		errs = append(errs, fmt.Errorf("terrain.max_triangles must be positive, got %d", c.Terrain.MaxTriangles))
	}
	if c.Terrain.TextureBudgetMB <= 0 {
		errs = append(errs, fmt.Errorf("terrain.texture_budget_mb must be positive, got %d", c.Terrain.TextureBudgetMB))
	}
	if n := c.Terrain.TextureTilesPerSide; n <= 0 || n&(n-1) != 0 {
		errs = append(errs, fmt.Errorf("terrain.texture_tiles_per_side must be a power of two, got %d", n))
	}
	if e := c.Terrain.SunElevation; e < 0 || e > 90 {
		errs = append(errs, fmt.Errorf("terrain.sun_elevation must be within [0, 90], got %v", e))
	}
	if a := c.Terrain.Ambient; a < 0 || a > 1 {
		errs = append(errs, fmt.Errorf("terrain.ambient must be within [0, 1], got %v", a))
	}
	if !knownMethod(c.Terrain.TessellateMethod) {
		errs = append(errs, fmt.Errorf("unknown terrain.tessellate_method %q", c.Terrain.TessellateMethod))
	}
	if c.Lattice.Enabled {
		if c.Lattice.TileWorldSize <= 0 {
			errs = append(errs, fmt.Errorf("lattice.tile_world_size must be positive, got %v", c.Lattice.TileWorldSize))
		}
		if c.Lattice.Radius < 0 {
			errs = append(errs, fmt.Errorf("lattice.radius must not be negative, got %d", c.Lattice.Radius))
		}
	}
	if !logger.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("unknown logging.level %q", c.Logging.Level))
	}
	return errors.Join(errs...)
}

func knownMethod(name string) bool {
	for _, m := range TessellateMethods {
		if m == name {
			return true
		}
	}
	return false
}
