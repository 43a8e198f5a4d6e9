package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagWindowed   = flag.Bool("windowed", false, "Run in windowed mode")
	flagFullscreen = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth      = flag.Int("width", 0, "Window width")
	flagHeight     = flag.Int("height", 0, "Window height")
	flagThreshold  = flag.Float64("threshold", 0, "Detail threshold in pixels")
	flagMethod     = flag.String("method", "", "Tessellate method (column, corners, plane_band, distance)")
	flagTerrain    = flag.String("terrain", "", "Elevation raster file")
	flagTexture    = flag.String("texture", "", "Terrain texture file")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagWindowed {
		cfg.Graphics.Fullscreen = false
	}
	if *flagFullscreen {
		cfg.Graphics.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Graphics.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Graphics.Height = *flagHeight
	}
	if *flagThreshold > 0 {
		cfg.Terrain.DetailThreshold = float32(*flagThreshold)
	}
	if *flagMethod != "" {
		cfg.Terrain.TessellateMethod = *flagMethod
	}
	if *flagTerrain != "" {
		cfg.Terrain.ElevationFile = *flagTerrain
	}
	if *flagTexture != "" {
		cfg.Terrain.TextureFile = *flagTexture
	}
}
