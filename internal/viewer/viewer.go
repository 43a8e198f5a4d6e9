// Package viewer implements the interactive terrain viewer loop.
package viewer

import (
	"fmt"
	"image"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/falcon-terrain/internal/config"
	"github.com/Faultbox/falcon-terrain/internal/engine/camera"
	"github.com/Faultbox/falcon-terrain/internal/engine/glrender"
	"github.com/Faultbox/falcon-terrain/internal/engine/input"
	"github.com/Faultbox/falcon-terrain/internal/engine/debug"
	"github.com/Faultbox/falcon-terrain/internal/engine/lattice"
	"github.com/Faultbox/falcon-terrain/internal/engine/lighting"
	"github.com/Faultbox/falcon-terrain/internal/engine/picking"
	"github.com/Faultbox/falcon-terrain/internal/engine/scene"
	"github.com/Faultbox/falcon-terrain/internal/engine/terrain"
	"github.com/Faultbox/falcon-terrain/internal/engine/texcache"
	"github.com/Faultbox/falcon-terrain/internal/engine/window"
	"github.com/Faultbox/falcon-terrain/internal/logger"
	"github.com/Faultbox/falcon-terrain/pkg/math"
)

var log = logger.Named("viewer")

const (
	mouseSensitivity = 0.003
	groundClearance  = 2
)

// tileGPU is the GPU side of one terrain: its mesh and texture tiles.
type tileGPU struct {
	mesh    *glrender.TerrainMesh
	tileMap *texcache.TileMap
}

func (g *tileGPU) resolver() terrain.TileResolver {
	if g.tileMap == nil {
		return nil
	}
	return g.tileMap
}

func (g *tileGPU) rects() glrender.TileRects {
	if g.tileMap == nil {
		return nil
	}
	return g.tileMap
}

func (g *tileGPU) destroy() {
	if g.tileMap != nil {
		g.tileMap.Close()
	}
	g.mesh.Destroy()
}

// Viewer is the main viewer instance.
type Viewer struct {
	cfg     *config.Config
	running bool

	window   *window.Window
	renderer *glrender.Renderer
	input    *input.Input

	shots    *debug.ScreenshotCapture
	scene    *scene.Scene
	camera   *camera.FlightCamera
	cache    *texcache.Cache
	uploader *glrender.TextureUploader
	shading  terrain.Shading

	single *tileGPU
	tiles  map[lattice.Coord]*tileGPU

	closeLoader func() error

	captured bool
	wantShot bool
	stats    terrain.FrameStats
	draw     glrender.FrameStats
}

// New creates the window, GL renderer and terrain.
func New(cfg *config.Config) (*Viewer, error) {
	v := &Viewer{
		cfg:      cfg,
		input:    input.New(),
		cache:    texcache.New(int64(cfg.Terrain.TextureBudgetMB) << 20),
		uploader: &glrender.TextureUploader{Clamp: true, Anisotropy: 8},
		shading:  lighting.Shading(cfg.Terrain),
		shots:    debug.NewScreenshotCapture(cfg.Graphics.ScreenshotDir, "terrain"),
		tiles:    make(map[lattice.Coord]*tileGPU),
	}

	var err error
	v.window, err = window.New(window.Config{
		Title:      "falcon-terrain",
		Width:      cfg.Graphics.Width,
		Height:     cfg.Graphics.Height,
		Fullscreen: cfg.Graphics.Fullscreen,
		VSync:      cfg.Graphics.VSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	// Renderer AFTER window, since the OpenGL context must exist
	w, h := v.window.DrawableSize()
	v.renderer, err = glrender.New(glrender.DefaultConfig(w, h, cfg.Graphics.Far))
	if err != nil {
		v.window.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	if err := v.loadScene(); err != nil {
		v.Close()
		return nil, err
	}

	c := cfg.Camera
	v.camera = camera.NewFlightCamera(math.Vec3{X: c.X, Y: c.Y, Z: c.Z})
	v.camera.Yaw, v.camera.Pitch = c.Yaw, c.Pitch
	v.camera.FOV = cfg.Graphics.FOVDegrees
	v.camera.Near, v.camera.Far = cfg.Graphics.Near, cfg.Graphics.Far
	v.camera.Speed = c.Speed
	v.camera.Sensitivity = mouseSensitivity

	log.L().Info("viewer initialized")
	return v, nil
}

func (v *Viewer) loadScene() error {
	settings, err := scene.Settings(v.cfg.Terrain)
	if err != nil {
		return err
	}

	if !v.cfg.Lattice.Enabled {
		s, err := scene.New(v.cfg)
		if err != nil {
			return err
		}
		v.scene = s
		v.single, err = v.upload(s.Single().Field, s.Single().Texture, s.Single().TilesPerSide)
		return err
	}

	loader, closeLoader, err := scene.OpenLoader(v.cfg.Lattice, v.cfg.Terrain.ElevationScale)
	if err != nil {
		return err
	}
	l := lattice.New(loader, lattice.Options{
		TileWorldSize: v.cfg.Lattice.TileWorldSize,
		Radius:        v.cfg.Lattice.Radius,
		MaxTriangles:  v.cfg.Terrain.MaxTriangles,
		Settings:      settings,
		OnInstall:     v.installTile,
		OnEvict:       v.evictTile,
	})
	v.scene = scene.NewWithLattice(l, settings)
	v.closeLoader = closeLoader
	return nil
}

// upload builds the vertex buffer and texture tiles of one field.
func (v *Viewer) upload(field *terrain.HeightField, tex *image.RGBA, tilesPerSide int) (*tileGPU, error) {
	vertices, _ := terrain.BuildVertices(field, v.shading)
	g := &tileGPU{mesh: glrender.NewTerrainMesh(field, vertices)}
	if tex == nil {
		return g, nil
	}

	tm, err := texcache.NewTileMap(v.cache, tex, tilesPerSide, field.Origin(), field.WorldSize(), v.uploader)
	if err != nil {
		g.destroy()
		return nil, err
	}
	g.tileMap = tm
	return g, nil
}

func (v *Viewer) installTile(t *lattice.Tile) {
	g, err := v.upload(t.Field(), t.Data.Texture, v.cfg.Terrain.TextureTilesPerSide)
	if err != nil {
		log.L().Warn("tile texture rejected, drawing untextured", zap.Stringer("tile", t.Coord), zap.Error(err))
		g, _ = v.upload(t.Field(), nil, 0)
	}
	t.Resolver = g.resolver()
	if g.tileMap != nil {
		t.Tess.SetTextureTiles(g.tileMap.TilesPerSide())
	}
	v.tiles[t.Coord] = g
}

func (v *Viewer) evictTile(t *lattice.Tile) {
	if g, ok := v.tiles[t.Coord]; ok {
		g.destroy()
		delete(v.tiles, t.Coord)
	}
}

// Run starts the main loop.
func (v *Viewer) Run() error {
	v.running = true

	lastTime := time.Now()
	frameCount := 0
	fpsTimer := time.Now()

	log.L().Info("starting viewer loop")

	for v.running {
		now := time.Now()
		dt := float32(now.Sub(lastTime).Seconds())
		lastTime = now

		if v.input.Update() {
			v.running = false
			break
		}
		v.handleEvents()

		if err := v.update(dt); err != nil {
			return fmt.Errorf("update error: %w", err)
		}
		v.render()
		v.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			v.window.SetTitle(fmt.Sprintf("falcon-terrain | %d fps | %d polys | threshold %.2f | %s",
				frameCount, v.stats.Triangles, v.scene.Settings().Threshold, v.scene.Settings().Method))
			log.L().Debug("frame",
				zap.Int("fps", frameCount),
				zap.Int("triangles", v.stats.Triangles),
				zap.Int("strips", v.stats.Strips),
				zap.Int("fans", v.stats.Fans),
				zap.Int("draw_calls", v.draw.DrawCalls))
			frameCount = 0
			fpsTimer = time.Now()
		}
	}
	return nil
}

func (v *Viewer) handleEvents() {
	for _, event := range v.input.Events() {
		switch event.Type {
		case input.EventWindowResize:
			w, h := v.window.DrawableSize()
			v.renderer.Resize(w, h)
		case input.EventMouseDown:
			switch {
			case event.Button == sdl.BUTTON_RIGHT:
				v.pick(event.MouseX, event.MouseY)
			case !v.captured:
				v.setCaptured(true)
			}
		case input.EventKeyDown:
			switch event.Key {
			case sdl.SCANCODE_ESCAPE:
				if v.captured {
					v.setCaptured(false)
				} else {
					v.running = false
				}
			case sdl.SCANCODE_F:
				v.renderer.SetWireframe(!v.renderer.Wireframe())
			case sdl.SCANCODE_EQUALS, sdl.SCANCODE_KP_PLUS:
				v.scene.ScaleThreshold(1.25)
			case sdl.SCANCODE_MINUS, sdl.SCANCODE_KP_MINUS:
				v.scene.ScaleThreshold(0.8)
			case sdl.SCANCODE_F12:
				v.wantShot = true
			case sdl.SCANCODE_M:
				st := v.scene.Settings()
				st.Method = (st.Method + 1) % (terrain.MethodDistance + 1)
				v.scene.SetSettings(st)
				log.L().Info("tessellate method", zap.Stringer("method", st.Method))
			}
		}
	}
}

// pick logs the terrain point under the cursor.
func (v *Viewer) pick(x, y int) {
	ww, wh := v.window.GetSize()
	w, h := v.renderer.Size()
	sx := float32(x) * float32(w) / float32(ww)
	sy := float32(y) * float32(h) / float32(wh)

	view := v.camera.ViewState(w, h)
	vp := view.ViewProjection()
	ray := picking.ScreenToRay(sx, sy, float32(w), float32(h), vp.Inverse())

	var best picking.Hit
	found := false
	for _, f := range v.scene.Fields() {
		if hit, ok := picking.RaycastField(f, ray, v.camera.Far); ok && (!found || hit.Distance < best.Distance) {
			best, found = hit, true
		}
	}
	if !found {
		log.L().Info("pick missed terrain")
		return
	}
	log.L().Info("picked terrain",
		zap.Float32("x", best.Point.X),
		zap.Float32("y", best.Point.Y),
		zap.Float32("z", best.Point.Z),
		zap.Int("col", best.Col),
		zap.Int("row", best.Row),
		zap.Float32("distance", best.Distance))
}

func (v *Viewer) setCaptured(on bool) {
	v.captured = on
	v.window.SetMouseCaptured(on)
}

func (v *Viewer) update(dt float32) error {
	if v.captured {
		dx, dy := v.input.MouseMotion()
		v.camera.Turn(-float32(dx), -float32(dy))
	}
	if wheel := v.input.Wheel(); wheel != 0 {
		v.camera.Speed = min(max(v.camera.Speed*(1+0.1*float32(wheel)), 1), 10000)
	}

	f, r, u := v.input.FlightAxes()
	v.camera.Move(f*dt, r*dt, u*dt)
	if z, ok := v.scene.GroundHeight(v.camera.Position.X, v.camera.Position.Y); ok {
		v.camera.ClampAbove(z, groundClearance)
	}

	installed, err := v.scene.Update(v.camera.Position)
	if err != nil {
		return err
	}
	if installed > 0 {
		st := v.scene.Lattice().Stats()
		log.L().Debug("tiles installed",
			zap.Int("installed", installed),
			zap.Int("loaded", st.Loaded),
			zap.Int("pending", st.Pending))
	}
	return nil
}

func (v *Viewer) render() {
	w, h := v.renderer.Size()
	view := v.camera.ViewState(w, h)
	v.stats = v.scene.Tessellate(view)

	v.renderer.Begin(view.ViewProjection(), v.camera.Position)

	if v.single != nil {
		g := v.single
		if g.tileMap != nil {
			g.tileMap.SetFocus(v.camera.Position.X, v.camera.Position.Y)
			g.tileMap.BeginFrame()
		}
		g.mesh.Bind(v.renderer, g.rects())
		v.scene.Single().Tess.Render(g.resolver(), g.mesh)
		if g.tileMap != nil {
			g.tileMap.EndFrame()
		}
	} else {
		for _, g := range v.tiles {
			if g.tileMap != nil {
				g.tileMap.BeginFrame()
			}
		}
		for _, tb := range v.scene.Lattice().Batches() {
			g, ok := v.tiles[tb.Tile.Coord]
			if !ok {
				continue
			}
			g.mesh.Bind(v.renderer, g.rects())
			for _, b := range tb.Batches {
				g.mesh.DrawBatch(b)
			}
		}
		for _, g := range v.tiles {
			if g.tileMap != nil {
				g.tileMap.EndFrame()
			}
		}
	}

	v.cache.CheckForOverallocation()
	v.draw = v.renderer.End()

	if v.wantShot {
		v.wantShot = false
		pixels, w, h := v.renderer.ReadPixels()
		path, err := v.shots.CaptureFromPixels(pixels, w, h)
		if err != nil {
			log.L().Warn("screenshot failed", zap.Error(err))
			return
		}
		log.L().Info("screenshot saved", zap.String("path", path))
	}
}

// Close releases GPU resources, the terrain and the window.
func (v *Viewer) Close() {
	log.L().Info("closing viewer")

	if v.scene != nil {
		if err := v.scene.Close(); err != nil {
			log.L().Warn("closing scene", zap.Error(err))
		}
	}
	if v.closeLoader != nil {
		if err := v.closeLoader(); err != nil {
			log.L().Warn("closing tile source", zap.Error(err))
		}
	}
	for c, g := range v.tiles {
		g.destroy()
		delete(v.tiles, c)
	}
	if v.single != nil {
		v.single.destroy()
	}
	if v.renderer != nil {
		v.renderer.Close()
	}
	if v.window != nil {
		v.window.Close()
	}
}
