// Package glrender draws tessellated terrain with OpenGL 4.1.
//
// Everything here must run on the thread that owns the GL context.
package glrender

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/falcon-terrain/internal/logger"
	"github.com/Faultbox/falcon-terrain/pkg/math"
)

var log = logger.Named("glrender")

// Config holds renderer configuration.
type Config struct {
	Width  int
	Height int

	ClearColor [3]float32
	FogNear    float32
	FogFar     float32
}

// DefaultConfig returns a hazy sky with fog starting at 60% of far.
func DefaultConfig(width, height int, far float32) Config {
	return Config{
		Width:      width,
		Height:     height,
		ClearColor: [3]float32{0.55, 0.68, 0.82},
		FogNear:    far * 0.6,
		FogFar:     far,
	}
}

// FrameStats counts what was submitted since Begin.
type FrameStats struct {
	Batches   int
	DrawCalls int
	Triangles int
}

// Renderer handles all OpenGL state for terrain drawing.
type Renderer struct {
	config Config

	program uint32

	locViewProj  int32
	locEye       int32
	locTileRect  int32
	locTexture   int32
	locTextured  int32
	locBaseColor int32
	locFogColor  int32
	locFogNear   int32
	locFogFar    int32

	wireframe bool
	stats     FrameStats
}

// New creates a renderer.
// IMPORTANT: Must be called AFTER the OpenGL context is created!
func New(cfg Config) (*Renderer, error) {
	r := &Renderer{config: cfg}

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	log.L().Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.CULL_FACE)
	gl.CullFace(gl.BACK)
	gl.FrontFace(gl.CCW)
	gl.Enable(gl.PRIMITIVE_RESTART)
	gl.PrimitiveRestartIndex(restartIndex)
	gl.ClearColor(cfg.ClearColor[0], cfg.ClearColor[1], cfg.ClearColor[2], 1.0)

	program, err := CompileProgram(terrainVertexShader, terrainFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("terrain shader: %w", err)
	}
	r.program = program

	r.locViewProj = uniform(program, "uViewProj")
	r.locEye = uniform(program, "uEye")
	r.locTileRect = uniform(program, "uTileRect")
	r.locTexture = uniform(program, "uTexture")
	r.locTextured = uniform(program, "uTextured")
	r.locBaseColor = uniform(program, "uBaseColor")
	r.locFogColor = uniform(program, "uFogColor")
	r.locFogNear = uniform(program, "uFogNear")
	r.locFogFar = uniform(program, "uFogFar")

	r.Resize(cfg.Width, cfg.Height)
	return r, nil
}

// Close releases GL resources.
func (r *Renderer) Close() {
	log.L().Info("closing renderer")
	if r.program != 0 {
		gl.DeleteProgram(r.program)
		r.program = 0
	}
}

// Resize handles window resize.
func (r *Renderer) Resize(width, height int) {
	r.config.Width = width
	r.config.Height = height
	gl.Viewport(0, 0, int32(width), int32(height))
	log.L().Debug("renderer resized", zap.Int("width", width), zap.Int("height", height))
}

// Size returns the viewport size.
func (r *Renderer) Size() (int, int) { return r.config.Width, r.config.Height }

// SetWireframe toggles line rendering.
func (r *Renderer) SetWireframe(on bool) { r.wireframe = on }

// Wireframe reports whether line rendering is on.
func (r *Renderer) Wireframe() bool { return r.wireframe }

// Begin clears the frame and binds the terrain program for viewProj.
func (r *Renderer) Begin(viewProj math.Mat4, eye math.Vec3) {
	r.stats = FrameStats{}
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	mode := uint32(gl.FILL)
	if r.wireframe {
		mode = gl.LINE
	}
	gl.PolygonMode(gl.FRONT_AND_BACK, mode)

	c := r.config
	gl.UseProgram(r.program)
	gl.UniformMatrix4fv(r.locViewProj, 1, false, &viewProj[0])
	gl.Uniform3f(r.locEye, eye.X, eye.Y, eye.Z)
	gl.Uniform3f(r.locFogColor, c.ClearColor[0], c.ClearColor[1], c.ClearColor[2])
	gl.Uniform1f(r.locFogNear, c.FogNear)
	gl.Uniform1f(r.locFogFar, c.FogFar)
	gl.Uniform3f(r.locBaseColor, 0.45, 0.55, 0.3)
	gl.Uniform1i(r.locTexture, 0)
	gl.ActiveTexture(gl.TEXTURE0)
}

// End finishes the frame and returns its statistics.
func (r *Renderer) End() FrameStats {
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	if err := glError("frame"); err != nil {
		log.L().Warn("GL error during frame", zap.Error(err))
	}
	return r.stats
}

// ReadPixels returns the back buffer as bottom-up RGBA rows.
func (r *Renderer) ReadPixels() ([]byte, int, int) {
	w, h := r.config.Width, r.config.Height
	pixels := make([]byte, w*h*4)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
	return pixels, w, h
}

func (r *Renderer) bindTile(texture uint32, origin math.Vec2, extent float32) {
	if texture == 0 {
		gl.Uniform1i(r.locTextured, 0)
		return
	}
	gl.Uniform1i(r.locTextured, 1)
	gl.BindTexture(gl.TEXTURE_2D, texture)
	gl.Uniform4f(r.locTileRect, origin.X, origin.Y, extent, extent)
}
