// surfacetool is a CLI utility for terrain surfaces, elevation data and tile catalogs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Faultbox/falcon-terrain/internal/config"
	"github.com/Faultbox/falcon-terrain/internal/engine/camera"
	"github.com/Faultbox/falcon-terrain/internal/engine/lattice"
	"github.com/Faultbox/falcon-terrain/internal/engine/scene"
	"github.com/Faultbox/falcon-terrain/internal/engine/texture"
	"github.com/Faultbox/falcon-terrain/internal/tilestore"
	"github.com/Faultbox/falcon-terrain/pkg/formats"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "compile":
		cmdCompile(args)
	case "heights":
		cmdHeights(args)
	case "stats":
		cmdStats(args)
	case "register":
		cmdRegister(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`surfacetool - terrain surface and tile utility

Usage:
  surfacetool <command> [options]

Commands:
  info <surface>                          Show compiled surface contents
  compile -texture t [-tiles n] -o out    Split a texture into a compiled surface
  heights -elevation e [-scale s] -o out  Convert an elevation image to raw float32
  stats [-elevation e] [-threshold px]    Tessellate once from an overview camera
  register -db catalog x y elevation [texture]
                                          Add a lattice tile to a SQLite catalog

Examples:
  surfacetool compile -texture ground.png -tiles 8 -o ground.surf.zst
  surfacetool info ground.surf.zst
  surfacetool stats -elevation height.png -threshold 4 -method corners
  surfacetool register -db tiles.db 0 0 tile_0_0.png tex_0_0.png`)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: surfacetool info <surface>")
		os.Exit(1)
	}

	s, err := formats.ReadSurfaceFile(args[0])
	if err != nil {
		fail(err)
	}

	var shared, files, embedded int
	var pixelBytes int
	for _, t := range s.Textures {
		switch {
		case t.Shared >= 0:
			shared++
		case t.FileBacked():
			files++
		default:
			embedded++
			pixelBytes += len(t.Pixels)
		}
	}

	fmt.Printf("Surface:  %s\n", args[0])
	fmt.Printf("Textures: %d (%d embedded, %d files, %d shared)\n", len(s.Textures), embedded, files, shared)
	fmt.Printf("Pixels:   %.2f MB\n", float64(pixelBytes)/(1024*1024))
	fmt.Printf("Tiles:    %d\n", len(s.Tiles))
	fmt.Println()

	for i := range s.Textures {
		t, err := s.Resolve(i)
		if err != nil {
			fail(err)
		}
		desc := fmt.Sprintf("%dx%d, %d channels", t.Width, t.Height, t.Channels)
		if t.FileBacked() {
			desc = "file " + t.FileName
		}
		alias := ""
		if s.Textures[i].Shared >= 0 {
			alias = fmt.Sprintf(" -> %d", s.Textures[i].Shared)
		}
		fmt.Printf("  [%3d]%s %s flags=%#x\n", i, alias, desc, t.Flags)
	}
}

func cmdCompile(args []string) {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	tex := fs.String("texture", "", "Source texture (PNG, BMP, TGA)")
	tiles := fs.Int("tiles", 8, "Texture tiles per side")
	out := fs.String("o", "", "Output surface (.zst to compress)")
	fs.Parse(args)

	if *tex == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "Usage: surfacetool compile -texture t [-tiles n] -o out")
		os.Exit(1)
	}

	img, err := texture.Load(*tex)
	if err != nil {
		fail(err)
	}
	s, err := scene.CompileSurface(img, *tiles)
	if err != nil {
		fail(err)
	}
	if err := formats.WriteSurfaceFile(*out, s); err != nil {
		fail(err)
	}
	fmt.Printf("Compiled %s: %d tiles, %d unique textures -> %s\n", *tex, len(s.Tiles), len(s.Textures), *out)
}

func cmdHeights(args []string) {
	fs := flag.NewFlagSet("heights", flag.ExitOnError)
	elev := fs.String("elevation", "", "Elevation image or raw .f32 file")
	scale := fs.Float64("scale", 1, "Elevation scale")
	out := fs.String("o", "", "Output .f32 file")
	fs.Parse(args)

	if *elev == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "Usage: surfacetool heights -elevation e [-scale s] -o out")
		os.Exit(1)
	}

	e, err := formats.ReadElevationFile(*elev, float32(*scale))
	if err != nil {
		fail(err)
	}
	if err := os.WriteFile(*out, formats.EncodeFloat32(e.Heights), 0o644); err != nil {
		fail(err)
	}
	fmt.Printf("Wrote %dx%d heights to %s\n", e.Size, e.Size, *out)
}

func cmdStats(args []string) {
	cfg := config.Default()
	tc := &cfg.Terrain

	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.StringVar(&tc.ElevationFile, "elevation", "", "Elevation file (empty = demo terrain)")
	threshold := fs.Float64("threshold", float64(tc.DetailThreshold), "Detail threshold in pixels")
	fs.StringVar(&tc.TessellateMethod, "method", tc.TessellateMethod, "column, corners, plane_band or distance")
	spacing := fs.Float64("spacing", float64(tc.VertexSpacing), "Vertex spacing")
	scale := fs.Float64("scale", float64(tc.ElevationScale), "Elevation scale")
	width := fs.Int("width", cfg.Graphics.Width, "Viewport width")
	height := fs.Int("height", cfg.Graphics.Height, "Viewport height")
	fs.Parse(args)

	tc.DetailThreshold = float32(*threshold)
	tc.VertexSpacing = float32(*spacing)
	tc.ElevationScale = float32(*scale)

	settings, err := scene.Settings(*tc)
	if err != nil {
		fail(err)
	}
	t, err := scene.LoadTerrain(*tc, settings)
	if err != nil {
		fail(err)
	}

	cam := camera.NewOrbitCamera()
	cam.FitToBounds(scene.NewWithTerrain(t).Bounds())
	stats := t.Tess.ModelViewChanged(cam.ViewState(*width, *height))
	batches := t.Tess.Batches(nil)

	fmt.Printf("Field:     %dx%d, spacing %.2f\n", t.Field.Size(), t.Field.Size(), t.Field.Spacing())
	fmt.Printf("Method:    %s, threshold %.2f px\n", settings.Method, settings.Threshold)
	fmt.Printf("Blocks:    %d active, %d culled\n", stats.ActiveBlocks, stats.CulledBlocks)
	fmt.Printf("Strips:    %d\n", stats.Strips)
	fmt.Printf("Fans:      %d\n", stats.Fans)
	fmt.Printf("Triangles: %d\n", stats.Triangles)
	fmt.Printf("Batches:   %d\n", len(batches))
	if stats.PoolExhausted {
		fmt.Println("Warning:   primitive pool exhausted, raise max_triangles")
	}
}

func cmdRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	db := fs.String("db", "", "SQLite catalog path")
	worldSize := fs.Float64("world", 256, "Tile world size")
	spacing := fs.Float64("spacing", 0, "Vertex spacing (0 = derive from world size)")
	scale := fs.Float64("scale", 1, "Elevation scale")
	fs.Parse(args)

	if *db == "" || fs.NArg() < 3 {
		fmt.Fprintln(os.Stderr, "Usage: surfacetool register -db catalog x y elevation [texture]")
		os.Exit(1)
	}

	x, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		fail(fmt.Errorf("tile x: %w", err))
	}
	y, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		fail(fmt.Errorf("tile y: %w", err))
	}

	c, err := tilestore.OpenCatalog(*db, float32(*worldSize))
	if err != nil {
		fail(err)
	}
	defer c.Close()

	e := tilestore.Entry{
		Coord:          lattice.Coord{X: x, Y: y},
		ElevationPath:  catalogPath(*db, fs.Arg(2)),
		Spacing:        float32(*spacing),
		ElevationScale: float32(*scale),
	}
	if fs.NArg() > 3 {
		e.TexturePath = catalogPath(*db, fs.Arg(3))
	}

	ctx := context.Background()
	if err := c.Register(ctx, e); err != nil {
		fail(err)
	}
	n, err := c.Count(ctx)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Registered tile %s (%d tiles in catalog)\n", e.Coord, n)
}

// catalogPath stores paths below the catalog directory relative to it.
func catalogPath(db, p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	dir, err := filepath.Abs(filepath.Dir(db))
	if err != nil {
		return p
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return filepath.ToSlash(rel)
}
