// Package lattice tiles several height fields into a window around the camera.
//
// Tiles load in the background. Completed loads are installed by Poll on the
// caller's goroutine, so GPU work attached through Options hooks stays on the
// render thread. Shared tile edges are stitched before crack repair so that
// neighbouring tiles agree on every edge vertex.
package lattice

import (
	"context"
	"errors"
	"fmt"
	"image"
	gomath "math"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Faultbox/falcon-terrain/internal/engine/terrain"
	"github.com/Faultbox/falcon-terrain/internal/logger"
	"github.com/Faultbox/falcon-terrain/pkg/math"
)

var log = logger.Named("lattice")

// ErrClosed is returned by operations on a closed lattice.
var ErrClosed = errors.New("lattice closed")

// errStaleLoad marks a load that finished after its tile left the window.
var errStaleLoad = errors.New("stale tile load")

// Coord addresses a tile. Tile (x,y) covers world [x*size, (x+1)*size) on each axis.
type Coord struct {
	X, Y int
}

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// TileData is what a loader produces for one tile.
type TileData struct {
	Field *terrain.HeightField
	// Texture is optional; nil means the tile is untextured.
	Texture *image.RGBA
}

// TileLoader fetches tile data. Implementations must honour ctx cancellation
// and may be called from several goroutines at once.
type TileLoader interface {
	LoadTile(ctx context.Context, c Coord) (*TileData, error)
}

// Options configure a lattice.
type Options struct {
	// TileWorldSize is the world extent of one tile; each loaded field must span it.
	TileWorldSize float32
	// Radius of the window in tiles; 1 gives the 3x3 window.
	Radius       int
	MaxTriangles int // per tile
	Settings     terrain.Settings

	// RetryBackoff is the delay before a failed tile is requested again; it
	// doubles with every consecutive failure up to MaxRetryBackoff.
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration

	// OnInstall runs inside Poll for every tile that enters the lattice.
	OnInstall func(*Tile)
	// OnEvict runs when a tile leaves the window or the lattice closes.
	OnEvict func(*Tile)
}

// DefaultOptions returns a 3x3 window of 256-unit tiles.
func DefaultOptions() Options {
	return Options{
		TileWorldSize:   256,
		Radius:          1,
		MaxTriangles:    20000,
		Settings:        terrain.DefaultSettings(),
		RetryBackoff:    time.Second,
		MaxRetryBackoff: 30 * time.Second,
	}
}

// Tile is a loaded lattice tile.
type Tile struct {
	Coord Coord
	Data  *TileData
	Tess  *terrain.Tessellator
	// Resolver maps world positions to texture tiles; set by OnInstall, may be nil.
	Resolver terrain.TileResolver
}

// Field returns the tile's height field.
func (t *Tile) Field() *terrain.HeightField { return t.Data.Field }

// Stats counts loader outcomes.
type Stats struct {
	Loaded  int
	Pending int
	Failed  int
	Retries int
	Stale   int
	Evicted int
}

type pendingLoad struct {
	generation uint64
	cancel     context.CancelFunc
	attempt    int // failures before this request
}

// failedLoad is a tile waiting out its retry backoff.
type failedLoad struct {
	attempts int
	retryAt  time.Time
}

type loadResult struct {
	coord      Coord
	generation uint64
	data       *TileData
	err        error
}

// Lattice owns the tiles of the active window.
type Lattice struct {
	loader TileLoader
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	flight singleflight.Group

	results chan loadResult

	mu         sync.Mutex
	tiles      map[Coord]*Tile
	pending    map[Coord]pendingLoad
	failed     map[Coord]failedLoad
	now        func() time.Time
	center     Coord
	centered   bool
	generation uint64
	closed     bool
	stats      Stats
}

// New creates an empty lattice. Nothing loads until the first Update.
func New(loader TileLoader, opts Options) *Lattice {
	if opts.Radius < 0 {
		opts.Radius = 0
	}
	if opts.TileWorldSize <= 0 {
		opts.TileWorldSize = DefaultOptions().TileWorldSize
	}
	if opts.MaxTriangles <= 0 {
		opts.MaxTriangles = DefaultOptions().MaxTriangles
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultOptions().RetryBackoff
	}
	if opts.MaxRetryBackoff < opts.RetryBackoff {
		opts.MaxRetryBackoff = max(DefaultOptions().MaxRetryBackoff, opts.RetryBackoff)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	side := 2*opts.Radius + 1

	return &Lattice{
		loader:  loader,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		group:   group,
		results: make(chan loadResult, 2*side*side),
		tiles:   make(map[Coord]*Tile),
		pending: make(map[Coord]pendingLoad),
		failed:  make(map[Coord]failedLoad),
		now:     time.Now,
	}
}

// Options returns the lattice configuration.
func (l *Lattice) Options() Options { return l.opts }

// TileAt returns the coordinate of the tile containing world (x,y).
func (l *Lattice) TileAt(x, y float32) Coord {
	s := float64(l.opts.TileWorldSize)
	return Coord{X: int(gomath.Floor(float64(x) / s)), Y: int(gomath.Floor(float64(y) / s))}
}

// Center returns the window center.
func (l *Lattice) Center() Coord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.center
}

func (l *Lattice) inWindow(c Coord) bool {
	r := l.opts.Radius
	return abs(c.X-l.center.X) <= r && abs(c.Y-l.center.Y) <= r
}

// Update recenters the window on the camera position. Tiles leaving the
// window are evicted and their in-flight loads cancelled; missing tiles in
// the new window start loading. Failed tiles are requested again once their
// backoff has elapsed, even when the window did not move.
func (l *Lattice) Update(camera math.Vec3) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	c := l.TileAt(camera.X, camera.Y)
	if !l.centered || c != l.center {
		l.recenter(c)
	}
	l.retryFailed()
	return nil
}

// recenter must be called with mu held.
func (l *Lattice) recenter(c Coord) {
	l.center = c
	l.centered = true
	l.generation++

	for coord, t := range l.tiles {
		if !l.inWindow(coord) {
			l.evict(t)
		}
	}
	for coord, p := range l.pending {
		if !l.inWindow(coord) {
			p.cancel()
			l.flight.Forget(coord.String())
			delete(l.pending, coord)
		}
	}
	for coord := range l.failed {
		if !l.inWindow(coord) {
			delete(l.failed, coord)
		}
	}

	r := l.opts.Radius
	for y := c.Y - r; y <= c.Y+r; y++ {
		for x := c.X - r; x <= c.X+r; x++ {
			coord := Coord{X: x, Y: y}
			if _, ok := l.tiles[coord]; ok {
				continue
			}
			if _, ok := l.pending[coord]; ok {
				continue
			}
			if _, ok := l.failed[coord]; ok {
				continue
			}
			l.startLoad(coord, 0)
		}
	}

	log.L().Debug("window recentered",
		zap.Stringer("center", c),
		zap.Int("tiles", len(l.tiles)),
		zap.Int("pending", len(l.pending)))
}

// retryFailed must be called with mu held.
func (l *Lattice) retryFailed() {
	now := l.now()
	for coord, f := range l.failed {
		if now.Before(f.retryAt) {
			continue
		}
		delete(l.failed, coord)
		l.stats.Retries++
		log.L().Debug("retrying tile load", zap.Stringer("tile", coord), zap.Int("attempt", f.attempts+1))
		l.startLoad(coord, f.attempts)
	}
}

// backoff returns the delay after the given number of consecutive failures.
func (l *Lattice) backoff(failures int) time.Duration {
	d := l.opts.RetryBackoff
	for i := 1; i < failures && d < l.opts.MaxRetryBackoff; i++ {
		d *= 2
	}
	return min(d, l.opts.MaxRetryBackoff)
}

// startLoad must be called with mu held.
func (l *Lattice) startLoad(c Coord, attempt int) {
	ctx, cancel := context.WithCancel(l.ctx)
	gen := l.generation
	l.pending[c] = pendingLoad{generation: gen, cancel: cancel, attempt: attempt}

	l.group.Go(func() error {
		defer cancel()
		v, err, _ := l.flight.Do(c.String(), func() (any, error) {
			return l.loader.LoadTile(ctx, c)
		})
		data, _ := v.(*TileData)

		select {
		case l.results <- loadResult{coord: c, generation: gen, data: data, err: err}:
		case <-l.ctx.Done():
		}
		return nil
	})
}

// Poll installs completed loads without blocking and returns how many tiles
// were installed.
func (l *Lattice) Poll() int {
	n := 0
	for {
		select {
		case r := <-l.results:
			if l.install(r) == nil {
				n++
			}
		default:
			return n
		}
	}
}

func (l *Lattice) install(r loadResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	p, ok := l.pending[r.coord]
	if !ok || p.generation != r.generation || !l.inWindow(r.coord) {
		l.stats.Stale++
		return errStaleLoad
	}
	delete(l.pending, r.coord)

	err := r.err
	if err == nil {
		err = l.checkTile(r.data)
	}
	if err != nil {
		l.stats.Failed++
		f := failedLoad{attempts: p.attempt + 1}
		delay := l.backoff(f.attempts)
		f.retryAt = l.now().Add(delay)
		l.failed[r.coord] = f
		log.L().Warn("tile load failed",
			zap.Stringer("tile", r.coord),
			zap.Int("attempts", f.attempts),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		return err
	}

	field := r.data.Field
	size := l.opts.TileWorldSize
	field.SetOrigin(math.Vec2{X: float32(r.coord.X) * size, Y: float32(r.coord.Y) * size})

	t := &Tile{
		Coord: r.coord,
		Data:  r.data,
		Tess:  terrain.New(field, l.opts.MaxTriangles, l.opts.Settings),
	}
	l.tiles[r.coord] = t
	l.stats.Loaded++
	if l.opts.OnInstall != nil {
		l.opts.OnInstall(t)
	}

	log.L().Debug("tile installed", zap.Stringer("tile", r.coord), zap.Int("size", field.Size()))
	return nil
}

func (l *Lattice) checkTile(d *TileData) error {
	if d == nil || d.Field == nil {
		return errors.New("loader returned no height field")
	}
	if ws := d.Field.WorldSize(); gomath.Abs(float64(ws-l.opts.TileWorldSize)) > 1e-3 {
		return fmt.Errorf("tile spans %g world units, lattice tiles are %g", ws, l.opts.TileWorldSize)
	}
	return nil
}

// evict must be called with mu held.
func (l *Lattice) evict(t *Tile) {
	delete(l.tiles, t.Coord)
	l.stats.Evicted++
	if l.opts.OnEvict != nil {
		l.opts.OnEvict(t)
	}
}

// SetSettings changes the LOD settings of every tile, current and future.
func (l *Lattice) SetSettings(s terrain.Settings) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opts.Settings = s
	for _, t := range l.tiles {
		t.Tess.SetSettings(s)
	}
}

// Tiles returns the loaded tiles ordered by row then column.
func (l *Lattice) Tiles() []*Tile {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedTiles()
}

func (l *Lattice) sortedTiles() []*Tile {
	out := make([]*Tile, 0, len(l.tiles))
	for _, t := range l.tiles {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Tile) int {
		if a.Coord.Y != b.Coord.Y {
			return a.Coord.Y - b.Coord.Y
		}
		return a.Coord.X - b.Coord.X
	})
	return out
}

// Tile returns the loaded tile at c, or nil.
func (l *Lattice) Tile(c Coord) *Tile {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tiles[c]
}

// Stats returns loader counters.
func (l *Lattice) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.Pending = len(l.pending)
	return s
}

// Close cancels outstanding loads, evicts every tile and waits for the
// loader goroutines to exit.
func (l *Lattice) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.cancel()
	for c, p := range l.pending {
		p.cancel()
		delete(l.pending, c)
	}
	clear(l.failed)
	for _, t := range l.sortedTiles() {
		l.evict(t)
	}
	l.mu.Unlock()

	return l.group.Wait()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
