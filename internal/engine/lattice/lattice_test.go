package lattice

import (
	"context"
	"errors"
	gomath "math"
	"sync"
	"testing"
	"time"

	"github.com/Faultbox/falcon-terrain/internal/engine/terrain"
	"github.com/Faultbox/falcon-terrain/internal/engine/texture"
	"github.com/Faultbox/falcon-terrain/pkg/math"
)

const (
	testTileSize  = 9
	testTileWorld = 8
)

// fakeLoader builds flat tiles, with per-coordinate overrides.
type fakeLoader struct {
	mu     sync.Mutex
	calls  map[Coord]int
	fields map[Coord]func() []float32
	fail   map[Coord]error
	block  map[Coord]chan struct{}
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		calls:  map[Coord]int{},
		fields: map[Coord]func() []float32{},
		fail:   map[Coord]error{},
		block:  map[Coord]chan struct{}{},
	}
}

func (f *fakeLoader) LoadTile(ctx context.Context, c Coord) (*TileData, error) {
	f.mu.Lock()
	f.calls[c]++
	gate := f.block[c]
	err := f.fail[c]
	gen := f.fields[c]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	elev := make([]float32, testTileSize*testTileSize)
	if gen != nil {
		elev = gen()
	}
	field, ferr := terrain.NewHeightField(testTileSize, testTileSize, 1, elev)
	if ferr != nil {
		return nil, ferr
	}
	return &TileData{Field: field}, nil
}

func (f *fakeLoader) callCount(c Coord) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[c]
}

func testOptions() Options {
	return Options{
		TileWorldSize: testTileWorld,
		Radius:        1,
		MaxTriangles:  4000,
		Settings:      terrain.Settings{Threshold: 1, Method: terrain.MethodColumn, ZWeight: 1},
	}
}

// pollUntil polls the lattice until cond holds or a deadline passes.
func pollUntil(t *testing.T, l *Lattice, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		l.Poll()
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached, stats %+v", l.Stats())
}

func topDown(x, y, h float32) terrain.ViewState {
	view := math.LookAt(math.Vec3{X: x, Y: y, Z: h}, math.Vec3{X: x, Y: y}, math.Vec3{Y: 1})
	proj := math.Perspective(float32(gomath.Pi/3), 1, 1, 1000)
	return terrain.NewViewState(view, proj, math.Viewport{Width: 600, Height: 600})
}

func TestTileAt(t *testing.T) {
	l := New(newFakeLoader(), testOptions())
	defer l.Close()

	tests := []struct {
		x, y float32
		want Coord
	}{
		{0, 0, Coord{0, 0}},
		{7.9, 7.9, Coord{0, 0}},
		{8, 0, Coord{1, 0}},
		{-0.1, 3, Coord{-1, 0}},
		{-8, -8.5, Coord{-1, -2}},
	}
	for _, tt := range tests {
		if got := l.TileAt(tt.x, tt.y); got != tt.want {
			t.Errorf("TileAt(%v,%v) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestUpdateLoadsWindow(t *testing.T) {
	loader := newFakeLoader()
	var installed []Coord
	opts := testOptions()
	opts.OnInstall = func(tile *Tile) { installed = append(installed, tile.Coord) }

	l := New(loader, opts)
	defer l.Close()

	if err := l.Update(math.Vec3{X: 4, Y: 4}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	pollUntil(t, l, func() bool { return len(l.Tiles()) == 9 })

	if len(installed) != 9 {
		t.Errorf("OnInstall called %d times, want 9", len(installed))
	}
	for _, tile := range l.Tiles() {
		o := tile.Field().Origin()
		if o.X != float32(tile.Coord.X*testTileWorld) || o.Y != float32(tile.Coord.Y*testTileWorld) {
			t.Errorf("tile %v origin = %+v", tile.Coord, o)
		}
	}

	// Same center: nothing new is requested.
	l.Update(math.Vec3{X: 5, Y: 6})
	if s := l.Stats(); s.Pending != 0 {
		t.Errorf("pending = %d after no-op update", s.Pending)
	}
	if n := loader.callCount(Coord{0, 0}); n != 1 {
		t.Errorf("center loaded %d times", n)
	}
}

func TestUpdateEvictsOutsideWindow(t *testing.T) {
	var evicted []Coord
	opts := testOptions()
	opts.OnEvict = func(tile *Tile) { evicted = append(evicted, tile.Coord) }

	l := New(newFakeLoader(), opts)
	defer l.Close()

	l.Update(math.Vec3{X: 4, Y: 4})
	pollUntil(t, l, func() bool { return len(l.Tiles()) == 9 })

	// One tile east: the western column leaves.
	l.Update(math.Vec3{X: 12, Y: 4})
	if len(evicted) != 3 {
		t.Fatalf("evicted %v, want the 3 tiles of column -1", evicted)
	}
	for _, c := range evicted {
		if c.X != -1 {
			t.Errorf("evicted %v, want column -1", c)
		}
	}
	pollUntil(t, l, func() bool { return len(l.Tiles()) == 9 })
	if l.Tile(Coord{2, 1}) == nil {
		t.Error("tile (2,1) not loaded after recentering")
	}
	if l.Tile(Coord{-1, 0}) != nil {
		t.Error("tile (-1,0) still loaded")
	}
}

func TestStaleLoadsDiscarded(t *testing.T) {
	loader := newFakeLoader()
	gate := make(chan struct{})
	loader.block[Coord{0, 0}] = gate

	l := New(loader, testOptions())
	defer l.Close()

	l.Update(math.Vec3{X: 4, Y: 4})
	// Move far away before the center tile finishes.
	l.Update(math.Vec3{X: 100, Y: 100})
	close(gate)

	pollUntil(t, l, func() bool { return len(l.Tiles()) == 9 && l.Stats().Pending == 0 })

	for _, tile := range l.Tiles() {
		if tile.Coord.X < 11 || tile.Coord.Y < 11 {
			t.Errorf("tile %v from the old window installed", tile.Coord)
		}
	}
	// Every old-window load either finished late or was cancelled.
	pollUntil(t, l, func() bool { return l.Stats().Stale >= 1 })
}

func TestFailedLoadLeavesNeighbors(t *testing.T) {
	loader := newFakeLoader()
	loader.fail[Coord{1, 0}] = &texture.AssetError{Path: "tile_1_0.png", Err: errors.New("no such file")}

	l := New(loader, testOptions())
	defer l.Close()

	l.Update(math.Vec3{X: 4, Y: 4})
	pollUntil(t, l, func() bool { s := l.Stats(); return s.Pending == 0 })

	s := l.Stats()
	if s.Failed != 1 || s.Loaded != 8 {
		t.Fatalf("stats = %+v, want 1 failed, 8 loaded", s)
	}
	if l.Tile(Coord{1, 0}) != nil {
		t.Error("failed tile installed")
	}

	stats := l.Tessellate(topDown(4, 4, 40))
	if stats.Triangles == 0 {
		t.Error("no triangles from the surviving tiles")
	}
	for _, tb := range l.Batches() {
		if tb.Tile.Coord == (Coord{1, 0}) {
			t.Error("batches for the failed tile")
		}
	}
}

func TestFailedLoadRetriedWithBackoff(t *testing.T) {
	loader := newFakeLoader()
	bad := Coord{1, 0}
	loader.fail[bad] = errors.New("tile server unavailable")

	opts := testOptions()
	opts.RetryBackoff = time.Second
	opts.MaxRetryBackoff = 4 * time.Second
	l := New(loader, opts)
	defer l.Close()

	clock := time.Unix(1000, 0)
	l.now = func() time.Time { return clock }
	camera := math.Vec3{X: 4, Y: 4}

	l.Update(camera)
	pollUntil(t, l, func() bool { return l.Stats().Pending == 0 })
	if s := l.Stats(); s.Failed != 1 || s.Loaded != 8 {
		t.Fatalf("stats = %+v, want 1 failed, 8 loaded", s)
	}

	// Within the backoff the window is unchanged and nothing is requested.
	clock = clock.Add(999 * time.Millisecond)
	l.Update(camera)
	if s := l.Stats(); s.Pending != 0 || s.Retries != 0 {
		t.Fatalf("retried before the backoff elapsed: %+v", s)
	}

	// First retry after one second fails again; the next waits two.
	clock = clock.Add(time.Millisecond)
	l.Update(camera)
	if s := l.Stats(); s.Pending != 1 || s.Retries != 1 {
		t.Fatalf("stats = %+v, want one retry in flight", s)
	}
	pollUntil(t, l, func() bool { return l.Stats().Failed == 2 })

	clock = clock.Add(time.Second)
	l.Update(camera)
	if s := l.Stats(); s.Retries != 1 {
		t.Fatalf("second retry after 1s, want a 2s backoff: %+v", s)
	}

	loader.mu.Lock()
	delete(loader.fail, bad)
	loader.mu.Unlock()

	clock = clock.Add(time.Second)
	l.Update(camera)
	pollUntil(t, l, func() bool { return l.Tile(bad) != nil })

	if n := loader.callCount(bad); n != 3 {
		t.Errorf("failed tile requested %d times, want 3", n)
	}
	if s := l.Stats(); s.Loaded != 9 || s.Failed != 2 || s.Retries != 2 {
		t.Errorf("stats = %+v, want 9 loaded, 2 failed, 2 retries", s)
	}
}

func TestFailedLoadForgottenOutsideWindow(t *testing.T) {
	loader := newFakeLoader()
	bad := Coord{-1, 0}
	loader.fail[bad] = errors.New("tile server unavailable")

	l := New(loader, testOptions())
	defer l.Close()

	clock := time.Unix(1000, 0)
	l.now = func() time.Time { return clock }

	l.Update(math.Vec3{X: 4, Y: 4})
	pollUntil(t, l, func() bool { return l.Stats().Pending == 0 })

	// Column -1 leaves the window; the pending retry goes with it.
	l.Update(math.Vec3{X: 12, Y: 4})
	pollUntil(t, l, func() bool { return l.Stats().Pending == 0 })
	clock = clock.Add(time.Minute)
	l.Update(math.Vec3{X: 12, Y: 4})

	if s := l.Stats(); s.Retries != 0 || s.Pending != 0 {
		t.Errorf("stats = %+v, want no retry for a tile outside the window", s)
	}
	if n := loader.callCount(bad); n != 1 {
		t.Errorf("tile outside the window requested %d times", n)
	}
}

func TestBackoffDoublesUpToMax(t *testing.T) {
	opts := testOptions()
	opts.RetryBackoff = time.Second
	opts.MaxRetryBackoff = 5 * time.Second
	l := New(newFakeLoader(), opts)
	defer l.Close()

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := l.backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestWrongTileExtentRejected(t *testing.T) {
	opts := testOptions()
	opts.TileWorldSize = 16
	opts.Radius = 0

	l := New(newFakeLoader(), opts)
	defer l.Close()

	l.Update(math.Vec3{})
	pollUntil(t, l, func() bool { return l.Stats().Pending == 0 })
	if s := l.Stats(); s.Failed != 1 {
		t.Errorf("stats = %+v, want the mismatched tile rejected", s)
	}
}

// rough is non-planar everywhere so the column metric refines it to leaves.
func rough() []float32 {
	elev := make([]float32, testTileSize*testTileSize)
	for i := range elev {
		elev[i] = float32((i*7)%5) * 3
	}
	return elev
}

func TestTessellateStitchesEdges(t *testing.T) {
	loader := newFakeLoader()
	loader.fields[Coord{0, 0}] = rough

	l := New(loader, testOptions())
	defer l.Close()

	l.Update(math.Vec3{X: 4, Y: 4})
	pollUntil(t, l, func() bool { return len(l.Tiles()) == 9 })

	l.Tessellate(topDown(4, 4, 40))

	n := testTileSize
	for _, a := range l.Tiles() {
		fa := a.Field()
		if b := l.Tile(Coord{a.Coord.X + 1, a.Coord.Y}); b != nil {
			for k := 0; k < n; k++ {
				ua := a.Tess.UsedVertex(fa.Index(n-1, k))
				ub := b.Tess.UsedVertex(b.Field().Index(0, k))
				if ua != ub {
					t.Errorf("edge %v|%v row %d: used %v vs %v", a.Coord, b.Coord, k, ua, ub)
				}
			}
		}
		if b := l.Tile(Coord{a.Coord.X, a.Coord.Y + 1}); b != nil {
			for k := 0; k < n; k++ {
				ua := a.Tess.UsedVertex(fa.Index(k, n-1))
				ub := b.Tess.UsedVertex(b.Field().Index(k, 0))
				if ua != ub {
					t.Errorf("edge %v/%v col %d: used %v vs %v", a.Coord, b.Coord, k, ua, ub)
				}
			}
		}
	}

	// The flat east neighbour takes every vertex of the rough edge.
	east := l.Tile(Coord{1, 0})
	for k := 0; k < n; k++ {
		if !east.Tess.UsedVertex(east.Field().Index(0, k)) {
			t.Errorf("east tile edge vertex %d not used", k)
		}
	}
	if east.Tess.Stats().Fans == 0 {
		t.Error("east tile has no repair fans along the stitched edge")
	}

	// A flat tile away from the rough one stays a single strip.
	far := l.Tile(Coord{1, 1})
	if s := far.Tess.Stats(); s.Fans != 0 || s.Strips != 1 {
		t.Errorf("corner tile stats = %+v, want one strip", s)
	}
}

func TestCloseStopsLoads(t *testing.T) {
	loader := newFakeLoader()
	gate := make(chan struct{})
	for y := -1; y <= 1; y++ {
		for x := -1; x <= 1; x++ {
			loader.block[Coord{x, y}] = gate
		}
	}

	l := New(loader, testOptions())
	l.Update(math.Vec3{X: 4, Y: 4})

	done := make(chan error, 1)
	go func() { done <- l.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return with loads blocked")
	}

	if err := l.Update(math.Vec3{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Update after Close = %v, want ErrClosed", err)
	}
	if err := l.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close = %v, want ErrClosed", err)
	}
	close(gate)
}
