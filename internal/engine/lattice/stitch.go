package lattice

import (
	"github.com/Faultbox/falcon-terrain/internal/engine/terrain"
)

// Tessellate runs a pass over every loaded tile: block selection first, then
// edge stitching between neighbours, then crack repair. It returns the
// combined statistics.
func (l *Lattice) Tessellate(view terrain.ViewState) terrain.FrameStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	tiles := l.sortedTiles()
	for _, t := range tiles {
		t.Tess.BeginPass(view)
		t.Tess.TessellateBlocks()
	}

	// Corner vertices are shared by four tiles, so marks can need more than
	// one sweep to reach a diagonal neighbour.
	for sweep := 0; sweep < 4; sweep++ {
		changed := false
		for _, t := range tiles {
			if r := l.tiles[Coord{X: t.Coord.X + 1, Y: t.Coord.Y}]; r != nil {
				changed = stitchEdge(t.Tess, r.Tess, true) || changed
			}
			if u := l.tiles[Coord{X: t.Coord.X, Y: t.Coord.Y + 1}]; u != nil {
				changed = stitchEdge(t.Tess, u.Tess, false) || changed
			}
		}
		if !changed {
			break
		}
	}

	var total terrain.FrameStats
	for _, t := range tiles {
		t.Tess.RepairCracks()
		s := t.Tess.Stats()
		total.Strips += s.Strips
		total.Fans += s.Fans
		total.Triangles += s.Triangles
		total.ActiveBlocks += s.ActiveBlocks
		total.CulledBlocks += s.CulledBlocks
		total.FanOverflow += s.FanOverflow
		total.PoolExhausted = total.PoolExhausted || s.PoolExhausted
	}
	return total
}

// stitchEdge merges the used marks along the edge shared by a and its
// neighbour b, to the right of a when horizontal is set and above it
// otherwise. It reports whether any mark was added.
func stitchEdge(a, b *terrain.Tessellator, horizontal bool) bool {
	fa, fb := a.Field(), b.Field()
	n := fa.Size()
	if fb.Size() != n {
		log.L().Debug("edge not stitched, tile sizes differ")
		return false
	}

	changed := false
	for k := 0; k < n; k++ {
		var ia, ib int
		if horizontal {
			ia, ib = fa.Index(n-1, k), fb.Index(0, k)
		} else {
			ia, ib = fa.Index(k, n-1), fb.Index(k, 0)
		}
		ua, ub := a.UsedVertex(ia), b.UsedVertex(ib)
		switch {
		case ua && !ub:
			b.MarkVertexUsed(ib)
			changed = true
		case ub && !ua:
			a.MarkVertexUsed(ia)
			changed = true
		}
	}
	return changed
}

// TileBatches holds the draw batches of one tile. Indices refer to that
// tile's own vertex buffer.
type TileBatches struct {
	Tile    *Tile
	Batches []terrain.Batch
}

// Batches returns the primitives of the last Tessellate, per tile.
func (l *Lattice) Batches() []TileBatches {
	l.mu.Lock()
	defer l.mu.Unlock()

	tiles := l.sortedTiles()
	out := make([]TileBatches, 0, len(tiles))
	for _, t := range tiles {
		out = append(out, TileBatches{Tile: t, Batches: t.Tess.Batches(t.Resolver)})
	}
	return out
}
