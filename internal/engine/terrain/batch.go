package terrain

import "slices"

// TileResolver maps a world position to the texture tile covering it.
// tile is a stable sort key; texture is the bound texture handle, 0 for none.
type TileResolver interface {
	TileAt(x, y float32) (tile int, texture uint32)
}

// Primitive is one index list to draw.
type Primitive struct {
	Topology Topology
	Indices  []uint32
}

// Batch groups primitives sharing a texture tile.
type Batch struct {
	Tile       int
	Texture    uint32
	Primitives []Primitive
}

// Triangles returns the triangle count of the batch.
func (b *Batch) Triangles() int {
	n := 0
	for _, p := range b.Primitives {
		n += max(len(p.Indices)-2, 0)
	}
	return n
}

// BatchSink receives draw batches, typically the GL backend.
type BatchSink interface {
	DrawBatch(Batch)
}

// Batches groups the enabled primitives of the last pass by texture tile,
// ordered by tile key. Strips precede fans within a batch.
// Index slices alias the pool and are valid until the next pass.
// A nil resolver puts everything in tile 0.
func (t *Tessellator) Batches(r TileResolver) []Batch {
	byTile := make(map[int]int)
	var out []Batch

	get := func(x, y float32) *Batch {
		tile, tex := 0, uint32(0)
		if r != nil {
			tile, tex = r.TileAt(x, y)
		}
		k, ok := byTile[tile]
		if !ok {
			k = len(out)
			byTile[tile] = k
			out = append(out, Batch{Tile: tile, Texture: tex})
		}
		return &out[k]
	}

	strips := t.pool.Strips()
	for i := range strips {
		s := &strips[i]
		if !s.Enabled {
			continue
		}
		b := get(s.MinX, s.MinY)
		b.Primitives = append(b.Primitives, Primitive{Topology: TopologyStrip, Indices: s.Vertices()})
	}
	fans := t.pool.Fans()
	for i := range fans {
		f := &fans[i]
		if !f.Enabled {
			continue
		}
		b := get(f.MinX, f.MinY)
		b.Primitives = append(b.Primitives, Primitive{Topology: TopologyFan, Indices: f.Vertices()})
	}

	slices.SortStableFunc(out, func(a, b Batch) int { return a.Tile - b.Tile })
	return out
}

// Render hands every batch of the last pass to sink and returns the
// number of triangles submitted.
func (t *Tessellator) Render(r TileResolver, sink BatchSink) int {
	n := 0
	for _, b := range t.Batches(r) {
		sink.DrawBatch(b)
		n += b.Triangles()
	}
	return n
}

// RestartIndex separates primitives in a packed index list.
const RestartIndex = ^uint32(0)

// Pack appends the batch's strips and then its fans to dst, each primitive
// terminated by RestartIndex. stripLen is the number of indices (restarts
// included) belonging to strips; the fans follow.
func (b *Batch) Pack(dst []uint32) (out []uint32, stripLen int) {
	out = dst
	start := len(dst)
	for _, p := range b.Primitives {
		if p.Topology == TopologyStrip {
			out = append(out, p.Indices...)
			out = append(out, RestartIndex)
		}
	}
	stripLen = len(out) - start
	for _, p := range b.Primitives {
		if p.Topology == TopologyFan {
			out = append(out, p.Indices...)
			out = append(out, RestartIndex)
		}
	}
	return out, stripLen
}
