package terrain

import (
	"github.com/bits-and-blooms/bitset"
	"go.uber.org/zap"

	"github.com/Faultbox/falcon-terrain/internal/logger"
)

var tessLog = logger.Named("tessellator")

// Settings tune LOD selection.
type Settings struct {
	// Threshold is the screen size in pixels at or below which a block is simplified.
	Threshold float32
	Method    Method
	// ZWeight scales the vertical screen term of the projecting methods.
	ZWeight float32
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{Threshold: 8, Method: MethodColumn, ZWeight: 1}
}

// FrameStats summarizes the last tessellation pass.
type FrameStats struct {
	Strips       int
	Fans         int
	Triangles    int // enabled triangles, for the overlay
	ActiveBlocks int
	CulledBlocks int
	// PoolExhausted is set when blocks were culled because the strip pool ran out.
	PoolExhausted bool
	// FanOverflow counts blocks that kept their strip because the fan pool was full.
	FanOverflow int
}

// Tessellator runs LOD selection and crack repair for one height field.
// It is not safe for concurrent use; all calls belong to the render thread.
type Tessellator struct {
	field    *HeightField
	tree     *BlockTree
	pool     *PrimitivePool
	settings Settings

	used      *bitset.BitSet
	maxStride int // largest block that fits one texture tile, 0 for no limit
	view      ViewState
	active    []int32
	stats     FrameStats

	perim []uint32 // scratch for crack repair
}

// NewTessellator wires a tessellator over existing parts.
func NewTessellator(field *HeightField, tree *BlockTree, pool *PrimitivePool, settings Settings) *Tessellator {
	return &Tessellator{
		field:    field,
		tree:     tree,
		pool:     pool,
		settings: settings,
		used:     bitset.New(uint(field.VertexCount())),
	}
}

// New builds the block tree and a pool sized for maxTriangles.
func New(field *HeightField, maxTriangles int, settings Settings) *Tessellator {
	return NewTessellator(field, NewBlockTree(field), PoolForTriangleBudget(maxTriangles), settings)
}

// Field returns the height field.
func (t *Tessellator) Field() *HeightField { return t.field }

// Tree returns the block tree.
func (t *Tessellator) Tree() *BlockTree { return t.tree }

// Pool returns the primitive pool.
func (t *Tessellator) Pool() *PrimitivePool { return t.pool }

// Settings returns the current LOD settings.
func (t *Tessellator) Settings() Settings { return t.settings }

// SetSettings replaces the LOD settings. Takes effect on the next pass.
func (t *Tessellator) SetSettings(s Settings) { t.settings = s }

// SetTextureTiles keeps simplified blocks inside one cell of a
// tilesPerSide x tilesPerSide texture grid over the field, so each
// primitive is covered by the tile under its min corner. Zero removes the limit.
// Leaves are never split, so grids finer than stride 2 still share tiles.
func (t *Tessellator) SetTextureTiles(tilesPerSide int) {
	if tilesPerSide <= 0 {
		t.maxStride = 0
		return
	}
	t.maxStride = max((t.field.Size()-1)/tilesPerSide, 2)
}

// MaxStride returns the largest stride a simplified block may have, 0 for no limit.
func (t *Tessellator) MaxStride() int { return t.maxStride }

// Stats returns the statistics of the last pass.
func (t *Tessellator) Stats() FrameStats { return t.stats }

// ActiveBlocks returns the blocks chosen as LOD representatives in the last pass.
func (t *Tessellator) ActiveBlocks() []int32 { return t.active }

// UsedVertex reports whether vertex i is referenced by this pass.
func (t *Tessellator) UsedVertex(i int) bool { return t.used.Test(uint(i)) }

// MarkVertexUsed flags vertex i as referenced. Used for edge stitching.
func (t *Tessellator) MarkVertexUsed(i int) { t.used.Set(uint(i)) }

// ModelViewChanged runs a complete pass for a new view.
func (t *Tessellator) ModelViewChanged(view ViewState) FrameStats {
	t.BeginPass(view)
	t.TessellateBlocks()
	t.RepairCracks()
	return t.stats
}

// BeginPass stores the view and clears the bitmap, pool and stats.
func (t *Tessellator) BeginPass(view ViewState) {
	t.view = view
	t.used.ClearAll()
	t.pool.Reset()
	t.active = t.active[:0]
	t.stats = FrameStats{}
}

// TessellateBlocks selects the active blocks from the root down.
// Crack repair has not run yet when it returns.
func (t *Tessellator) TessellateBlocks() {
	t.tessellate(0)
	if t.stats.PoolExhausted {
		tessLog.L().Debug("strip pool exhausted, remaining blocks culled",
			zap.Int("capacity", t.pool.StripCapacity()),
			zap.Int("culled", t.stats.CulledBlocks))
	}
}

func (t *Tessellator) tessellate(i int32) {
	b := &t.tree.blocks[i]
	b.Strip = NoBlock
	box := t.tree.boundsOf(b)

	need := 1
	if b.IsLeaf() {
		need = 2
	}
	if t.pool.StripsLeft() < need {
		t.stats.PoolExhausted = true
		t.cull(i)
		return
	}
	if !t.view.frustum.IntersectsAABB(box) {
		t.cull(i)
		return
	}

	if b.IsLeaf() {
		t.emitLeaf(i, b)
		t.activate(i, b)
		return
	}

	if t.fitsTextureTile(b) && t.screenSize(b, box) <= t.settings.Threshold {
		b.Strip = t.emitSimplified(i, b)
		t.activate(i, b)
		return
	}

	b.State = StateChildrenActive
	for _, c := range b.Children {
		t.tessellate(c)
	}
}

func (t *Tessellator) fitsTextureTile(b *Block) bool {
	return t.maxStride == 0 || b.Stride <= t.maxStride
}

func (t *Tessellator) activate(i int32, b *Block) {
	prev := b.State
	b.State = StateActive
	t.active = append(t.active, i)
	t.stats.ActiveBlocks++
	if prev != StateUnvisited && prev != StateActive {
		t.resetChildren(b, StateUnvisited)
	}
}

func (t *Tessellator) cull(i int32) {
	b := &t.tree.blocks[i]
	prev := b.State
	b.State = StateCulled
	t.stats.CulledBlocks++
	if prev != StateCulled {
		t.resetChildren(b, StateCulled)
	}
}

// resetChildren moves every descendant of b to state s. A block in
// Unvisited or Culled state always has its whole subtree in that same state,
// so the walk stops at subtrees that are already there.
func (t *Tessellator) resetChildren(b *Block, s BlockState) {
	for _, c := range b.Children {
		if c == NoBlock {
			continue
		}
		cb := &t.tree.blocks[c]
		if cb.State == s {
			continue
		}
		cb.State = s
		cb.Strip = NoBlock
		t.resetChildren(cb, s)
	}
}

// emitSimplified writes the 4-corner strip of a block, CCW seen from +Z.
func (t *Tessellator) emitSimplified(i int32, b *Block) int32 {
	x0, y0 := b.X0, b.Y0
	x1, y1 := x0+b.Stride, y0+b.Stride

	idx, s := t.pool.allocStrip()
	t.fillStrip(s, i, b, [][2]int{{x0, y1}, {x0, y0}, {x1, y1}, {x1, y0}})
	return idx
}

// emitLeaf writes the two 6-vertex strips of a stride-2 block and marks
// all nine vertices used.
func (t *Tessellator) emitLeaf(i int32, b *Block) {
	var verts [6][2]int
	for r := b.Y0; r < b.Y0+2; r++ {
		for k := range 3 {
			c := b.X0 + k
			verts[2*k] = [2]int{c, r + 1}
			verts[2*k+1] = [2]int{c, r}
		}
		_, s := t.pool.allocStrip()
		t.fillStrip(s, i, b, verts[:])
	}
}

func (t *Tessellator) fillStrip(s *Strip, i int32, b *Block, verts [][2]int) {
	o := t.field.Origin()
	sp := t.field.Spacing()
	s.Block = i
	s.MinX = o.X + float32(b.X0)*sp
	s.MinY = o.Y + float32(b.Y0)*sp
	for k, v := range verts {
		vi := t.field.Index(v[0], v[1])
		s.Indices[k] = uint32(vi)
		t.used.Set(uint(vi))
	}
	s.Count = uint8(len(verts))
}
