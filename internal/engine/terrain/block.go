package terrain

import (
	gomath "math"

	"github.com/Faultbox/falcon-terrain/pkg/math"
)

// BlockState is the per-pass LOD state of a block.
type BlockState uint8

const (
	StateUnvisited      BlockState = iota // not reached by the last pass
	StateActive                           // block is the LOD representative
	StateChildrenActive                   // subdivided into its four children
	StateCulled                           // outside the frustum or the pool ran dry
)

func (s BlockState) String() string {
	switch s {
	case StateUnvisited:
		return "unvisited"
	case StateActive:
		return "active"
	case StateChildrenActive:
		return "children-active"
	case StateCulled:
		return "culled"
	default:
		return "unknown"
	}
}

// NoBlock marks a missing child or primitive reference.
const NoBlock = -1

// Block is one quad-tree node covering vertices [X0,X0+Stride] x [Y0,Y0+Stride].
type Block struct {
	X0, Y0   int
	Stride   int
	Level    int
	Home     int      // vertex index of (X0,Y0)
	Children [4]int32 // NoBlock for leaves; order: (x0,y0) (x0+h,y0) (x0,y0+h) (x0+h,y0+h)

	MinZ, MaxZ float32

	// Best-fit plane z = SlopeX*(x-cx) + SlopeY*(y-cy) + MeanZ in world units,
	// centered on the block. All vertices lie within Thickness/2 of it.
	SlopeX, SlopeY float32
	MeanZ          float32
	Thickness      float32

	State BlockState
	Strip int32 // strip emitted when simplified this pass, or NoBlock
}

// IsLeaf reports whether the block is at the stride-2 floor.
func (b *Block) IsLeaf() bool { return b.Stride == 2 }

// Contains reports whether vertex (col,row) lies on or inside the block.
func (b *Block) Contains(col, row int) bool {
	return col >= b.X0 && col <= b.X0+b.Stride && row >= b.Y0 && row <= b.Y0+b.Stride
}

// BlockTree is the quad-tree over a height field, stored as an arena.
// Block 0 is the root.
type BlockTree struct {
	field  *HeightField
	blocks []Block
}

// NewBlockTree builds the full tree for field.
func NewBlockTree(field *HeightField) *BlockTree {
	n := field.Size() - 1
	// A perfect quad-tree down to stride 2 has (4^L - 1)/3 nodes.
	leaves := (n / 2) * (n / 2)
	t := &BlockTree{
		field:  field,
		blocks: make([]Block, 0, (4*leaves-1)/3),
	}
	t.build(0, 0, n, 0)
	return t
}

func (t *BlockTree) build(x0, y0, stride, level int) int32 {
	idx := int32(len(t.blocks))
	t.blocks = append(t.blocks, Block{
		X0:       x0,
		Y0:       y0,
		Stride:   stride,
		Level:    level,
		Home:     t.field.Index(x0, y0),
		Children: [4]int32{NoBlock, NoBlock, NoBlock, NoBlock},
		Strip:    NoBlock,
	})

	if stride > 2 {
		h := stride / 2
		c0 := t.build(x0, y0, h, level+1)
		c1 := t.build(x0+h, y0, h, level+1)
		c2 := t.build(x0, y0+h, h, level+1)
		c3 := t.build(x0+h, y0+h, h, level+1)
		t.blocks[idx].Children = [4]int32{c0, c1, c2, c3}
	}
	t.computeBounds(&t.blocks[idx])
	return idx
}

// Field returns the height field the tree was built over.
func (t *BlockTree) Field() *HeightField { return t.field }

// Len returns the number of blocks.
func (t *BlockTree) Len() int { return len(t.blocks) }

// Root returns the root block.
func (t *BlockTree) Root() *Block { return &t.blocks[0] }

// Block returns block i.
func (t *BlockTree) Block(i int32) *Block { return &t.blocks[i] }

// Bounds returns the world-space box of block i.
func (t *BlockTree) Bounds(i int32) math.AABB {
	return t.boundsOf(&t.blocks[i])
}

func (t *BlockTree) boundsOf(b *Block) math.AABB {
	o := t.field.Origin()
	s := t.field.Spacing()
	return math.AABB{
		Min: math.Vec3{X: o.X + float32(b.X0)*s, Y: o.Y + float32(b.Y0)*s, Z: b.MinZ},
		Max: math.Vec3{X: o.X + float32(b.X0+b.Stride)*s, Y: o.Y + float32(b.Y0+b.Stride)*s, Z: b.MaxZ},
	}
}

// center returns the world x,y of the block center.
func (t *BlockTree) center(b *Block) (float32, float32) {
	o := t.field.Origin()
	s := t.field.Spacing()
	half := float32(b.Stride) / 2
	return o.X + (float32(b.X0)+half)*s, o.Y + (float32(b.Y0)+half)*s
}

// RefreshBounds recomputes extents and plane fits of every block touching
// vertex (col,row). Call after HeightField.SetElevation.
func (t *BlockTree) RefreshBounds(col, row int) {
	t.refresh(0, col, row)
}

func (t *BlockTree) refresh(i int32, col, row int) {
	b := &t.blocks[i]
	if !b.Contains(col, row) {
		return
	}
	for _, c := range b.Children {
		if c != NoBlock {
			t.refresh(c, col, row)
		}
	}
	t.computeBounds(b)
}

// computeBounds fits z = a*u + b*v + c over the footprint, with u,v measured from
// the block center. The grid is symmetric so the normal equations decouple.
func (t *BlockTree) computeBounds(b *Block) {
	f := t.field
	half := float64(b.Stride) / 2

	var sumZ, sumUZ, sumVZ, sumUU, sumVV float64
	lo := float32(gomath.MaxFloat32)
	hi := float32(-gomath.MaxFloat32)
	for row := b.Y0; row <= b.Y0+b.Stride; row++ {
		v := float64(row-b.Y0) - half
		for col := b.X0; col <= b.X0+b.Stride; col++ {
			u := float64(col-b.X0) - half
			z := f.ElevationAt(col, row)
			lo = min(lo, z)
			hi = max(hi, z)
			sumZ += float64(z)
			sumUZ += u * float64(z)
			sumVZ += v * float64(z)
			sumUU += u * u
			sumVV += v * v
		}
	}

	n := float64((b.Stride + 1) * (b.Stride + 1))
	mean := sumZ / n
	a := sumUZ / sumUU
	c := sumVZ / sumVV

	var maxRes float64
	for row := b.Y0; row <= b.Y0+b.Stride; row++ {
		v := float64(row-b.Y0) - half
		for col := b.X0; col <= b.X0+b.Stride; col++ {
			u := float64(col-b.X0) - half
			r := gomath.Abs(float64(f.ElevationAt(col, row)) - (a*u + c*v + mean))
			maxRes = gomath.Max(maxRes, r)
		}
	}

	s := float64(f.Spacing())
	b.MinZ = lo
	b.MaxZ = hi
	b.SlopeX = float32(a / s)
	b.SlopeY = float32(c / s)
	b.MeanZ = float32(mean)
	b.Thickness = float32(2 * maxRes)
}
