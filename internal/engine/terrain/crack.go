package terrain

import "go.uber.org/zap"

// RepairCracks replaces the strip of every simplified block whose edges
// carry used vertices from finer neighbors with fans around the block center.
// It never changes which blocks are active.
func (t *Tessellator) RepairCracks() {
	for _, i := range t.active {
		b := &t.tree.blocks[i]
		if b.IsLeaf() || b.Strip == NoBlock {
			continue
		}
		t.repairBlock(i, b)
	}
	t.finishPass()
}

func (t *Tessellator) repairBlock(i int32, b *Block) {
	t.perim = t.perimeter(b, t.perim[:0])
	// The four corners are always used by the block's own strip.
	if len(t.perim) <= 4 {
		return
	}

	fans := fansNeeded(len(t.perim))
	if t.pool.FansLeft() < fans {
		t.stats.FanOverflow++
		tessLog.L().Debug("fan pool full, keeping strip",
			zap.Int32("block", i),
			zap.Int("perimeter", len(t.perim)))
		return
	}

	t.pool.Strip(b.Strip).Enabled = false

	half := b.Stride / 2
	center := uint32(t.field.Index(b.X0+half, b.Y0+half))
	t.used.Set(uint(center))

	o := t.field.Origin()
	sp := t.field.Spacing()
	minX := o.X + float32(b.X0)*sp
	minY := o.Y + float32(b.Y0)*sp

	// Closed chain: perimeter plus the first vertex again.
	chain := append(t.perim, t.perim[0])
	t.perim = chain[:len(chain)-1]

	start := 0
	for start < len(chain)-1 {
		end := min(start+MaxFanVertices-1, len(chain))
		f := t.pool.allocFan()
		f.Block = i
		f.MinX, f.MinY = minX, minY
		f.Indices[0] = center
		n := copy(f.Indices[1:], chain[start:end])
		f.Count = uint8(n + 1)
		// The next fan starts on this fan's last perimeter vertex.
		start = end - 1
	}
}

// fansNeeded returns how many fans cover a closed chain around n perimeter vertices.
func fansNeeded(n int) int {
	spokes := n + 1 // closing vertex repeated
	per := MaxFanVertices - 1
	if spokes <= per {
		return 1
	}
	return 1 + (spokes-per+per-2)/(per-1)
}

// perimeter appends the used vertices on the border of b, walking
// counterclockwise from (x0,y0). Each vertex appears once.
func (t *Tessellator) perimeter(b *Block, dst []uint32) []uint32 {
	x0, y0 := b.X0, b.Y0
	x1, y1 := x0+b.Stride, y0+b.Stride
	add := func(col, row int) {
		i := t.field.Index(col, row)
		if t.used.Test(uint(i)) {
			dst = append(dst, uint32(i))
		}
	}
	for x := x0; x < x1; x++ {
		add(x, y0)
	}
	for y := y0; y < y1; y++ {
		add(x1, y)
	}
	for x := x1; x > x0; x-- {
		add(x, y1)
	}
	for y := y1; y > y0; y-- {
		add(x0, y)
	}
	return dst
}

func (t *Tessellator) finishPass() {
	strips := 0
	for _, s := range t.pool.Strips() {
		if s.Enabled {
			strips++
		}
	}
	t.stats.Strips = strips
	t.stats.Fans = len(t.pool.Fans())
	t.stats.Triangles = t.pool.Triangles()
}
