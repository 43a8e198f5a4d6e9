package terrain

// MaxFanVertices caps the vertex count of one triangle fan, center included.
const MaxFanVertices = 10

// Topology is the primitive type of an index list.
type Topology uint8

const (
	TopologyStrip Topology = iota
	TopologyFan
)

func (t Topology) String() string {
	if t == TopologyFan {
		return "fan"
	}
	return "strip"
}

// Strip is a triangle strip of 4 (simplified block) or 6 (leaf row) vertices.
type Strip struct {
	Indices [6]uint32
	Count   uint8
	Enabled bool
	Block   int32
	// World x,y of the block corner, used to pick the texture tile.
	MinX, MinY float32
}

// Vertices returns the used part of Indices.
func (s *Strip) Vertices() []uint32 { return s.Indices[:s.Count] }

// Fan is a triangle fan around a block center.
type Fan struct {
	Indices    [MaxFanVertices]uint32
	Count      uint8
	Enabled    bool
	Block      int32
	MinX, MinY float32
}

// Vertices returns the used part of Indices.
func (f *Fan) Vertices() []uint32 { return f.Indices[:f.Count] }

// PrimitivePool is a fixed-capacity store of strips and fans reused every pass.
type PrimitivePool struct {
	strips  []Strip
	fans    []Fan
	nStrips int
	nFans   int
}

// NewPrimitivePool allocates a pool with the given capacities.
func NewPrimitivePool(maxStrips, maxFans int) *PrimitivePool {
	return &PrimitivePool{
		strips: make([]Strip, max(maxStrips, 0)),
		fans:   make([]Fan, max(maxFans, 0)),
	}
}

// PoolForTriangleBudget sizes a pool so that a full pool stays near maxTriangles.
// Each strip draws at least two triangles and each fan at most MaxFanVertices-2.
func PoolForTriangleBudget(maxTriangles int) *PrimitivePool {
	return NewPrimitivePool(max(1, maxTriangles/2), max(1, maxTriangles/(MaxFanVertices-2)))
}

// Reset empties the pool without releasing memory.
func (p *PrimitivePool) Reset() {
	p.nStrips = 0
	p.nFans = 0
}

// StripCapacity returns the maximum number of strips.
func (p *PrimitivePool) StripCapacity() int { return len(p.strips) }

// FanCapacity returns the maximum number of fans.
func (p *PrimitivePool) FanCapacity() int { return len(p.fans) }

// StripsLeft returns how many strips can still be allocated this pass.
func (p *PrimitivePool) StripsLeft() int { return len(p.strips) - p.nStrips }

// FansLeft returns how many fans can still be allocated this pass.
func (p *PrimitivePool) FansLeft() int { return len(p.fans) - p.nFans }

// Strips returns the strips allocated this pass, enabled or not.
func (p *PrimitivePool) Strips() []Strip { return p.strips[:p.nStrips] }

// Fans returns the fans allocated this pass.
func (p *PrimitivePool) Fans() []Fan { return p.fans[:p.nFans] }

// Strip returns strip i.
func (p *PrimitivePool) Strip(i int32) *Strip { return &p.strips[i] }

func (p *PrimitivePool) allocStrip() (int32, *Strip) {
	if p.nStrips == len(p.strips) {
		return NoBlock, nil
	}
	i := p.nStrips
	p.nStrips++
	s := &p.strips[i]
	*s = Strip{Enabled: true}
	return int32(i), s
}

func (p *PrimitivePool) allocFan() *Fan {
	if p.nFans == len(p.fans) {
		return nil
	}
	f := &p.fans[p.nFans]
	p.nFans++
	*f = Fan{Enabled: true}
	return f
}

// Triangles counts the triangles of all enabled primitives.
func (p *PrimitivePool) Triangles() int {
	n := 0
	for i := range p.strips[:p.nStrips] {
		if s := &p.strips[i]; s.Enabled && s.Count >= 3 {
			n += int(s.Count) - 2
		}
	}
	for i := range p.fans[:p.nFans] {
		if f := &p.fans[i]; f.Enabled && f.Count >= 3 {
			n += int(f.Count) - 2
		}
	}
	return n
}
