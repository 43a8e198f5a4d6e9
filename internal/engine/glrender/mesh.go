package glrender

import (
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/falcon-terrain/internal/engine/terrain"
	"github.com/Faultbox/falcon-terrain/pkg/math"
)

const restartIndex = terrain.RestartIndex

// TileRects maps a batch tile key to the world rectangle its texture covers.
type TileRects interface {
	TileRect(tile int) (origin math.Vec2, extent float32)
}

// TerrainMesh is the vertex buffer of one height field plus a streamed
// index buffer. It implements terrain.BatchSink between Bind and the end
// of the frame.
type TerrainMesh struct {
	vao uint32
	vbo uint32
	ebo uint32

	vertexCount int
	eboCap      int

	origin math.Vec2
	extent float32

	r       *Renderer
	rects   TileRects
	scratch []uint32
}

// NewTerrainMesh uploads the vertices of field.
func NewTerrainMesh(field *terrain.HeightField, vertices []terrain.Vertex) *TerrainMesh {
	m := &TerrainMesh{
		vertexCount: len(vertices),
		origin:      field.Origin(),
		extent:      field.WorldSize(),
	}

	gl.GenVertexArrays(1, &m.vao)
	gl.BindVertexArray(m.vao)

	gl.GenBuffers(1, &m.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	vertexSize := int(unsafe.Sizeof(terrain.Vertex{}))
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*vertexSize, unsafe.Pointer(&vertices[0]), gl.DYNAMIC_DRAW)

	// Position (location 0)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, int32(vertexSize), 0)
	gl.EnableVertexAttribArray(0)

	// Normal (location 1)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, int32(vertexSize), 3*4)
	gl.EnableVertexAttribArray(1)

	// Shade (location 2)
	gl.VertexAttribPointerWithOffset(2, 1, gl.FLOAT, false, int32(vertexSize), 6*4)
	gl.EnableVertexAttribArray(2)

	gl.GenBuffers(1, &m.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.ebo)

	gl.BindVertexArray(0)
	return m
}

// UpdateVertices re-uploads the whole vertex buffer after elevation edits.
func (m *TerrainMesh) UpdateVertices(vertices []terrain.Vertex) {
	vertexSize := int(unsafe.Sizeof(terrain.Vertex{}))
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(vertices)*vertexSize, unsafe.Pointer(&vertices[0]))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
}

// Bind prepares the mesh to receive batches through DrawBatch.
// rects may be nil when batches are untextured.
func (m *TerrainMesh) Bind(r *Renderer, rects TileRects) {
	m.r = r
	m.rects = rects
	gl.BindVertexArray(m.vao)
}

// DrawBatch implements terrain.BatchSink.
func (m *TerrainMesh) DrawBatch(b terrain.Batch) {
	if m.r == nil || len(b.Primitives) == 0 {
		return
	}

	origin, extent := m.origin, m.extent
	if m.rects != nil && b.Texture != 0 {
		origin, extent = m.rects.TileRect(b.Tile)
	}
	m.r.bindTile(b.Texture, origin, extent)

	var stripLen int
	m.scratch, stripLen = b.Pack(m.scratch[:0])
	m.upload(m.scratch)

	if stripLen > 0 {
		gl.DrawElementsWithOffset(gl.TRIANGLE_STRIP, int32(stripLen), gl.UNSIGNED_INT, 0)
		m.r.stats.DrawCalls++
	}
	if fanLen := len(m.scratch) - stripLen; fanLen > 0 {
		gl.DrawElementsWithOffset(gl.TRIANGLE_FAN, int32(fanLen), gl.UNSIGNED_INT, uintptr(stripLen*4))
		m.r.stats.DrawCalls++
	}
	m.r.stats.Batches++
	m.r.stats.Triangles += b.Triangles()
}

// upload streams indices into the element buffer, growing it when needed.
func (m *TerrainMesh) upload(indices []uint32) {
	size := len(indices) * 4
	if size > m.eboCap {
		m.eboCap = max(size, 2*m.eboCap)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, m.eboCap, nil, gl.STREAM_DRAW)
	}
	gl.BufferSubData(gl.ELEMENT_ARRAY_BUFFER, 0, size, unsafe.Pointer(&indices[0]))
}

// Destroy releases the buffers.
func (m *TerrainMesh) Destroy() {
	if m.vao != 0 {
		gl.DeleteVertexArrays(1, &m.vao)
		m.vao = 0
	}
	if m.vbo != 0 {
		gl.DeleteBuffers(1, &m.vbo)
		m.vbo = 0
	}
	if m.ebo != 0 {
		gl.DeleteBuffers(1, &m.ebo)
		m.ebo = 0
	}
}
