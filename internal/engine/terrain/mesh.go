package terrain

import "github.com/Faultbox/falcon-terrain/pkg/math"

// Shading parameters for BuildVertices.
type Shading struct {
	SunDir  math.Vec3 // direction towards the sun
	Ambient float32
}

// DefaultShading is a low afternoon sun from the south-west.
func DefaultShading() Shading {
	return Shading{SunDir: math.Vec3{X: -0.5, Y: -0.5, Z: 0.7}.Normalize(), Ambient: 0.35}
}

// BuildVertices creates the vertex buffer for a height field.
// Normals are computed if the field has none yet.
func BuildVertices(field *HeightField, shading Shading) ([]Vertex, Bounds) {
	if !field.HasNormals() {
		field.ComputeNormals()
	}

	sun := shading.SunDir.Normalize()

	vertices := make([]Vertex, field.VertexCount())
	bounds := Bounds{
		Min: [3]float32{1e30, 1e30, 1e30},
		Max: [3]float32{-1e30, -1e30, -1e30},
	}

	for i := range vertices {
		p := field.Position(i).Array()
		nrm := field.Normal(i)

		diffuse := max(nrm.Dot(sun), 0)
		vertices[i] = Vertex{
			Position: p,
			Normal:   nrm.Array(),
			Shade:    min(shading.Ambient+(1-shading.Ambient)*diffuse, 1),
		}
		updateBounds(&bounds, p)
	}
	return vertices, bounds
}

// UpdateVertex refreshes one vertex and its neighbors after an elevation edit.
func UpdateVertex(field *HeightField, vertices []Vertex, shading Shading, col, row int) {
	sun := shading.SunDir.Normalize()
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			c, r := col+dc, row+dr
			if c < 0 || r < 0 || c >= field.Size() || r >= field.Size() {
				continue
			}
			i := field.Index(c, r)
			nrm := field.Normal(i)
			v := &vertices[i]
			v.Position = field.Position(i).Array()
			v.Normal = nrm.Array()
			v.Shade = min(shading.Ambient+(1-shading.Ambient)*max(nrm.Dot(sun), 0), 1)
		}
	}
}

func updateBounds(b *Bounds, p [3]float32) {
	for k := range 3 {
		b.Min[k] = min(b.Min[k], p[k])
		b.Max[k] = max(b.Max[k], p[k])
	}
}
