package mesh

import (
	"math"

	"facet/internal/geom"
)

// Mesh is an indexed triangle mesh with optional per-vertex colors. Colors is
// either empty or the same length as Vertices.
type Mesh struct {
	Vertices []geom.Vec3
	Faces    [][3]int
	Colors   []geom.Color
}

// Info summarizes a mesh for job metadata.
type Info struct {
	VertexCount int       `json:"vertex_count"`
	FaceCount   int       `json:"face_count"`
	Bounds      geom.BBox `json:"bounds"`
	Watertight  bool      `json:"watertight"`
	SurfaceArea float64   `json:"surface_area"`
	Volume      *float64  `json:"volume,omitempty"`
}

// HasColors reports whether per-vertex colors are present.
func (m *Mesh) HasColors() bool {
	return len(m.Colors) == len(m.Vertices) && len(m.Vertices) > 0
}

// Bounds returns the axis-aligned bounding box of the vertices.
func (m *Mesh) Bounds() geom.BBox {
	return geom.BoundsOf(m.Vertices)
}

// Describe computes summary statistics. Volume is reported only for
// watertight meshes, where the signed tetrahedron sum is meaningful.
func (m *Mesh) Describe() Info {
	info := Info{
		VertexCount: len(m.Vertices),
		FaceCount:   len(m.Faces),
		Bounds:      m.Bounds(),
		Watertight:  m.Watertight(),
		SurfaceArea: m.SurfaceArea(),
	}
	if info.Watertight {
		volume := math.Abs(m.signedVolume())
		info.Volume = &volume
	}
	return info
}

// Watertight reports whether every edge is shared by exactly two faces.
func (m *Mesh) Watertight() bool {
	if len(m.Faces) == 0 {
		return false
	}
	edges := make(map[[2]int]int, len(m.Faces)*3)
	for _, face := range m.Faces {
		for i := 0; i < 3; i++ {
			a, b := face[i], face[(i+1)%3]
			if a > b {
				a, b = b, a
			}
			edges[[2]int{a, b}]++
		}
	}
	for _, count := range edges {
		if count != 2 {
			return false
		}
	}
	return true
}

// SurfaceArea is the sum of triangle areas.
func (m *Mesh) SurfaceArea() float64 {
	total := 0.0
	for _, face := range m.Faces {
		a := m.Vertices[face[0]]
		b := m.Vertices[face[1]]
		c := m.Vertices[face[2]]
		total += b.Sub(a).Cross(c.Sub(a)).Norm() / 2
	}
	return total
}

func (m *Mesh) signedVolume() float64 {
	total := 0.0
	for _, face := range m.Faces {
		a := m.Vertices[face[0]]
		b := m.Vertices[face[1]]
		c := m.Vertices[face[2]]
		total += a.Dot(b.Cross(c)) / 6
	}
	return total
}

// Valid reports whether every face references an existing vertex.
func (m *Mesh) Valid() bool {
	for _, face := range m.Faces {
		for _, index := range face {
			if index < 0 || index >= len(m.Vertices) {
				return false
			}
		}
	}
	return true
}

// Concat appends other's geometry to m, offsetting face indices. When either
// mesh carries colors the result carries colors, with gray filling any
// uncolored vertices.
func Concat(m, other *Mesh) *Mesh {
	out := &Mesh{
		Vertices: make([]geom.Vec3, 0, len(m.Vertices)+len(other.Vertices)),
		Faces:    make([][3]int, 0, len(m.Faces)+len(other.Faces)),
	}
	out.Vertices = append(out.Vertices, m.Vertices...)
	out.Vertices = append(out.Vertices, other.Vertices...)
	offset := len(m.Vertices)
	out.Faces = append(out.Faces, m.Faces...)
	for _, face := range other.Faces {
		out.Faces = append(out.Faces, [3]int{face[0] + offset, face[1] + offset, face[2] + offset})
	}
	if m.HasColors() || other.HasColors() {
		out.Colors = make([]geom.Color, len(out.Vertices))
		for i := range out.Colors {
			out.Colors[i] = geom.Gray
		}
		copy(out.Colors, m.Colors)
		copy(out.Colors[offset:], other.Colors)
	}
	return out
}
