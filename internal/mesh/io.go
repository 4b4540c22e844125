package mesh

import (
	"errors"
	"fmt"

	"facet/internal/ply"
)

// ErrNoFaces reports a PLY file that holds only points.
var ErrNoFaces = errors.New("ply file has no face data")

// LoadPLY reads a triangle mesh from a PLY file. Faces referencing vertices
// outside the vertex element are rejected here so downstream geometry code
// never has to bounds-check.
func LoadPLY(path string) (*Mesh, error) {
	data, err := ply.Read(path)
	if err != nil {
		return nil, err
	}
	if len(data.Faces) == 0 {
		return nil, ErrNoFaces
	}
	m := &Mesh{Vertices: data.Points, Faces: data.Faces, Colors: data.Colors}
	if !m.Valid() {
		return nil, fmt.Errorf("ply face references a vertex outside the %d-vertex element", len(m.Vertices))
	}
	return m, nil
}

// SavePLY writes the mesh as binary PLY.
func SavePLY(path string, m *Mesh) error {
	return ply.Write(path, &ply.Data{Points: m.Vertices, Colors: m.Colors, Faces: m.Faces})
}
