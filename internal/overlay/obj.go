package overlay

import (
	"bufio"
	"fmt"
	"os"

	"facet/internal/mesh"
)

// writeOBJ emits Wavefront OBJ. Vertex colors use the common "v x y z r g b"
// extension most viewers accept.
func writeOBJ(path string, m *mesh.Mesh) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	hasColors := m.HasColors()
	for i, v := range m.Vertices {
		if hasColors {
			c := m.Colors[i]
			fmt.Fprintf(writer, "v %g %g %g %.6f %.6f %.6f\n",
				v.X, v.Y, v.Z, float64(c.R)/255, float64(c.G)/255, float64(c.B)/255)
		} else {
			fmt.Fprintf(writer, "v %g %g %g\n", v.X, v.Y, v.Z)
		}
	}
	for _, face := range m.Faces {
		fmt.Fprintf(writer, "f %d %d %d\n", face[0]+1, face[1]+1, face[2]+1)
	}
	return writer.Flush()
}
