package mesh

import "facet/internal/geom"

// Smooth applies iterations of uniform Laplacian smoothing with the given
// blend factor, moving each vertex toward the average of its edge-connected
// neighbors. Zero iterations (or a factor of zero) returns the input
// unchanged. Faces and colors are untouched.
func Smooth(m *Mesh, iterations int, factor float64) *Mesh {
	if iterations <= 0 || factor == 0 || len(m.Faces) == 0 {
		return m
	}

	neighbors := make([][]int, len(m.Vertices))
	seen := make(map[[2]int]struct{}, len(m.Faces)*3)
	addEdge := func(a, b int) {
		key := [2]int{a, b}
		if a > b {
			key = [2]int{b, a}
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		neighbors[a] = append(neighbors[a], b)
		neighbors[b] = append(neighbors[b], a)
	}
	for _, face := range m.Faces {
		addEdge(face[0], face[1])
		addEdge(face[1], face[2])
		addEdge(face[2], face[0])
	}

	current := append([]geom.Vec3(nil), m.Vertices...)
	next := make([]geom.Vec3, len(current))
	for iter := 0; iter < iterations; iter++ {
		for i, p := range current {
			if len(neighbors[i]) == 0 {
				next[i] = p
				continue
			}
			mean := geom.Vec3{}
			for _, n := range neighbors[i] {
				mean = mean.Add(current[n])
			}
			mean = mean.Scale(1 / float64(len(neighbors[i])))
			next[i] = p.Add(mean.Sub(p).Scale(factor))
		}
		current, next = next, current
	}

	return &Mesh{Vertices: current, Faces: m.Faces, Colors: m.Colors}
}
