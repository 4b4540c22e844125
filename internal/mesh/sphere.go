package mesh

import (
	"math"

	"facet/internal/geom"
)

// Sphere builds a UV sphere of the given radius centered at center, with
// every vertex painted color. It is the primitive behind annotation markers;
// the default resolution is small enough that hundreds of markers stay cheap.
func Sphere(center geom.Vec3, radius float64, color geom.Color) *Mesh {
	const rings, segments = 8, 12

	m := &Mesh{}
	// Poles plus the ring grid.
	m.Vertices = append(m.Vertices, center.Add(geom.Vec3{Z: radius}))
	for ring := 1; ring < rings; ring++ {
		phi := math.Pi * float64(ring) / rings
		for seg := 0; seg < segments; seg++ {
			theta := 2 * math.Pi * float64(seg) / segments
			m.Vertices = append(m.Vertices, center.Add(geom.Vec3{
				X: radius * math.Sin(phi) * math.Cos(theta),
				Y: radius * math.Sin(phi) * math.Sin(theta),
				Z: radius * math.Cos(phi),
			}))
		}
	}
	south := len(m.Vertices)
	m.Vertices = append(m.Vertices, center.Add(geom.Vec3{Z: -radius}))

	ringStart := func(ring int) int { return 1 + (ring-1)*segments }

	// Cap fans.
	for seg := 0; seg < segments; seg++ {
		next := (seg + 1) % segments
		m.Faces = append(m.Faces, [3]int{0, ringStart(1) + seg, ringStart(1) + next})
		m.Faces = append(m.Faces, [3]int{south, ringStart(rings-1) + next, ringStart(rings-1) + seg})
	}
	// Quad strips between rings.
	for ring := 1; ring < rings-1; ring++ {
		upper := ringStart(ring)
		lower := ringStart(ring + 1)
		for seg := 0; seg < segments; seg++ {
			next := (seg + 1) % segments
			m.Faces = append(m.Faces, [3]int{upper + seg, lower + seg, lower + next})
			m.Faces = append(m.Faces, [3]int{upper + seg, lower + next, upper + next})
		}
	}

	m.Colors = make([]geom.Color, len(m.Vertices))
	for i := range m.Colors {
		m.Colors[i] = color
	}
	return m
}
