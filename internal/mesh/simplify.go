package mesh

import (
	"container/heap"

	"facet/internal/geom"
)

// Simplify reduces the mesh to roughly factor of its original face count
// using quadric error edge collapses. A factor at or above 1 (or a mesh too
// small to decimate) returns the input unchanged. The result never has more
// faces than the input and never references removed vertices.
func Simplify(m *Mesh, factor float64) *Mesh {
	if factor >= 1 || len(m.Faces) <= 4 {
		return m
	}
	target := int(float64(len(m.Faces)) * factor)
	if target < 4 {
		target = 4
	}

	d := newDecimator(m)
	d.run(target)
	return d.rebuild(m)
}

// quadric is a symmetric 4x4 error matrix in packed row-major upper-triangle
// order: a11 a12 a13 a14 a22 a23 a24 a33 a34 a44.
type quadric [10]float64

func (q *quadric) add(o *quadric) {
	for i := range q {
		q[i] += o[i]
	}
}

func planeQuadric(a, b, c geom.Vec3) quadric {
	n := b.Sub(a).Cross(c.Sub(a))
	length := n.Norm()
	if length == 0 {
		return quadric{}
	}
	n = n.Scale(1 / length)
	d := -n.Dot(a)
	return quadric{
		n.X * n.X, n.X * n.Y, n.X * n.Z, n.X * d,
		n.Y * n.Y, n.Y * n.Z, n.Y * d,
		n.Z * n.Z, n.Z * d,
		d * d,
	}
}

// eval computes v^T Q v for v = (p, 1).
func (q *quadric) eval(p geom.Vec3) float64 {
	return q[0]*p.X*p.X + 2*q[1]*p.X*p.Y + 2*q[2]*p.X*p.Z + 2*q[3]*p.X +
		q[4]*p.Y*p.Y + 2*q[5]*p.Y*p.Z + 2*q[6]*p.Y +
		q[7]*p.Z*p.Z + 2*q[8]*p.Z +
		q[9]
}

// optimal solves for the position minimizing the quadric error; ok is false
// when the system is singular and the caller should fall back to a midpoint.
func (q *quadric) optimal() (geom.Vec3, bool) {
	rows := [3]geom.Vec3{
		{X: q[0], Y: q[1], Z: q[2]},
		{X: q[1], Y: q[4], Z: q[5]},
		{X: q[2], Y: q[5], Z: q[7]},
	}
	return solve3(rows, [3]float64{-q[3], -q[6], -q[8]})
}

type collapse struct {
	a, b     int
	cost     float64
	position geom.Vec3
	versions [2]int
}

type collapseHeap []collapse

func (h collapseHeap) Len() int           { return len(h) }
func (h collapseHeap) Less(i, j int) bool { return h[i].cost < h[j].cost }
func (h collapseHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *collapseHeap) Push(x any)        { *h = append(*h, x.(collapse)) }
func (h *collapseHeap) Pop() any {
	old := *h
	last := old[len(old)-1]
	*h = old[:len(old)-1]
	return last
}

type decimator struct {
	positions []geom.Vec3
	quadrics  []quadric
	versions  []int
	parent    []int
	neighbors []map[int]struct{}
	faces     map[[3]int]struct{}
	queue     collapseHeap
}

func newDecimator(m *Mesh) *decimator {
	n := len(m.Vertices)
	d := &decimator{
		positions: append([]geom.Vec3(nil), m.Vertices...),
		quadrics:  make([]quadric, n),
		versions:  make([]int, n),
		parent:    make([]int, n),
		neighbors: make([]map[int]struct{}, n),
		faces:     make(map[[3]int]struct{}, len(m.Faces)),
	}
	for i := range d.parent {
		d.parent[i] = i
		d.neighbors[i] = make(map[int]struct{})
	}
	for _, face := range m.Faces {
		q := planeQuadric(m.Vertices[face[0]], m.Vertices[face[1]], m.Vertices[face[2]])
		for i := 0; i < 3; i++ {
			d.quadrics[face[i]].add(&q)
			d.neighbors[face[i]][face[(i+1)%3]] = struct{}{}
			d.neighbors[face[i]][face[(i+2)%3]] = struct{}{}
		}
		d.faces[canonicalFace(face)] = struct{}{}
	}
	heap.Init(&d.queue)
	for a := range d.neighbors {
		for b := range d.neighbors[a] {
			if a < b {
				d.pushEdge(a, b)
			}
		}
	}
	return d
}

func (d *decimator) find(v int) int {
	for d.parent[v] != v {
		d.parent[v] = d.parent[d.parent[v]]
		v = d.parent[v]
	}
	return v
}

func (d *decimator) pushEdge(a, b int) {
	combined := d.quadrics[a]
	combined.add(&d.quadrics[b])
	position, ok := combined.optimal()
	if !ok {
		position = d.positions[a].Add(d.positions[b]).Scale(0.5)
	}
	heap.Push(&d.queue, collapse{
		a: a, b: b,
		cost:     combined.eval(position),
		position: position,
		versions: [2]int{d.versions[a], d.versions[b]},
	})
}

func (d *decimator) run(targetFaces int) {
	for len(d.faces) > targetFaces && d.queue.Len() > 0 {
		c := heap.Pop(&d.queue).(collapse)
		a, b := d.find(c.a), d.find(c.b)
		if a == b || c.versions[0] != d.versions[c.a] || c.versions[1] != d.versions[c.b] {
			continue
		}
		d.merge(a, b, c.position)
	}
}

// merge collapses b into a at position.
func (d *decimator) merge(a, b int, position geom.Vec3) {
	// Rewrite faces touching b; faces spanning the collapsed edge degenerate
	// and are dropped.
	for face := range d.faces {
		touches := face[0] == b || face[1] == b || face[2] == b
		if !touches {
			continue
		}
		delete(d.faces, face)
		for i := range face {
			if face[i] == b {
				face[i] = a
			}
		}
		if face[0] != face[1] && face[1] != face[2] && face[0] != face[2] {
			d.faces[canonicalFace(face)] = struct{}{}
		}
	}

	d.parent[b] = a
	d.positions[a] = position
	d.quadrics[a].add(&d.quadrics[b])
	d.versions[a]++
	d.versions[b]++

	delete(d.neighbors[a], b)
	delete(d.neighbors[b], a)
	for n := range d.neighbors[b] {
		delete(d.neighbors[n], b)
		if n != a {
			d.neighbors[n][a] = struct{}{}
			d.neighbors[a][n] = struct{}{}
		}
	}
	d.neighbors[b] = nil

	for n := range d.neighbors[a] {
		d.pushEdge(a, n)
	}
}

// rebuild produces a compacted mesh from the surviving faces.
func (d *decimator) rebuild(src *Mesh) *Mesh {
	remap := make(map[int]int)
	out := &Mesh{Faces: make([][3]int, 0, len(d.faces))}
	hasColors := src.HasColors()
	for face := range d.faces {
		var mapped [3]int
		for i, old := range face {
			root := d.find(old)
			next, ok := remap[root]
			if !ok {
				next = len(out.Vertices)
				remap[root] = next
				out.Vertices = append(out.Vertices, d.positions[root])
				if hasColors {
					out.Colors = append(out.Colors, src.Colors[old])
				}
			}
			mapped[i] = next
		}
		out.Faces = append(out.Faces, mapped)
	}
	return out
}

// canonicalFace rotates the smallest index first without changing winding.
func canonicalFace(face [3]int) [3]int {
	smallest := 0
	for i := 1; i < 3; i++ {
		if face[i] < face[smallest] {
			smallest = i
		}
	}
	return [3]int{face[smallest], face[(smallest+1)%3], face[(smallest+2)%3]}
}
