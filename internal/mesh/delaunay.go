package mesh

import (
	"errors"
	"math"
	"sort"

	"facet/internal/geom"
	"facet/internal/pointcloud"
)

// ErrDegenerateInput reports a cloud too small or too flat to mesh.
var ErrDegenerateInput = errors.New("not enough non-degenerate points to mesh")

// FromCloud builds a surface mesh from the cloud. Method "alpha_shape" keeps
// only tetrahedra whose circumradius is at most alpha, giving a concave
// surface that follows the scanned geometry; any other method yields the
// convex hull. Point colors transfer to the surface vertices.
func FromCloud(cloud *pointcloud.Cloud, method string, alpha float64) (*Mesh, error) {
	tetras, err := tetrahedralize(cloud.Points)
	if err != nil {
		return nil, err
	}

	kept := tetras
	if method == "alpha_shape" && alpha > 0 {
		kept = kept[:0:0]
		limit := alpha * alpha
		for _, t := range tetras {
			if t.r2 <= limit {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			// Alpha too tight for the point spacing. Fall back to the hull so
			// the pipeline still produces a surface.
			kept = tetras
		}
	}

	faces := boundaryFaces(cloud.Points, kept)
	if len(faces) == 0 {
		return nil, ErrDegenerateInput
	}
	return compact(cloud, faces), nil
}

// tetra is one cell of the Delaunay complex with its circumsphere cached.
type tetra struct {
	v      [4]int
	center geom.Vec3
	r2     float64
}

// orientedFace is a boundary triangle plus the interior vertex opposite it,
// used to orient the surface outward.
type orientedFace struct {
	tri      [3]int
	opposite int
}

// tetrahedralize runs incremental Bowyer-Watson insertion over the points.
func tetrahedralize(points []geom.Vec3) ([]tetra, error) {
	if len(points) < 4 {
		return nil, ErrDegenerateInput
	}

	// Super-tetrahedron enclosing every circumsphere the input can produce.
	box := geom.BoundsOf(points)
	center := box.Min.Add(box.Max).Scale(0.5)
	size := box.Max.Sub(box.Min).Norm()
	if size == 0 {
		return nil, ErrDegenerateInput
	}
	scale := size * 100
	work := make([]geom.Vec3, len(points), len(points)+4)
	copy(work, points)
	super := len(points)
	work = append(work,
		center.Add(geom.Vec3{X: -scale, Y: -scale, Z: -scale}),
		center.Add(geom.Vec3{X: scale, Y: 0, Z: -scale}),
		center.Add(geom.Vec3{X: 0, Y: scale, Z: -scale}),
		center.Add(geom.Vec3{X: 0, Y: 0, Z: scale}),
	)

	first, ok := newTetra(work, [4]int{super, super + 1, super + 2, super + 3})
	if !ok {
		return nil, ErrDegenerateInput
	}
	tetras := []tetra{first}

	for p := 0; p < len(points); p++ {
		point := work[p]

		// Cavity: every tetra whose circumsphere contains the new point.
		bad := tetras[:0:0]
		survivors := tetras[:0:0]
		for _, t := range tetras {
			if point.Sub(t.center).Dot(point.Sub(t.center)) < t.r2 {
				bad = append(bad, t)
			} else {
				survivors = append(survivors, t)
			}
		}
		if len(bad) == 0 {
			// Numerically on the hull of everything seen so far; skip rather
			// than corrupt the complex.
			continue
		}

		// Cavity boundary: faces that appear in exactly one bad tetra.
		faceCount := make(map[[3]int]int, len(bad)*4)
		faceVerts := make(map[[3]int][3]int, len(bad)*4)
		for _, t := range bad {
			for _, tri := range tetraFaces(t.v) {
				key := sortedTri(tri)
				faceCount[key]++
				faceVerts[key] = tri
			}
		}
		tetras = survivors
		for key, count := range faceCount {
			if count != 1 {
				continue
			}
			tri := faceVerts[key]
			if nt, ok := newTetra(work, [4]int{tri[0], tri[1], tri[2], p}); ok {
				tetras = append(tetras, nt)
			}
		}
	}

	// Drop everything still attached to the super-tetrahedron.
	out := tetras[:0:0]
	for _, t := range tetras {
		if t.v[0] < super && t.v[1] < super && t.v[2] < super && t.v[3] < super {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, ErrDegenerateInput
	}
	return out, nil
}

// newTetra computes the circumsphere of the four vertices. ok is false when
// the vertices are (near) coplanar.
func newTetra(points []geom.Vec3, v [4]int) (tetra, bool) {
	p0 := points[v[0]]
	rows := [3]geom.Vec3{}
	rhs := [3]float64{}
	for i := 0; i < 3; i++ {
		pi := points[v[i+1]]
		rows[i] = pi.Sub(p0).Scale(2)
		rhs[i] = pi.Dot(pi) - p0.Dot(p0)
	}
	center, ok := solve3(rows, rhs)
	if !ok {
		return tetra{}, false
	}
	diff := center.Sub(p0)
	return tetra{v: v, center: center, r2: diff.Dot(diff)}, true
}

// solve3 solves the 3x3 system rows·x = rhs by Cramer's rule.
func solve3(rows [3]geom.Vec3, rhs [3]float64) (geom.Vec3, bool) {
	det := rows[0].Dot(rows[1].Cross(rows[2]))
	if math.Abs(det) < 1e-12 {
		return geom.Vec3{}, false
	}
	replace := func(col int) float64 {
		m := rows
		for i := 0; i < 3; i++ {
			switch col {
			case 0:
				m[i].X = rhs[i]
			case 1:
				m[i].Y = rhs[i]
			case 2:
				m[i].Z = rhs[i]
			}
		}
		return m[0].Dot(m[1].Cross(m[2]))
	}
	return geom.Vec3{
		X: replace(0) / det,
		Y: replace(1) / det,
		Z: replace(2) / det,
	}, true
}

func tetraFaces(v [4]int) [4][3]int {
	return [4][3]int{
		{v[0], v[1], v[2]},
		{v[0], v[1], v[3]},
		{v[0], v[2], v[3]},
		{v[1], v[2], v[3]},
	}
}

func sortedTri(tri [3]int) [3]int {
	s := []int{tri[0], tri[1], tri[2]}
	sort.Ints(s)
	return [3]int{s[0], s[1], s[2]}
}

// boundaryFaces extracts faces owned by exactly one tetra and orients each
// away from the owning tetra's interior vertex.
func boundaryFaces(points []geom.Vec3, tetras []tetra) [][3]int {
	count := make(map[[3]int]int, len(tetras)*4)
	for _, t := range tetras {
		for _, tri := range tetraFaces(t.v) {
			count[sortedTri(tri)]++
		}
	}

	var faces [][3]int
	for _, t := range tetras {
		all := tetraFaces(t.v)
		for i, tri := range all {
			if count[sortedTri(tri)] != 1 {
				continue
			}
			// Fourth vertex of the tetra is the one not on this face.
			opposite := t.v[3-i]
			faces = append(faces, orient(points, tri, opposite))
		}
	}
	return faces
}

func orient(points []geom.Vec3, tri [3]int, opposite int) [3]int {
	a := points[tri[0]]
	normal := points[tri[1]].Sub(a).Cross(points[tri[2]].Sub(a))
	if normal.Dot(points[opposite].Sub(a)) > 0 {
		tri[1], tri[2] = tri[2], tri[1]
	}
	return tri
}

// compact rebuilds the vertex array with only the vertices the surface uses.
func compact(cloud *pointcloud.Cloud, faces [][3]int) *Mesh {
	remap := make(map[int]int)
	out := &Mesh{Faces: make([][3]int, 0, len(faces))}
	hasColors := cloud.HasColors()
	for _, face := range faces {
		var mapped [3]int
		for i, old := range face {
			next, ok := remap[old]
			if !ok {
				next = len(out.Vertices)
				remap[old] = next
				out.Vertices = append(out.Vertices, cloud.Points[old])
				if hasColors {
					out.Colors = append(out.Colors, cloud.Colors[old])
				}
			}
			mapped[i] = next
		}
		out.Faces = append(out.Faces, mapped)
	}
	return out
}
