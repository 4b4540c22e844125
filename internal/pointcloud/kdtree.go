package pointcloud

import (
	"sort"

	"facet/internal/geom"
)

// KDTree is a static 3D k-d tree over a point slice. It indexes into the
// original slice, so the slice must not be mutated while the tree is in use.
type KDTree struct {
	points []geom.Vec3
	nodes  []kdNode
	root   int
}

type kdNode struct {
	point       int
	axis        int
	left, right int
}

// NewKDTree builds a tree by recursive median split.
func NewKDTree(points []geom.Vec3) *KDTree {
	tree := &KDTree{
		points: points,
		nodes:  make([]kdNode, 0, len(points)),
	}
	indices := make([]int, len(points))
	for i := range indices {
		indices[i] = i
	}
	tree.root = tree.build(indices, 0)
	return tree
}

func (t *KDTree) build(indices []int, depth int) int {
	if len(indices) == 0 {
		return -1
	}
	axis := depth % 3
	sort.Slice(indices, func(a, b int) bool {
		return t.points[indices[a]].Component(axis) < t.points[indices[b]].Component(axis)
	})
	median := len(indices) / 2

	node := kdNode{point: indices[median], axis: axis}
	id := len(t.nodes)
	t.nodes = append(t.nodes, node)

	left := append([]int(nil), indices[:median]...)
	right := append([]int(nil), indices[median+1:]...)
	t.nodes[id].left = t.build(left, depth+1)
	t.nodes[id].right = t.build(right, depth+1)
	return id
}

type neighbor struct {
	index int
	dist  float64
}

// KNN returns the indices of the k nearest points to the query, closest
// first. The point equal to the query index can be excluded by the caller;
// the tree itself has no notion of identity.
func (t *KDTree) KNN(query geom.Vec3, k int) []int {
	if k <= 0 || len(t.points) == 0 {
		return nil
	}
	best := make([]neighbor, 0, k)
	t.searchKNN(t.root, query, k, &best)
	out := make([]int, len(best))
	for i, nb := range best {
		out[i] = nb.index
	}
	return out
}

func (t *KDTree) searchKNN(id int, query geom.Vec3, k int, best *[]neighbor) {
	if id < 0 {
		return
	}
	node := t.nodes[id]
	point := t.points[node.point]
	insertNeighbor(best, neighbor{index: node.point, dist: query.Dist(point)}, k)

	delta := query.Component(node.axis) - point.Component(node.axis)
	near, far := node.left, node.right
	if delta > 0 {
		near, far = far, near
	}

	t.searchKNN(near, query, k, best)
	worst := (*best)[len(*best)-1].dist
	if len(*best) < k || absFloat(delta) < worst {
		t.searchKNN(far, query, k, best)
	}
}

// Radius returns the indices of every point within radius of the query.
func (t *KDTree) Radius(query geom.Vec3, radius float64) []int {
	if radius <= 0 || len(t.points) == 0 {
		return nil
	}
	var out []int
	t.searchRadius(t.root, query, radius, &out)
	return out
}

func (t *KDTree) searchRadius(id int, query geom.Vec3, radius float64, out *[]int) {
	if id < 0 {
		return
	}
	node := t.nodes[id]
	point := t.points[node.point]
	if query.Dist(point) <= radius {
		*out = append(*out, node.point)
	}

	delta := query.Component(node.axis) - point.Component(node.axis)
	near, far := node.left, node.right
	if delta > 0 {
		near, far = far, near
	}
	t.searchRadius(near, query, radius, out)
	if absFloat(delta) <= radius {
		t.searchRadius(far, query, radius, out)
	}
}

func insertNeighbor(best *[]neighbor, nb neighbor, k int) {
	list := *best
	pos := sort.Search(len(list), func(i int) bool { return list[i].dist > nb.dist })
	if len(list) < k {
		list = append(list, neighbor{})
	} else if pos >= len(list) {
		return
	}
	copy(list[pos+1:], list[pos:])
	list[pos] = nb
	*best = list
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
