package pointcloud

import (
	"testing"

	"facet/internal/geom"
)

// clusterWithStray builds a tight cluster plus one point far away.
func clusterWithStray() *Cloud {
	cloud := randomCloud(200, 7)
	cloud.Points = append(cloud.Points, geom.Vec3{X: 50, Y: 50, Z: 50})
	cloud.Colors = append(cloud.Colors, geom.Color{})
	return cloud
}

func TestStatisticalOutliersRemovesStray(t *testing.T) {
	cloud := clusterWithStray()
	cleaned := cloud.RemoveStatisticalOutliers(10, 2.0)
	if cleaned.Len() >= cloud.Len() {
		t.Fatalf("stray point survived: %d points of %d", cleaned.Len(), cloud.Len())
	}
	for _, p := range cleaned.Points {
		if p.X > 10 {
			t.Fatalf("stray point still present at %v", p)
		}
	}
}

func TestStatisticalOutliersMonotonicInStdRatio(t *testing.T) {
	cloud := clusterWithStray()
	previous := -1
	for _, ratio := range []float64{0.5, 1.0, 2.0, 4.0, 8.0} {
		kept := cloud.RemoveStatisticalOutliers(10, ratio).Len()
		if kept < previous {
			t.Fatalf("ratio %v kept %d points, fewer than a smaller ratio's %d", ratio, kept, previous)
		}
		previous = kept
	}
}

func TestStatisticalOutliersSmallInputsUnchanged(t *testing.T) {
	empty := &Cloud{}
	if got := empty.RemoveStatisticalOutliers(10, 2.0); got.Len() != 0 {
		t.Fatalf("empty input produced %d points", got.Len())
	}
	small := randomCloud(5, 8)
	if got := small.RemoveStatisticalOutliers(10, 2.0); got.Len() != small.Len() {
		t.Fatalf("input smaller than k should pass through, got %d of %d", got.Len(), small.Len())
	}
}

func TestRadiusOutliersRemovesIsolatedPoint(t *testing.T) {
	cloud := clusterWithStray()
	cleaned := cloud.RemoveRadiusOutliers(0.5, 3)
	if cleaned.Len() != cloud.Len()-1 {
		t.Fatalf("expected exactly the stray removed, kept %d of %d", cleaned.Len(), cloud.Len())
	}
}

func TestKNNMatchesBruteForce(t *testing.T) {
	cloud := randomCloud(300, 9)
	tree := NewKDTree(cloud.Points)
	query := geom.Vec3{X: 0.5, Y: 0.5, Z: 0.5}
	const k = 12

	got := tree.KNN(query, k)
	if len(got) != k {
		t.Fatalf("expected %d neighbors, got %d", k, len(got))
	}

	// Brute force: the k-th best distance is the bound every result must meet.
	distances := make([]float64, cloud.Len())
	for i, p := range cloud.Points {
		distances[i] = p.Dist(query)
	}
	kth := kthSmallest(distances, k)
	for _, index := range got {
		if cloud.Points[index].Dist(query) > kth+1e-12 {
			t.Fatalf("neighbor %d at distance %v exceeds k-th best %v",
				index, cloud.Points[index].Dist(query), kth)
		}
	}
}

func kthSmallest(values []float64, k int) float64 {
	sorted := append([]float64(nil), values...)
	for i := 0; i < k; i++ {
		smallest := i
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] < sorted[smallest] {
				smallest = j
			}
		}
		sorted[i], sorted[smallest] = sorted[smallest], sorted[i]
	}
	return sorted[k-1]
}

func TestRadiusQueryMatchesBruteForce(t *testing.T) {
	cloud := randomCloud(300, 10)
	tree := NewKDTree(cloud.Points)
	query := geom.Vec3{X: 0.25, Y: 0.75, Z: 0.5}
	const radius = 0.3

	got := tree.Radius(query, radius)
	want := 0
	for _, p := range cloud.Points {
		if p.Dist(query) <= radius {
			want++
		}
	}
	if len(got) != want {
		t.Fatalf("radius query found %d points, brute force found %d", len(got), want)
	}
}
