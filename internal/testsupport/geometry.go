package testsupport

import (
	"math/rand"
	"path/filepath"
	"testing"

	"facet/internal/geom"
	"facet/internal/ply"
	"facet/internal/pointcloud"
)

// CubeCloud returns points sampled on a jittered grid filling the unit cube,
// dense enough for surface reconstruction to succeed.
func CubeCloud(perAxis int, seed int64) *pointcloud.Cloud {
	rng := rand.New(rand.NewSource(seed))
	cloud := &pointcloud.Cloud{}
	step := 1.0 / float64(perAxis-1)
	jitter := step / 10
	for x := 0; x < perAxis; x++ {
		for y := 0; y < perAxis; y++ {
			for z := 0; z < perAxis; z++ {
				cloud.Points = append(cloud.Points, geom.Vec3{
					X: float64(x)*step + rng.Float64()*jitter,
					Y: float64(y)*step + rng.Float64()*jitter,
					Z: float64(z)*step + rng.Float64()*jitter,
				})
				cloud.Colors = append(cloud.Colors, geom.Color{R: 200, G: 100, B: 50})
			}
		}
	}
	return cloud
}

// WritePLYCloud writes a point cloud fixture and returns its path.
func WritePLYCloud(t testing.TB, dir string, cloud *pointcloud.Cloud) string {
	t.Helper()

	path := filepath.Join(dir, "cloud.ply")
	if err := ply.Write(path, &ply.Data{Points: cloud.Points, Colors: cloud.Colors}); err != nil {
		t.Fatalf("write ply fixture: %v", err)
	}
	return path
}
