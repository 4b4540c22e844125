package pointcloud

import (
	"math/rand"
	"testing"

	"facet/internal/geom"
)

func randomCloud(n int, seed int64) *Cloud {
	rng := rand.New(rand.NewSource(seed))
	cloud := &Cloud{}
	for i := 0; i < n; i++ {
		cloud.Points = append(cloud.Points, geom.Vec3{
			X: rng.Float64(),
			Y: rng.Float64(),
			Z: rng.Float64(),
		})
		cloud.Colors = append(cloud.Colors, geom.Color{R: uint8(i % 256)})
	}
	return cloud
}

func TestDownsampleNeverGrows(t *testing.T) {
	cloud := randomCloud(500, 1)
	for _, voxel := range []float64{0.01, 0.1, 0.5, 2.0} {
		reduced := cloud.Downsample(voxel)
		if reduced.Len() > cloud.Len() {
			t.Fatalf("voxel %v: downsample grew the cloud: %d > %d", voxel, reduced.Len(), cloud.Len())
		}
		if reduced.Len() == 0 {
			t.Fatalf("voxel %v: downsample emptied a non-empty cloud", voxel)
		}
	}
}

func TestDownsampleIdempotent(t *testing.T) {
	cloud := randomCloud(500, 2)
	once := cloud.Downsample(0.1)
	twice := once.Downsample(0.1)
	if once.Len() != twice.Len() {
		t.Fatalf("repeated downsample changed count: %d then %d", once.Len(), twice.Len())
	}
	for i := range once.Points {
		if once.Points[i] != twice.Points[i] {
			t.Fatalf("point %d moved: %v vs %v", i, once.Points[i], twice.Points[i])
		}
	}
}

func TestDownsampleKeepsColors(t *testing.T) {
	cloud := randomCloud(100, 3)
	reduced := cloud.Downsample(0.2)
	if !reduced.HasColors() {
		t.Fatal("colors lost during downsample")
	}
	if len(reduced.Colors) != len(reduced.Points) {
		t.Fatalf("color count %d != point count %d", len(reduced.Colors), len(reduced.Points))
	}
}

func TestDownsampleEdgeCases(t *testing.T) {
	empty := &Cloud{}
	if got := empty.Downsample(0.1); got.Len() != 0 {
		t.Fatalf("empty input produced %d points", got.Len())
	}
	cloud := randomCloud(10, 4)
	if got := cloud.Downsample(0); got.Len() != cloud.Len() {
		t.Fatalf("zero voxel size should return input unchanged, got %d points", got.Len())
	}
	if got := cloud.Downsample(-1); got.Len() != cloud.Len() {
		t.Fatalf("negative voxel size should return input unchanged, got %d points", got.Len())
	}
}
