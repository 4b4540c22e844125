package processing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"facet/internal/config"
	"facet/internal/testsupport"
)

func testProcessingConfig() config.Processing {
	cfg := config.Default()
	processing := cfg.Processing
	processing.VoxelSize = 0.05
	processing.OutlierNeighbors = 8
	processing.MeshMethod = "convex_hull"
	processing.SimplifyFactor = 0.9
	processing.SmoothIterations = 2
	return processing
}

func TestRunProducesMeshFromPointCloud(t *testing.T) {
	cloud := testsupport.CubeCloud(7, 1)
	path := testsupport.WritePLYCloud(t, t.TempDir(), cloud)

	processor := New(testProcessingConfig(), nil)
	result, err := processor.Run(path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Mesh == nil || len(result.Mesh.Faces) == 0 {
		t.Fatal("expected a mesh")
	}
	if result.InputPoints != cloud.Len() {
		t.Fatalf("input points %d, want %d", result.InputPoints, cloud.Len())
	}
	if result.ReducedPoints > result.InputPoints {
		t.Fatalf("cleaning grew the cloud: %d > %d", result.ReducedPoints, result.InputPoints)
	}

	wantSteps := []string{StepDownsample, StepOutlierRemoval, StepMeshing, StepSimplification, StepSmoothing}
	if len(result.StepsCompleted) != len(wantSteps) {
		t.Fatalf("steps %v, want %v", result.StepsCompleted, wantSteps)
	}
	for i, step := range wantSteps {
		if result.StepsCompleted[i] != step {
			t.Fatalf("step %d = %q, want %q", i, result.StepsCompleted[i], step)
		}
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected step errors: %v", result.Errors)
	}
	if result.Info.FaceCount != len(result.Mesh.Faces) {
		t.Fatal("info does not describe the returned mesh")
	}
}

func TestRunSkipsDisabledSteps(t *testing.T) {
	cloud := testsupport.CubeCloud(5, 2)
	path := testsupport.WritePLYCloud(t, t.TempDir(), cloud)

	cfg := testProcessingConfig()
	cfg.VoxelSize = 0
	cfg.OutlierMethod = "none"
	cfg.SimplifyFactor = 1
	cfg.SmoothIterations = 0

	result, err := New(cfg, nil).Run(path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.StepsCompleted) != 1 || result.StepsCompleted[0] != StepMeshing {
		t.Fatalf("steps %v, want only meshing", result.StepsCompleted)
	}
}

func TestRunRecordsUnknownOutlierMethod(t *testing.T) {
	cloud := testsupport.CubeCloud(5, 3)
	path := testsupport.WritePLYCloud(t, t.TempDir(), cloud)

	cfg := testProcessingConfig()
	cfg.OutlierMethod = "median"

	result, err := New(cfg, nil).Run(path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one recorded step error, got %v", result.Errors)
	}
	if len(result.Mesh.Faces) == 0 {
		t.Fatal("later steps should still run after a recorded failure")
	}
}

func TestRunModelLoadError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.ply")
	if err := os.WriteFile(path, []byte("not a ply file"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := New(testProcessingConfig(), nil).Run(path)
	if !errors.Is(err, ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
}

func TestRunEmptyCloudIsModelLoadError(t *testing.T) {
	path := testsupport.WritePLYCloud(t, t.TempDir(), testsupport.CubeCloud(0, 0))
	_, err := New(testProcessingConfig(), nil).Run(path)
	if !errors.Is(err, ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad for empty cloud, got %v", err)
	}
}
