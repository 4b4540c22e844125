package colmap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"facet/internal/logging"
)

// fakeExecutor emulates the engine binary: it records invocations and lays
// down the on-disk side effects each subcommand would produce.
type fakeExecutor struct {
	workspace string
	fail      map[string]string
	calls     []string
}

func (f *fakeExecutor) Run(_ context.Context, _ string, args []string) (string, error) {
	subcommand := args[0]
	f.calls = append(f.calls, subcommand)
	if stderr, ok := f.fail[subcommand]; ok {
		return stderr, errors.New("exit status 1")
	}
	switch subcommand {
	case "mapper":
		if err := os.MkdirAll(filepath.Join(f.workspace, "sparse", "0"), 0o755); err != nil {
			return "", err
		}
	case "stereo_fusion", "model_converter":
		output := argValue(args, "--output_path")
		if err := os.WriteFile(output, []byte("geometry"), 0o644); err != nil {
			return "", err
		}
	}
	return "", nil
}

func argValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newTestClient(t *testing.T, fail map[string]string) (*Client, *fakeExecutor) {
	t.Helper()

	workspace := filepath.Join(t.TempDir(), "work")
	exec := &fakeExecutor{workspace: workspace, fail: fail}
	client, err := New(Settings{Binary: "colmap"}, workspace, logging.NewNop(), WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, exec
}

func TestFullReconstructionRunsStagesInOrder(t *testing.T) {
	client, exec := newTestClient(t, nil)

	result := client.FullReconstruction(context.Background(), ResolvePreset("medium"))
	if !result.Success {
		t.Fatalf("expected success, errors: %v", result.Errors)
	}

	wantCalls := []string{
		"feature_extractor", "exhaustive_matcher", "mapper",
		"image_undistorter", "patch_match_stereo", "stereo_fusion",
	}
	if strings.Join(exec.calls, ",") != strings.Join(wantCalls, ",") {
		t.Fatalf("calls %v, want %v", exec.calls, wantCalls)
	}
	if result.OutputArtifact != filepath.Join(client.DenseDir(), "fused.ply") {
		t.Fatalf("artifact %q should be the dense cloud", result.OutputArtifact)
	}
	if len(result.StepsCompleted) != 6 {
		t.Fatalf("steps %v", result.StepsCompleted)
	}
}

func TestDenseFailureRecoversWithSparseExport(t *testing.T) {
	client, exec := newTestClient(t, map[string]string{
		"patch_match_stereo": "CUDA not available",
	})

	result := client.FullReconstruction(context.Background(), ResolvePreset("low"))
	if !result.Success {
		t.Fatalf("dense failure should be recoverable, errors: %v", result.Errors)
	}
	if len(result.Errors) == 0 {
		t.Fatal("stereo failure must be recorded")
	}
	if !strings.Contains(result.Errors[0], "CUDA not available") {
		t.Fatalf("error should carry stderr, got %q", result.Errors[0])
	}
	if filepath.Base(result.OutputArtifact) != "model.ply" {
		t.Fatalf("artifact %q should be the exported sparse model", result.OutputArtifact)
	}
	if exec.calls[len(exec.calls)-1] != "model_converter" {
		t.Fatalf("expected sparse export fallback, calls: %v", exec.calls)
	}
	for _, call := range exec.calls {
		if call == "stereo_fusion" {
			t.Fatal("fusion must be skipped when stereo matching fails")
		}
	}
}

func TestFusionFailureRecoversWithSparseExport(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"stereo_fusion": "fusion failed",
	})

	result := client.FullReconstruction(context.Background(), ResolvePreset("medium"))
	if !result.Success {
		t.Fatalf("fusion failure should be recoverable, errors: %v", result.Errors)
	}
	if filepath.Base(result.OutputArtifact) != "model.ply" {
		t.Fatalf("artifact %q should be the exported sparse model", result.OutputArtifact)
	}
}

func TestSparseFailureIsFatal(t *testing.T) {
	client, exec := newTestClient(t, map[string]string{
		"mapper": "no good initial image pair",
	})

	result := client.FullReconstruction(context.Background(), ResolvePreset("high"))
	if result.Success {
		t.Fatal("sparse failure must abort the run")
	}
	if len(result.Errors) == 0 {
		t.Fatal("error list must not be empty")
	}
	if result.OutputArtifact != "" {
		t.Fatalf("no artifact expected, got %q", result.OutputArtifact)
	}
	for _, call := range exec.calls {
		if call == "image_undistorter" {
			t.Fatal("later sparse stages must not run after mapper failure")
		}
	}

	// Errors are flattened to strings for the job record; the stage name
	// must still be identifiable.
	if !strings.Contains(result.Errors[0], StageSparseReconstruction) {
		t.Fatalf("error %q does not name the failed stage", result.Errors[0])
	}
}

func TestStatsApproximatesWorkspaceContents(t *testing.T) {
	client, _ := newTestClient(t, nil)

	for _, name := range []string{"img_0001.jpg", "img_0002.jpg", "img_0003.png", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(client.ImagesDir(), name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
	sparse := filepath.Join(client.SparseDir(), "0")
	if err := os.MkdirAll(sparse, 0o755); err != nil {
		t.Fatalf("mkdir sparse: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sparse, "points3D.bin"), make([]byte, 43*10), 0o644); err != nil {
		t.Fatalf("write points: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sparse, "cameras.bin"), make([]byte, 80*2), 0o644); err != nil {
		t.Fatalf("write cameras: %v", err)
	}

	stats := client.Stats()
	if stats.NumImages != 3 {
		t.Fatalf("NumImages = %d", stats.NumImages)
	}
	if stats.NumPointsSparse != 10 {
		t.Fatalf("NumPointsSparse = %d", stats.NumPointsSparse)
	}
	if stats.NumCameras != 2 {
		t.Fatalf("NumCameras = %d", stats.NumCameras)
	}
	if stats.DenseAvailable {
		t.Fatal("no dense cloud written")
	}
}

func TestResolvePresetFallsBackToMedium(t *testing.T) {
	cases := map[string]string{
		"high":    "high",
		"HIGH":    "high",
		"low":     "low",
		"":        "medium",
		"extreme": "medium",
	}
	for input, want := range cases {
		if got := ResolvePreset(input); got.Name != want {
			t.Errorf("ResolvePreset(%q) = %s, want %s", input, got.Name, want)
		}
	}
}
