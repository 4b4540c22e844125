package recon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"facet/internal/config"
	"facet/internal/pointcloud"
	"facet/internal/services/colmap"
	"facet/internal/session"
	"facet/internal/testsupport"
)

// fakeEngine satisfies Engine without the external binary. It writes a
// meshable point cloud as its artifact.
type fakeEngine struct {
	workspace  string
	failSparse bool
	failDense  bool
	block      chan struct{}
}

func (f *fakeEngine) ImagesDir() string { return filepath.Join(f.workspace, "images") }

func (f *fakeEngine) Stats() colmap.Stats {
	return colmap.Stats{NumImages: 3, NumCameras: 1, NumPointsSparse: 1200}
}

func (f *fakeEngine) FullReconstruction(ctx context.Context, preset colmap.Preset) colmap.Result {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return colmap.Result{Errors: []string{ctx.Err().Error()}}
		}
	}
	if f.failSparse {
		return colmap.Result{Errors: []string{"sparse_reconstruction: no good initial image pair"}}
	}

	result := colmap.Result{
		Success:        true,
		StepsCompleted: []string{"feature_extraction", "feature_matching", "sparse_reconstruction", "image_undistortion"},
	}
	if f.failDense {
		result.Errors = append(result.Errors, "stereo_matching: CUDA not available")
	} else {
		result.StepsCompleted = append(result.StepsCompleted, "stereo_matching", "stereo_fusion")
	}

	artifact := filepath.Join(f.workspace, "artifact.ply")
	if err := pointcloud.SavePLY(artifact, testsupport.CubeCloud(6, 42)); err != nil {
		return colmap.Result{Errors: []string{err.Error()}}
	}
	result.OutputArtifact = artifact
	return result
}

type fakeFactory struct {
	failSparse bool
	failDense  bool
	block      chan struct{}
}

func (f *fakeFactory) build(workspace string, _ *slog.Logger) (Engine, error) {
	engine := &fakeEngine{
		workspace:  workspace,
		failSparse: f.failSparse,
		failDense:  f.failDense,
		block:      f.block,
	}
	if err := os.MkdirAll(engine.ImagesDir(), 0o755); err != nil {
		return nil, err
	}
	return engine, nil
}

type harness struct {
	cfg      *config.Config
	sessions *session.Store
	jobs     *Store
	manager  *Manager
}

func newHarness(t *testing.T, factory *fakeFactory, opts ...testsupport.ConfigOption) *harness {
	t.Helper()

	opts = append([]testsupport.ConfigOption{
		testsupport.WithMinImages(2),
		testsupport.WithWorkers(1, 2),
	}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Processing.MeshMethod = "convex_hull"

	sessions := testsupport.MustOpenSessions(t, cfg)
	jobs, err := OpenStore(cfg, nil)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { jobs.Close() })

	manager := NewManager(cfg, sessions, jobs, factory.build, nil)
	manager.Start()
	t.Cleanup(manager.Stop)

	return &harness{cfg: cfg, sessions: sessions, jobs: jobs, manager: manager}
}

func (h *harness) newSessionWithImages(t *testing.T, count int) *session.Session {
	t.Helper()
	created := testsupport.NewSession(t, h.sessions, "test-project")
	for i := 0; i < count; i++ {
		classification := "plain"
		if i == 0 {
			classification = "stain"
		}
		testsupport.AddImage(t, h.sessions, created.ID, classification)
	}
	return created
}

func (h *harness) waitTerminal(t *testing.T, jobID string) *Job {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		job, err := h.manager.Status(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status")
	return nil
}

func TestJobCompletesAndExportsArtifacts(t *testing.T) {
	h := newHarness(t, &fakeFactory{})
	created := h.newSessionWithImages(t, 3)

	job, err := h.manager.StartJob(context.Background(), created.ID, "high")
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if job.Status != StatusQueued {
		t.Fatalf("initial status %s", job.Status)
	}
	if job.Quality != "high" {
		t.Fatalf("quality %s", job.Quality)
	}
	if job.EstimateMinutes != 3.0 {
		// 3 images x 30s x 2.0 multiplier = 180s.
		t.Fatalf("estimate %v minutes", job.EstimateMinutes)
	}

	done := h.waitTerminal(t, job.ID)
	if done.Status != StatusCompleted {
		t.Fatalf("status %s, message %q, errors %v", done.Status, done.Message, done.Errors)
	}
	if done.Progress != 100 {
		t.Fatalf("progress %d", done.Progress)
	}
	for _, format := range []string{"ply", "obj", "glb", "metadata"} {
		path, ok := done.Outputs[format]
		if !ok {
			t.Fatalf("missing output %q in %v", format, done.Outputs)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("output %s missing: %v", format, err)
		}
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Fatal("timestamps not recorded")
	}

	path, err := h.manager.Artifact(context.Background(), job.ID, "ply")
	if err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if path != done.Outputs["ply"] {
		t.Fatalf("artifact path %q", path)
	}
}

func TestDenseFailureStillCompletes(t *testing.T) {
	h := newHarness(t, &fakeFactory{failDense: true})
	created := h.newSessionWithImages(t, 2)

	job, err := h.manager.StartJob(context.Background(), created.ID, "")
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	done := h.waitTerminal(t, job.ID)
	if done.Status != StatusCompleted {
		t.Fatalf("dense failure should still complete, got %s: %v", done.Status, done.Errors)
	}
	if len(done.Errors) == 0 {
		t.Fatal("dense failure must be recorded in the error list")
	}
}

func TestSparseFailureFailsJob(t *testing.T) {
	h := newHarness(t, &fakeFactory{failSparse: true})
	created := h.newSessionWithImages(t, 2)

	job, err := h.manager.StartJob(context.Background(), created.ID, "low")
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	done := h.waitTerminal(t, job.ID)
	if done.Status != StatusFailed {
		t.Fatalf("status %s", done.Status)
	}
	if len(done.Errors) == 0 {
		t.Fatal("error list must not be empty")
	}
	if _, err := h.manager.Artifact(context.Background(), job.ID, "ply"); !errors.Is(err, ErrJobNotReady) {
		t.Fatalf("artifact on failed job: %v", err)
	}
}

func TestInsufficientImagesCreatesNoJob(t *testing.T) {
	h := newHarness(t, &fakeFactory{}, testsupport.WithMinImages(10))
	created := h.newSessionWithImages(t, 5)

	_, err := h.manager.StartJob(context.Background(), created.ID, "medium")
	if !errors.Is(err, ErrInsufficientImages) {
		t.Fatalf("expected ErrInsufficientImages, got %v", err)
	}

	jobs, err := h.jobs.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("no job should exist, found %d", len(jobs))
	}
}

func TestStartJobUnknownSession(t *testing.T) {
	h := newHarness(t, &fakeFactory{})
	_, err := h.manager.StartJob(context.Background(), "missing", "medium")
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected session.ErrNotFound, got %v", err)
	}
}

func TestQueueBackpressure(t *testing.T) {
	block := make(chan struct{})
	h := newHarness(t, &fakeFactory{block: block}, testsupport.WithWorkers(1, 1))
	defer close(block)

	first := h.newSessionWithImages(t, 2)
	second := h.newSessionWithImages(t, 2)
	third := h.newSessionWithImages(t, 2)

	// First job occupies the worker; second fills the queue.
	if _, err := h.manager.StartJob(context.Background(), first.ID, ""); err != nil {
		t.Fatalf("first StartJob: %v", err)
	}
	waitForQueueDrain(t, h)
	if _, err := h.manager.StartJob(context.Background(), second.ID, ""); err != nil {
		t.Fatalf("second StartJob: %v", err)
	}
	_, err := h.manager.StartJob(context.Background(), third.ID, "")
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	jobs, listErr := h.jobs.List(context.Background())
	if listErr != nil {
		t.Fatalf("List: %v", listErr)
	}
	if len(jobs) != 2 {
		t.Fatalf("rejected job should leave no row, found %d rows", len(jobs))
	}
}

// waitForQueueDrain waits until the worker has picked up the queued job so
// the queue slot is free again.
func waitForQueueDrain(t *testing.T, h *harness) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.manager.queue) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("queue never drained")
}

func TestArtifactErrors(t *testing.T) {
	h := newHarness(t, &fakeFactory{})
	created := h.newSessionWithImages(t, 2)

	if _, err := h.manager.Artifact(context.Background(), "missing", "ply"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("unknown job: %v", err)
	}

	job, err := h.manager.StartJob(context.Background(), created.ID, "")
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	done := h.waitTerminal(t, job.ID)
	if done.Status != StatusCompleted {
		t.Fatalf("status %s: %v", done.Status, done.Errors)
	}

	if _, err := h.manager.Artifact(context.Background(), job.ID, "stl"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("unsupported format: %v", err)
	}

	if err := os.Remove(done.Outputs["glb"]); err != nil {
		t.Fatalf("remove artifact: %v", err)
	}
	if _, err := h.manager.Artifact(context.Background(), job.ID, "glb"); !errors.Is(err, ErrArtifactMissing) {
		t.Fatalf("missing artifact: %v", err)
	}
}

func TestSnapshotIsolationInMetadata(t *testing.T) {
	block := make(chan struct{})
	h := newHarness(t, &fakeFactory{block: block})
	created := h.newSessionWithImages(t, 3)

	job, err := h.manager.StartJob(context.Background(), created.ID, "")
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	// Upload lands after the job snapshot was taken.
	testsupport.AddImage(t, h.sessions, created.ID, "peeling")
	close(block)

	done := h.waitTerminal(t, job.ID)
	if done.Status != StatusCompleted {
		t.Fatalf("status %s: %v", done.Status, done.Errors)
	}

	raw, err := os.ReadFile(done.Outputs["metadata"])
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var meta struct {
		ImageCount      int `json:"image_count"`
		AnnotationCount int `json:"annotation_count"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.ImageCount != 3 {
		t.Fatalf("metadata image_count %d, want the job-start count 3", meta.ImageCount)
	}
	if meta.AnnotationCount != 1 {
		t.Fatalf("metadata annotation_count %d, want 1", meta.AnnotationCount)
	}
}

func TestStartJobRecordNotMutatedByPipeline(t *testing.T) {
	h := newHarness(t, &fakeFactory{})
	created := h.newSessionWithImages(t, 2)

	job, err := h.manager.StartJob(context.Background(), created.ID, "")
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	done := h.waitTerminal(t, job.ID)
	if done.Status != StatusCompleted {
		t.Fatalf("status %s: %v", done.Status, done.Errors)
	}

	// The returned record is the caller's own copy, frozen at enqueue time.
	// Current state always comes from Status.
	if job.Status != StatusQueued || job.Progress != 0 || job.Stage != "" {
		t.Fatalf("returned record mutated by the pipeline: %+v", job)
	}
	if len(job.Outputs) != 0 || len(job.Errors) != 0 {
		t.Fatalf("returned record picked up pipeline results: %+v", job)
	}
	if job.StartedAt != nil || job.CompletedAt != nil {
		t.Fatalf("returned record picked up pipeline timestamps: %+v", job)
	}
}

func TestStopFailsQueuedJobs(t *testing.T) {
	block := make(chan struct{})
	h := newHarness(t, &fakeFactory{block: block}, testsupport.WithWorkers(1, 1))
	defer close(block)

	first := h.newSessionWithImages(t, 2)
	second := h.newSessionWithImages(t, 2)

	running, err := h.manager.StartJob(context.Background(), first.ID, "")
	if err != nil {
		t.Fatalf("first StartJob: %v", err)
	}
	waitForQueueDrain(t, h)
	queued, err := h.manager.StartJob(context.Background(), second.ID, "")
	if err != nil {
		t.Fatalf("second StartJob: %v", err)
	}

	h.manager.Stop()

	for _, id := range []string{running.ID, queued.ID} {
		loaded, err := h.jobs.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if loaded.Status != StatusFailed {
			t.Fatalf("job %s left non-terminal after Stop: %s", id, loaded.Status)
		}
		if loaded.Message != "shut down before completion" {
			t.Fatalf("job %s message %q", id, loaded.Message)
		}
		if loaded.CompletedAt == nil {
			t.Fatalf("job %s has no completion timestamp", id)
		}
	}
}

func TestStartSweepsInterruptedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sessions := testsupport.MustOpenSessions(t, cfg)
	jobs, err := OpenStore(cfg, nil)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { jobs.Close() })
	ctx := context.Background()

	stale := newJob()
	orphaned := newJob()
	orphaned.Status = StatusRunning
	finished := newJob()
	finished.Status = StatusCompleted
	for _, job := range []*Job{stale, orphaned, finished} {
		if err := jobs.insert(ctx, job); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	manager := NewManager(cfg, sessions, jobs, (&fakeFactory{}).build, nil)
	manager.Start()
	t.Cleanup(manager.Stop)

	for _, id := range []string{stale.ID, orphaned.ID} {
		loaded, err := jobs.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if loaded.Status != StatusFailed {
			t.Fatalf("job %s not swept: %s", id, loaded.Status)
		}
		if loaded.Message != "interrupted by daemon restart" {
			t.Fatalf("job %s message %q", id, loaded.Message)
		}
	}
	loaded, err := jobs.Get(ctx, finished.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.Status != StatusCompleted {
		t.Fatalf("terminal job was swept: %s", loaded.Status)
	}
}

func TestEstimateMinutes(t *testing.T) {
	cases := []struct {
		images     int
		multiplier float64
		want       float64
	}{
		{10, 1.0, 5.0},
		{10, 2.0, 10.0},
		{10, 0.5, 2.5},
		{0, 1.0, 0},
	}
	for _, tc := range cases {
		if got := EstimateMinutes(tc.images, 30, tc.multiplier); got != tc.want {
			t.Errorf("EstimateMinutes(%d, 30, %v) = %v, want %v", tc.images, tc.multiplier, got, tc.want)
		}
	}
}
