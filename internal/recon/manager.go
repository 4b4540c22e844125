package recon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"facet/internal/config"
	"facet/internal/fileutil"
	"facet/internal/logging"
	"facet/internal/mesh"
	"facet/internal/overlay"
	"facet/internal/processing"
	"facet/internal/services/colmap"
	"facet/internal/session"
)

// Engine is the slice of the geometry engine client the pipeline needs.
// Tests substitute a fake to run jobs without the external binary.
type Engine interface {
	FullReconstruction(ctx context.Context, preset colmap.Preset) colmap.Result
	Stats() colmap.Stats
	ImagesDir() string
}

// EngineFactory builds an engine bound to a per-job workspace directory.
type EngineFactory func(workspace string, logger *slog.Logger) (Engine, error)

// DefaultEngineFactory builds real subprocess-backed engine clients from the
// engine configuration section.
func DefaultEngineFactory(cfg config.Engine) EngineFactory {
	return func(workspace string, logger *slog.Logger) (Engine, error) {
		return colmap.New(colmap.Settings{
			Binary:       cfg.Binary,
			StageTimeout: time.Duration(cfg.StageTimeout) * time.Second,
			UseGPU:       cfg.UseGPU,
			GPUIndex:     cfg.GPUIndex,
		}, workspace, logger)
	}
}

type task struct {
	job      *Job
	snapshot *session.Snapshot
	preset   colmap.Preset
}

// Manager owns the bounded worker pool that executes reconstruction jobs and
// the job store that tracks them.
type Manager struct {
	cfg       *config.Config
	sessions  *session.Store
	jobs      *Store
	processor *processing.Processor
	newEngine EngineFactory
	logger    *slog.Logger

	queue  chan task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager wires the orchestrator. Call Start to launch the workers and
// Stop to shut them down.
func NewManager(cfg *config.Config, sessions *session.Store, jobs *Store, factory EngineFactory, logger *slog.Logger) *Manager {
	componentLogger := logging.NewComponentLogger(logger, "recon")
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		sessions:  sessions,
		jobs:      jobs,
		processor: processing.New(cfg.Processing, componentLogger),
		newEngine: factory,
		logger:    componentLogger,
		queue:     make(chan task, cfg.Workflow.JobQueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start sweeps jobs orphaned by a previous process, then launches the
// configured number of pipeline workers. Without the sweep, rows left queued
// or running by a crash would never reach a terminal status and pollers
// would hang forever.
func (m *Manager) Start() {
	if swept, err := m.jobs.failInterrupted(context.Background(), "interrupted by daemon restart"); err != nil {
		m.logger.Warn("failed to sweep stale jobs", logging.Error(err))
	} else if swept > 0 {
		m.logger.Info("stale jobs marked failed", logging.Int64("jobs", swept))
	}

	for i := 0; i < m.cfg.Workflow.JobWorkers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	m.logger.Info("job workers started",
		logging.Int("workers", m.cfg.Workflow.JobWorkers),
		logging.Int("queue_size", m.cfg.Workflow.JobQueueSize))
}

// Stop cancels running jobs, waits for the workers to drain, then fails any
// task still sitting in the queue. Engine subprocesses die with the run
// context; the final drain guarantees every accepted job reaches a terminal
// status before Stop returns.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	for {
		select {
		case t := <-m.queue:
			m.fail(t.job, "shut down before completion")
		default:
			return
		}
	}
}

// StartJob validates the session, snapshots it, and enqueues a reconstruction
// job. It returns before the pipeline starts executing. A full queue returns
// ErrBusy and leaves no job behind.
func (m *Manager) StartJob(ctx context.Context, sessionID, quality string) (*Job, error) {
	snapshot, err := m.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	minimum := m.cfg.Capture.MinImagesForReconstruction
	if len(snapshot.Images) < minimum {
		return nil, fmt.Errorf("%w: session has %d, minimum is %d",
			ErrInsufficientImages, len(snapshot.Images), minimum)
	}

	preset := colmap.ResolvePreset(quality)
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		SessionID: snapshot.ID,
		Quality:   preset.Name,
		Status:    StatusQueued,
		CreatedAt: now,
		EstimateMinutes: EstimateMinutes(len(snapshot.Images),
			m.cfg.Workflow.EstimateSecondsPerImage, preset.EstimateMultiplier()),
	}
	if err := m.jobs.insert(ctx, job); err != nil {
		return nil, err
	}

	// The worker mutates its own copy of the record; the caller's copy stays
	// frozen at queued. Shared state is mediated by the store alone, so
	// status polls never race the pipeline.
	queued := *job

	select {
	case m.queue <- task{job: &queued, snapshot: snapshot, preset: preset}:
	default:
		if delErr := m.jobs.delete(ctx, job.ID); delErr != nil {
			m.logger.Warn("failed to remove rejected job",
				logging.String(logging.FieldJobID, job.ID), logging.Error(delErr))
		}
		return nil, ErrBusy
	}

	m.logger.Info("job queued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSessionID, snapshot.ID),
		logging.String("quality", preset.Name),
		logging.Int("images", len(snapshot.Images)))
	return job, nil
}

// Status returns a point-in-time job snapshot.
func (m *Manager) Status(ctx context.Context, jobID string) (*Job, error) {
	return m.jobs.Get(ctx, jobID)
}

// Artifact resolves a completed job's output path for the given format.
func (m *Manager) Artifact(ctx context.Context, jobID, format string) (string, error) {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != StatusCompleted {
		return "", fmt.Errorf("%w: status is %s", ErrJobNotReady, job.Status)
	}
	switch format {
	case "ply", "obj", "glb":
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	path := job.Outputs[format]
	if path == "" {
		return "", fmt.Errorf("%w: no %s output recorded", ErrArtifactMissing, format)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrArtifactMissing, path)
	}
	return path, nil
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case t := <-m.queue:
			m.run(t)
		}
	}
}

// run drives one job through geometry, processing, overlay, and export.
// Progress values are fixed per-stage checkpoints, not a measurement of
// elapsed work.
func (m *Manager) run(t task) {
	job := t.job
	logger := m.logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSessionID, job.SessionID))

	started := time.Now().UTC()
	job.Status = StatusRunning
	job.StartedAt = &started
	m.checkpoint(job, 10, StageGeometry)

	outputDir := filepath.Join(m.cfg.OutputDir(), job.ID)
	engine, err := m.prepareEngine(t.snapshot, filepath.Join(outputDir, "work"), logger)
	if err != nil {
		m.fail(job, fmt.Sprintf("workspace setup: %v", err))
		return
	}

	engineResult := engine.FullReconstruction(m.ctx, t.preset)
	job.Errors = append(job.Errors, engineResult.Errors...)
	if !engineResult.Success {
		m.fail(job, m.failureMessage("geometry reconstruction failed"))
		return
	}
	m.checkpoint(job, 60, StageProcessing)

	processed, err := m.processor.Run(engineResult.OutputArtifact)
	if err != nil {
		m.fail(job, m.failureMessage(fmt.Sprintf("post-processing: %v", err)))
		return
	}
	job.Errors = append(job.Errors, processed.Errors...)
	m.checkpoint(job, 85, StageOverlay)

	combined := processed.Mesh
	if len(t.snapshot.Annotations) > 0 {
		combined = overlay.AddMarkers(combined, t.snapshot.Annotations, m.cfg.Processing.MarkerRadius)
	}
	m.checkpoint(job, 90, StageExport)

	outputs, failures := m.export(combined, outputDir, t, engine, engineResult.StepsCompleted, processed)
	for _, failure := range failures {
		job.Errors = append(job.Errors, failure.Error())
	}
	if len(outputs) == 0 {
		m.fail(job, m.failureMessage("export produced no artifacts"))
		return
	}
	job.Outputs = outputs
	m.checkpoint(job, 95, StageExport)

	completed := time.Now().UTC()
	job.Status = StatusCompleted
	job.CompletedAt = &completed
	job.Message = "reconstruction complete"
	m.checkpoint(job, 100, StageExport)
	logger.Info("job completed",
		logging.Duration("elapsed", completed.Sub(started)),
		logging.Int("errors", len(job.Errors)))
}

// prepareEngine builds the per-job engine client and stages the snapshot's
// images into its workspace. Hard links keep staging cheap; copy is the
// cross-filesystem fallback.
func (m *Manager) prepareEngine(snapshot *session.Snapshot, workspace string, logger *slog.Logger) (Engine, error) {
	engine, err := m.newEngine(workspace, logger)
	if err != nil {
		return nil, err
	}
	for _, image := range snapshot.Images {
		dst := filepath.Join(engine.ImagesDir(), image.Filename)
		if err := fileutil.LinkOrCopy(image.Path, dst); err != nil {
			return nil, fmt.Errorf("stage image %s: %w", image.Filename, err)
		}
	}
	return engine, nil
}

func (m *Manager) export(combined *mesh.Mesh, outputDir string, t task, engine Engine, engineSteps []string, processed *processing.Result) (map[string]string, []error) {
	meta := overlay.Metadata{
		ReconstructionID: t.job.ID,
		SessionID:        t.snapshot.ID,
		ProjectName:      t.snapshot.ProjectName,
		ImageCount:       len(t.snapshot.Images),
		AnnotationCount:  len(t.snapshot.Annotations),
		Model:            combined.Describe(),
		Engine:           engine.Stats(),
		StepsCompleted:   append(append([]string{}, engineSteps...), processed.StepsCompleted...),
		CreatedAt:        time.Now().UTC(),
	}
	return overlay.Export(combined, outputDir, meta)
}

func (m *Manager) checkpoint(job *Job, progress int, stage string) {
	job.Progress = progress
	job.Stage = stage
	if err := m.jobs.update(context.Background(), job); err != nil {
		m.logger.Warn("failed to persist job progress",
			logging.String(logging.FieldJobID, job.ID), logging.Error(err))
	}
}

func (m *Manager) fail(job *Job, message string) {
	completed := time.Now().UTC()
	job.Status = StatusFailed
	job.Message = message
	job.CompletedAt = &completed
	if err := m.jobs.update(context.Background(), job); err != nil {
		m.logger.Warn("failed to persist job failure",
			logging.String(logging.FieldJobID, job.ID), logging.Error(err))
	}
	m.logger.Warn("job failed",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("message", message))
}

// failureMessage distinguishes shutdown interruption from genuine pipeline
// failure.
func (m *Manager) failureMessage(message string) string {
	if m.ctx.Err() != nil {
		return "shut down before completion"
	}
	return message
}
