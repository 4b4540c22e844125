package colmap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"facet/internal/logging"
)

// Stage names reported in results and errors, in pipeline order.
const (
	StageFeatureExtraction    = "feature_extraction"
	StageFeatureMatching      = "feature_matching"
	StageSparseReconstruction = "sparse_reconstruction"
	StageImageUndistortion    = "image_undistortion"
	StageStereoMatching       = "stereo_matching"
	StageStereoFusion         = "stereo_fusion"
	StageModelExport          = "model_export"
)

// StageError reports the failure of a single engine stage.
type StageError struct {
	Stage   string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return e.Stage
}

func (e *StageError) Unwrap() error { return e.Err }

// Executor abstracts subprocess execution for testability. Run returns the
// captured stderr alongside any execution error.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (stderr string, err error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Settings carries engine invocation parameters resolved from config.
type Settings struct {
	Binary       string
	StageTimeout time.Duration
	UseGPU       bool
	GPUIndex     string
}

// Client wraps COLMAP CLI interactions for one workspace.
type Client struct {
	settings  Settings
	workspace string
	exec      Executor
	logger    *slog.Logger
}

// New constructs a client and lays out the workspace directories.
func New(settings Settings, workspace string, logger *slog.Logger, opts ...Option) (*Client, error) {
	settings.Binary = strings.TrimSpace(settings.Binary)
	if settings.Binary == "" {
		return nil, errors.New("colmap binary required")
	}
	if strings.TrimSpace(workspace) == "" {
		return nil, errors.New("workspace directory required")
	}

	client := &Client{
		settings:  settings,
		workspace: workspace,
		exec:      commandExecutor{},
		logger:    logging.NewComponentLogger(logger, "colmap"),
	}
	for _, opt := range opts {
		opt(client)
	}

	for _, dir := range []string{client.ImagesDir(), client.SparseDir(), client.DenseDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace directory: %w", err)
		}
	}
	return client, nil
}

// ImagesDir returns the raw image directory inside the workspace.
func (c *Client) ImagesDir() string { return filepath.Join(c.workspace, "images") }

// DatabasePath returns the feature database path.
func (c *Client) DatabasePath() string { return filepath.Join(c.workspace, "database.db") }

// SparseDir returns the sparse-model directory.
func (c *Client) SparseDir() string { return filepath.Join(c.workspace, "sparse") }

// DenseDir returns the dense-model directory.
func (c *Client) DenseDir() string { return filepath.Join(c.workspace, "dense") }

func (c *Client) sparseModelDir() string { return filepath.Join(c.SparseDir(), "0") }

func (c *Client) densePointCloud() string { return filepath.Join(c.DenseDir(), "fused.ply") }

// FeatureExtraction extracts SIFT features from the workspace images.
func (c *Client) FeatureExtraction(ctx context.Context, preset Preset) error {
	args := []string{
		"feature_extractor",
		"--database_path", c.DatabasePath(),
		"--image_path", c.ImagesDir(),
		"--SiftExtraction.max_num_features", strconv.Itoa(preset.MaxFeatures),
		"--SiftExtraction.max_image_size", strconv.Itoa(preset.MaxImageSize),
	}
	args = append(args, c.gpuArgs("SiftExtraction")...)
	return c.runStage(ctx, StageFeatureExtraction, args)
}

// FeatureMatching matches features exhaustively between all image pairs.
func (c *Client) FeatureMatching(ctx context.Context) error {
	args := []string{
		"exhaustive_matcher",
		"--database_path", c.DatabasePath(),
	}
	args = append(args, c.gpuArgs("SiftMatching")...)
	return c.runStage(ctx, StageFeatureMatching, args)
}

// SparseReconstruction runs incremental structure-from-motion.
func (c *Client) SparseReconstruction(ctx context.Context) error {
	return c.runStage(ctx, StageSparseReconstruction, []string{
		"mapper",
		"--database_path", c.DatabasePath(),
		"--image_path", c.ImagesDir(),
		"--output_path", c.SparseDir(),
	})
}

// ImageUndistortion prepares undistorted images for dense reconstruction.
func (c *Client) ImageUndistortion(ctx context.Context) error {
	if _, err := os.Stat(c.sparseModelDir()); err != nil {
		return &StageError{Stage: StageImageUndistortion, Message: "no sparse model found", Err: err}
	}
	return c.runStage(ctx, StageImageUndistortion, []string{
		"image_undistorter",
		"--image_path", c.ImagesDir(),
		"--input_path", c.sparseModelDir(),
		"--output_path", c.DenseDir(),
		"--output_type", "COLMAP",
	})
}

// StereoMatching estimates per-pixel depth via patch-match stereo.
func (c *Client) StereoMatching(ctx context.Context, preset Preset) error {
	args := []string{
		"patch_match_stereo",
		"--workspace_path", c.DenseDir(),
		"--PatchMatchStereo.window_radius", strconv.Itoa(preset.WindowRadius),
		"--PatchMatchStereo.max_image_size", strconv.Itoa(preset.MaxImageSize),
	}
	if c.settings.UseGPU {
		args = append(args, "--PatchMatchStereo.gpu_index", c.gpuIndex())
	}
	return c.runStage(ctx, StageStereoMatching, args)
}

// StereoFusion fuses depth maps into the dense point cloud.
func (c *Client) StereoFusion(ctx context.Context) error {
	return c.runStage(ctx, StageStereoFusion, []string{
		"stereo_fusion",
		"--workspace_path", c.DenseDir(),
		"--output_path", c.densePointCloud(),
	})
}

// ExportSparse converts the sparse model to the requested interchange format
// and returns the exported file path.
func (c *Client) ExportSparse(ctx context.Context, format string) (string, error) {
	format = strings.ToUpper(strings.TrimSpace(format))
	if format == "" {
		format = "PLY"
	}
	if _, err := os.Stat(c.sparseModelDir()); err != nil {
		return "", &StageError{Stage: StageModelExport, Message: "no sparse model to export", Err: err}
	}
	output := filepath.Join(c.workspace, "model."+strings.ToLower(format))
	err := c.runStage(ctx, StageModelExport, []string{
		"model_converter",
		"--input_path", c.sparseModelDir(),
		"--output_path", output,
		"--output_type", format,
	})
	if err != nil {
		return "", err
	}
	return output, nil
}

func (c *Client) gpuArgs(section string) []string {
	use := "0"
	if c.settings.UseGPU {
		use = "1"
	}
	args := []string{"--" + section + ".use_gpu", use}
	if c.settings.UseGPU {
		args = append(args, "--"+section+".gpu_index", c.gpuIndex())
	}
	return args
}

func (c *Client) gpuIndex() string {
	if strings.TrimSpace(c.settings.GPUIndex) == "" {
		return "0"
	}
	return c.settings.GPUIndex
}

func (c *Client) runStage(ctx context.Context, stage string, args []string) error {
	runCtx := ctx
	if c.settings.StageTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.settings.StageTimeout)
		defer cancel()
	}

	start := time.Now()
	c.logger.Info("engine stage started",
		logging.String(logging.FieldStage, stage),
		logging.String("binary", c.settings.Binary),
	)

	stderr, err := c.exec.Run(runCtx, c.settings.Binary, args)
	if err != nil {
		message := strings.TrimSpace(stderr)
		if message == "" {
			message = err.Error()
		}
		c.logger.Warn("engine stage failed",
			logging.String(logging.FieldStage, stage),
			logging.Duration("stage_duration", time.Since(start)),
			logging.Error(err),
		)
		return &StageError{Stage: stage, Message: message, Err: err}
	}

	c.logger.Info("engine stage completed",
		logging.String(logging.FieldStage, stage),
		logging.Duration("stage_duration", time.Since(start)),
	)
	return nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}
