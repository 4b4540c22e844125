package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Capture contains limits applied to capture sessions.
type Capture struct {
	MaxImagesPerSession        int      `toml:"max_images_per_session"`
	MinImagesForReconstruction int      `toml:"min_images_for_reconstruction"`
	BenignClasses              []string `toml:"benign_classes"`
}

// Engine contains configuration for the external SfM/MVS engine.
type Engine struct {
	Binary       string `toml:"binary"`
	StageTimeout int    `toml:"stage_timeout"`
	UseGPU       bool   `toml:"use_gpu"`
	GPUIndex     string `toml:"gpu_index"`
}

// Processing contains configuration for point-cloud and mesh post-processing.
type Processing struct {
	VoxelSize           float64 `toml:"voxel_size"`
	OutlierMethod       string  `toml:"outlier_method"`
	OutlierNeighbors    int     `toml:"outlier_neighbors"`
	OutlierStdRatio     float64 `toml:"outlier_std_ratio"`
	OutlierRadius       float64 `toml:"outlier_radius"`
	OutlierMinNeighbors int     `toml:"outlier_min_neighbors"`
	MeshMethod          string  `toml:"mesh_method"`
	MeshAlpha           float64 `toml:"mesh_alpha"`
	SimplifyFactor      float64 `toml:"simplify_factor"`
	SmoothIterations    int     `toml:"smooth_iterations"`
	MarkerRadius        float64 `toml:"marker_radius"`
}

// Workflow contains configuration for job workers and admission control.
type Workflow struct {
	JobWorkers              int `toml:"job_workers"`
	JobQueueSize            int `toml:"job_queue_size"`
	EstimateSecondsPerImage int `toml:"estimate_seconds_per_image"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config aggregates every configuration section.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Capture    Capture    `toml:"capture"`
	Engine     Engine     `toml:"engine"`
	Processing Processing `toml:"processing"`
	Workflow   Workflow   `toml:"workflow"`
	Logging    Logging    `toml:"logging"`
}

// SampleConfig returns the embedded sample configuration file contents.
func SampleConfig() string {
	return sampleConfig
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/facet/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("facet.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.SessionsDir(), c.OutputDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SessionsDir returns the directory holding per-session image storage.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.Paths.DataDir, "sessions")
}

// OutputDir returns the directory holding per-job output artifacts.
func (c *Config) OutputDir() string {
	return filepath.Join(c.Paths.DataDir, "output")
}

// LogDirectory reports the configured log directory.
func (c *Config) LogDirectory() string { return c.Paths.LogDir }

// LogLevel reports the configured log level.
func (c *Config) LogLevel() string { return c.Logging.Level }

// LogFormat reports the configured log format.
func (c *Config) LogFormat() string { return c.Logging.Format }

// IsBenignClass reports whether a classification does not warrant an annotation.
func (c *Config) IsBenignClass(classification string) bool {
	normalized := strings.ToLower(strings.TrimSpace(classification))
	if normalized == "" {
		return true
	}
	for _, benign := range c.Capture.BenignClasses {
		if normalized == strings.ToLower(strings.TrimSpace(benign)) {
			return true
		}
	}
	return false
}

// Validate checks configuration invariants that normalize cannot repair.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must not be empty")
	}
	if c.Capture.MaxImagesPerSession <= 0 {
		return errors.New("capture.max_images_per_session must be positive")
	}
	if c.Capture.MinImagesForReconstruction <= 0 {
		return errors.New("capture.min_images_for_reconstruction must be positive")
	}
	if c.Capture.MinImagesForReconstruction > c.Capture.MaxImagesPerSession {
		return errors.New("capture.min_images_for_reconstruction exceeds max_images_per_session")
	}
	if strings.TrimSpace(c.Engine.Binary) == "" {
		return errors.New("engine.binary must not be empty")
	}
	if c.Processing.VoxelSize < 0 {
		return errors.New("processing.voxel_size must not be negative")
	}
	if c.Processing.SimplifyFactor < 0 || c.Processing.SimplifyFactor > 1 {
		return errors.New("processing.simplify_factor must be within [0, 1]")
	}
	if c.Processing.SmoothIterations < 0 {
		return errors.New("processing.smooth_iterations must not be negative")
	}
	switch c.Processing.OutlierMethod {
	case "", "none", "statistical", "radius":
	default:
		return fmt.Errorf("processing.outlier_method: unsupported value %q", c.Processing.OutlierMethod)
	}
	switch c.Processing.MeshMethod {
	case "", "none", "alpha_shape", "convex_hull":
	default:
		return fmt.Errorf("processing.mesh_method: unsupported value %q", c.Processing.MeshMethod)
	}
	if c.Workflow.JobWorkers <= 0 {
		return errors.New("workflow.job_workers must be positive")
	}
	if c.Workflow.JobQueueSize <= 0 {
		return errors.New("workflow.job_queue_size must be positive")
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Engine.Binary = strings.TrimSpace(c.Engine.Binary)
	if c.Engine.Binary == "" {
		c.Engine.Binary = defaultEngineBinary
	}
	if c.Engine.StageTimeout <= 0 {
		c.Engine.StageTimeout = defaultEngineStageTimeout
	}
	if len(c.Capture.BenignClasses) == 0 {
		c.Capture.BenignClasses = defaultBenignClasses()
	}
	c.Processing.OutlierMethod = strings.ToLower(strings.TrimSpace(c.Processing.OutlierMethod))
	c.Processing.MeshMethod = strings.ToLower(strings.TrimSpace(c.Processing.MeshMethod))
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// ExpandPath resolves a user-supplied path, expanding a leading tilde.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Clean(trimmed), nil
}
