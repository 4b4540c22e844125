// Package processing turns the geometry engine's raw artifact into a clean
// surface mesh: voxel downsampling, outlier removal, surface reconstruction,
// simplification, and smoothing, each gated by configuration.
package processing

import (
	"errors"
	"fmt"
	"log/slog"

	"facet/internal/config"
	"facet/internal/logging"
	"facet/internal/mesh"
	"facet/internal/pointcloud"
)

// ErrModelLoad reports an artifact that could not be loaded as either a
// point cloud or a mesh.
var ErrModelLoad = errors.New("artifact is neither a usable point cloud nor a mesh")

// Step names recorded in job metadata.
const (
	StepDownsample     = "downsample"
	StepOutlierRemoval = "outlier_removal"
	StepMeshing        = "meshing"
	StepSimplification = "simplification"
	StepSmoothing      = "smoothing"
)

const smoothFactor = 0.5

// Result captures the processed mesh plus the step log for job metadata.
type Result struct {
	Mesh           *mesh.Mesh
	InputPoints    int
	ReducedPoints  int
	StepsCompleted []string
	Errors         []string
	Info           mesh.Info
}

// Processor applies the configured post-processing pipeline.
type Processor struct {
	cfg    config.Processing
	logger *slog.Logger
}

// New returns a Processor using the given processing configuration.
func New(cfg config.Processing, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{cfg: cfg, logger: logger}
}

// Run loads the artifact at path and applies every configured step. Cloud
// steps that fail are recorded and later independent steps still run, but an
// artifact that cannot produce a mesh at all is a hard failure.
func (p *Processor) Run(path string) (*Result, error) {
	result := &Result{}

	cloud, cloudErr := pointcloud.LoadPLY(path)
	if cloudErr == nil && cloud.Len() > 0 {
		surface, err := p.processCloud(cloud, result)
		if err != nil {
			return nil, err
		}
		result.Mesh = surface
	} else {
		loaded, meshErr := mesh.LoadPLY(path)
		if meshErr != nil {
			if cloudErr == nil {
				cloudErr = errors.New("empty point set")
			}
			return nil, fmt.Errorf("%w: %s", ErrModelLoad, cloudErr)
		}
		result.InputPoints = len(loaded.Vertices)
		result.Mesh = loaded
	}

	result.Mesh = p.refineMesh(result.Mesh, result)
	result.Info = result.Mesh.Describe()
	return result, nil
}

func (p *Processor) processCloud(cloud *pointcloud.Cloud, result *Result) (*mesh.Mesh, error) {
	result.InputPoints = cloud.Len()

	if p.cfg.VoxelSize > 0 {
		cloud = cloud.Downsample(p.cfg.VoxelSize)
		p.step(result, StepDownsample, logging.Int("points", cloud.Len()))
	}

	switch p.cfg.OutlierMethod {
	case "statistical":
		cloud = cloud.RemoveStatisticalOutliers(p.cfg.OutlierNeighbors, p.cfg.OutlierStdRatio)
		p.step(result, StepOutlierRemoval, logging.Int("points", cloud.Len()))
	case "radius":
		cloud = cloud.RemoveRadiusOutliers(p.cfg.OutlierRadius, p.cfg.OutlierMinNeighbors)
		p.step(result, StepOutlierRemoval, logging.Int("points", cloud.Len()))
	case "", "none":
	default:
		p.failStep(result, StepOutlierRemoval, fmt.Errorf("unknown outlier method %q", p.cfg.OutlierMethod))
	}
	result.ReducedPoints = cloud.Len()

	surface, err := mesh.FromCloud(cloud, p.cfg.MeshMethod, p.cfg.MeshAlpha)
	if err != nil {
		p.failStep(result, StepMeshing, err)
		return nil, fmt.Errorf("surface reconstruction: %w", err)
	}
	p.step(result, StepMeshing, logging.Int("faces", len(surface.Faces)))
	return surface, nil
}

func (p *Processor) refineMesh(surface *mesh.Mesh, result *Result) *mesh.Mesh {
	if p.cfg.SimplifyFactor > 0 && p.cfg.SimplifyFactor < 1 {
		before := len(surface.Faces)
		surface = mesh.Simplify(surface, p.cfg.SimplifyFactor)
		p.step(result, StepSimplification,
			logging.Int("faces_before", before), logging.Int("faces_after", len(surface.Faces)))
	}
	if p.cfg.SmoothIterations > 0 {
		surface = mesh.Smooth(surface, p.cfg.SmoothIterations, smoothFactor)
		p.step(result, StepSmoothing, logging.Int("iterations", p.cfg.SmoothIterations))
	}
	return surface
}

func (p *Processor) step(result *Result, name string, attrs ...logging.Attr) {
	result.StepsCompleted = append(result.StepsCompleted, name)
	args := make([]any, 0, len(attrs)+1)
	args = append(args, logging.String("step", name))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	p.logger.Info("processing step complete", args...)
}

func (p *Processor) failStep(result *Result, name string, err error) {
	result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
	p.logger.Warn("processing step failed", logging.String("step", name), logging.Error(err))
}
