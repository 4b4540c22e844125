package colmap

import (
	"context"
	"os"
)

// Result reports the outcome of a full reconstruction run.
type Result struct {
	Success        bool
	StepsCompleted []string
	Errors         []string
	OutputArtifact string
}

// FullReconstruction drives every stage in order.
//
// Feature extraction, matching, sparse reconstruction, and undistortion are
// hard dependencies: their failure aborts the run. Stereo matching and fusion
// are recoverable: their failure is recorded, and the run still succeeds on
// the exported sparse model. The dense fused cloud is preferred as the output
// artifact whenever it exists.
func (c *Client) FullReconstruction(ctx context.Context, preset Preset) Result {
	result := Result{}

	sparseStages := []struct {
		name string
		run  func(context.Context) error
	}{
		{StageFeatureExtraction, func(ctx context.Context) error { return c.FeatureExtraction(ctx, preset) }},
		{StageFeatureMatching, c.FeatureMatching},
		{StageSparseReconstruction, c.SparseReconstruction},
		{StageImageUndistortion, c.ImageUndistortion},
	}
	for _, stage := range sparseStages {
		if err := stage.run(ctx); err != nil {
			result.Errors = append(result.Errors, err.Error())
			return result
		}
		result.StepsCompleted = append(result.StepsCompleted, stage.name)
	}

	if err := c.StereoMatching(ctx, preset); err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.StepsCompleted = append(result.StepsCompleted, StageStereoMatching)
		if err := c.StereoFusion(ctx); err != nil {
			result.Errors = append(result.Errors, err.Error())
		} else {
			result.StepsCompleted = append(result.StepsCompleted, StageStereoFusion)
		}
	}

	if dense := c.densePointCloud(); fileExists(dense) {
		result.OutputArtifact = dense
		result.Success = true
		return result
	}

	exported, err := c.ExportSparse(ctx, "PLY")
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.StepsCompleted = append(result.StepsCompleted, StageModelExport)
	result.OutputArtifact = exported
	result.Success = true
	return result
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
