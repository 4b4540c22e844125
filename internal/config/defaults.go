package config

const (
	defaultDataDir                 = "~/.local/share/facet/data"
	defaultLogDir                  = "~/.local/share/facet/logs"
	defaultAPIBind                 = "127.0.0.1:7391"
	defaultMaxImagesPerSession     = 200
	defaultMinImages               = 10
	defaultEngineBinary            = "colmap"
	defaultEngineStageTimeout      = 3600
	defaultVoxelSize               = 0.02
	defaultOutlierMethod           = "statistical"
	defaultOutlierNeighbors        = 20
	defaultOutlierStdRatio         = 2.0
	defaultOutlierRadius           = 0.05
	defaultOutlierMinNeighbors     = 16
	defaultMeshMethod              = "alpha_shape"
	defaultMeshAlpha               = 0.1
	defaultSimplifyFactor          = 0.95
	defaultSmoothIterations        = 5
	defaultMarkerRadius            = 0.05
	defaultJobWorkers              = 1
	defaultJobQueueSize            = 4
	defaultEstimateSecondsPerImage = 30
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

func defaultBenignClasses() []string {
	return []string{"plain", "normal", "unknown"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Capture: Capture{
			MaxImagesPerSession:        defaultMaxImagesPerSession,
			MinImagesForReconstruction: defaultMinImages,
			BenignClasses:              defaultBenignClasses(),
		},
		Engine: Engine{
			Binary:       defaultEngineBinary,
			StageTimeout: defaultEngineStageTimeout,
			UseGPU:       true,
			GPUIndex:     "0",
		},
		Processing: Processing{
			VoxelSize:           defaultVoxelSize,
			OutlierMethod:       defaultOutlierMethod,
			OutlierNeighbors:    defaultOutlierNeighbors,
			OutlierStdRatio:     defaultOutlierStdRatio,
			OutlierRadius:       defaultOutlierRadius,
			OutlierMinNeighbors: defaultOutlierMinNeighbors,
			MeshMethod:          defaultMeshMethod,
			MeshAlpha:           defaultMeshAlpha,
			SimplifyFactor:      defaultSimplifyFactor,
			SmoothIterations:    defaultSmoothIterations,
			MarkerRadius:        defaultMarkerRadius,
		},
		Workflow: Workflow{
			JobWorkers:              defaultJobWorkers,
			JobQueueSize:            defaultJobQueueSize,
			EstimateSecondsPerImage: defaultEstimateSecondsPerImage,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
