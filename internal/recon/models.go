package recon

import "time"

// Status is a job lifecycle state. Transitions are forward-only:
// queued → running → completed|failed.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// rank orders statuses so that updates can never move a job backwards.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusRunning:
		return 1
	}
	return 2
}

// Stage names reported while a job runs.
const (
	StageGeometry   = "geometry"
	StageProcessing = "processing"
	StageOverlay    = "overlay"
	StageExport     = "export"
)

// Job is a pollable reconstruction job record.
type Job struct {
	ID              string
	SessionID       string
	Quality         string
	Status          Status
	Progress        int
	Stage           string
	Message         string
	Errors          []string
	Outputs         map[string]string
	EstimateMinutes float64
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// EstimateMinutes predicts the wall-clock duration of a reconstruction from
// the image count, scaled by the quality preset's cost multiplier.
func EstimateMinutes(imageCount, secondsPerImage int, multiplier float64) float64 {
	return float64(imageCount*secondsPerImage) * multiplier / 60
}
