package session

import (
	"strings"
	"time"

	"facet/internal/geom"
)

// Status represents the lifecycle of a capture session.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatusActive, StatusClosed:
		return normalized, true
	default:
		return "", false
	}
}

// Session is a capture session row. Images and Annotations are loaded only by
// Get and Snapshot; listing queries return counts instead.
type Session struct {
	ID          string
	ProjectName string
	RoomType    string
	StorageDir  string
	Status      Status
	CreatedAt   time.Time

	Images      []ImageRecord
	Annotations []Annotation
}

// ImagesDir returns the directory holding the session's uploaded photographs.
func (s *Session) ImagesDir() string {
	return imagesDir(s.StorageDir)
}

// ImageRecord describes one uploaded photograph. Immutable once stored.
type ImageRecord struct {
	Index          int
	Filename       string
	Path           string
	Pose           geom.Pose
	Transcript     string
	Classification string
	Confidence     float64
	CapturedAt     time.Time
}

// Annotation marks a defect observation in space. Created when an uploaded
// image's classification is outside the benign set; never mutated afterwards.
type Annotation struct {
	Position       geom.Vec3
	Classification string
	Transcript     string
	ImageIndex     int
}

// Summary is the listing row returned by List.
type Summary struct {
	ID              string
	ProjectName     string
	RoomType        string
	ImageCount      int
	AnnotationCount int
	CreatedAt       time.Time
	Status          Status
}

// Snapshot is the immutable per-job view of a session taken at job start.
// Uploads that land after the snapshot do not affect it.
type Snapshot struct {
	ID          string
	ProjectName string
	RoomType    string
	ImagesDir   string
	Images      []ImageRecord
	Annotations []Annotation
}
