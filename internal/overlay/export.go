package overlay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"facet/internal/mesh"
	"facet/internal/services/colmap"
)

// ExportError reports a failure writing one output format. Other formats may
// still have succeeded; callers inspect the returned outputs map alongside
// the error list.
type ExportError struct {
	Format string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Format, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// Metadata is the metadata.json document written next to the model files.
type Metadata struct {
	ReconstructionID string       `json:"reconstruction_id"`
	SessionID        string       `json:"session_id"`
	ProjectName      string       `json:"project_name"`
	ImageCount       int          `json:"image_count"`
	AnnotationCount  int          `json:"annotation_count"`
	Model            mesh.Info    `json:"model"`
	Engine           colmap.Stats `json:"engine"`
	StepsCompleted   []string     `json:"steps_completed"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Export writes the combined geometry as model.ply, model.obj, and model.glb
// plus metadata.json under dir. Every format is attempted; failures come back
// as ExportErrors and outputs holds the paths that were written.
func Export(m *mesh.Mesh, dir string, meta Metadata) (map[string]string, []error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, []error{fmt.Errorf("create output dir: %w", err)}
	}

	outputs := make(map[string]string, 4)
	var failures []error
	record := func(format, path string, err error) {
		if err != nil {
			failures = append(failures, &ExportError{Format: format, Err: err})
			return
		}
		outputs[format] = path
	}

	plyPath := filepath.Join(dir, "model.ply")
	record("ply", plyPath, mesh.SavePLY(plyPath, m))

	objPath := filepath.Join(dir, "model.obj")
	record("obj", objPath, writeOBJ(objPath, m))

	glbPath := filepath.Join(dir, "model.glb")
	record("glb", glbPath, writeGLB(glbPath, m))

	metaPath := filepath.Join(dir, "metadata.json")
	record("metadata", metaPath, writeMetadata(metaPath, meta))

	return outputs, failures
}

func writeMetadata(path string, meta Metadata) error {
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o644)
}
