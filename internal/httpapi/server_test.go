package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"facet/internal/pointcloud"
	"facet/internal/recon"
	"facet/internal/services/colmap"
	"facet/internal/testsupport"
)

type stubEngine struct {
	workspace string
}

func (e *stubEngine) ImagesDir() string { return filepath.Join(e.workspace, "images") }

func (e *stubEngine) Stats() colmap.Stats {
	return colmap.Stats{NumImages: 2, NumCameras: 1, NumPointsSparse: 500}
}

func (e *stubEngine) FullReconstruction(_ context.Context, _ colmap.Preset) colmap.Result {
	artifact := filepath.Join(e.workspace, "fused.ply")
	if err := pointcloud.SavePLY(artifact, testsupport.CubeCloud(6, 7)); err != nil {
		return colmap.Result{Errors: []string{err.Error()}}
	}
	return colmap.Result{
		Success:        true,
		OutputArtifact: artifact,
		StepsCompleted: []string{"feature_extraction", "feature_matching", "sparse_reconstruction"},
	}
}

func stubEngineFactory(workspace string, _ *slog.Logger) (recon.Engine, error) {
	engine := &stubEngine{workspace: workspace}
	if err := os.MkdirAll(engine.ImagesDir(), 0o755); err != nil {
		return nil, err
	}
	return engine, nil
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()

	cfg := testsupport.NewConfig(t,
		testsupport.WithMinImages(2),
		testsupport.WithWorkers(1, 2))
	cfg.Processing.MeshMethod = "convex_hull"

	sessions := testsupport.MustOpenSessions(t, cfg)
	jobs, err := recon.OpenStore(cfg, nil)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { jobs.Close() })

	manager := recon.NewManager(cfg, sessions, jobs, stubEngineFactory, nil)
	manager.Start()
	t.Cleanup(manager.Stop)

	server := New(cfg, sessions, manager, nil)
	return server, server.http.Handler
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func createSession(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/session",
		map[string]string{"project_name": "loft", "room_type": "kitchen"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status %d: %s", rec.Code, rec.Body.String())
	}
	id, _ := body["session_id"].(string)
	if id == "" {
		t.Fatalf("no session_id in %v", body)
	}
	return id
}

func uploadImage(t *testing.T, handler http.Handler, sessionID, classification string) map[string]any {
	t.Helper()
	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/session/"+sessionID+"/image",
		map[string]any{
			"image":          base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")),
			"classification": classification,
			"confidence":     0.9,
			"transcript":     "crack near the window",
			"pose": map[string]any{
				"position": map[string]float64{"x": 1, "y": 2, "z": 3},
				"rotation": map[string]float64{"x": 0, "y": 0, "z": 0, "w": 1},
			},
		})
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", rec.Code, rec.Body.String())
	}
	return body
}

func TestHealth(t *testing.T) {
	_, handler := newTestServer(t)
	rec, body := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health %d %v", rec.Code, body)
	}
}

func TestSessionLifecycle(t *testing.T) {
	_, handler := newTestServer(t)

	id := createSession(t, handler)

	first := uploadImage(t, handler, id, "plain")
	if first["image_count"] != float64(1) || first["annotation_count"] != float64(0) {
		t.Fatalf("counts after benign upload: %v", first)
	}
	second := uploadImage(t, handler, id, "major_crack")
	if second["image_count"] != float64(2) || second["annotation_count"] != float64(1) {
		t.Fatalf("counts after defect upload: %v", second)
	}

	rec, body := doJSON(t, handler, http.MethodGet, "/api/v1/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	sessions, _ := body["sessions"].([]any)
	if len(sessions) != 1 {
		t.Fatalf("sessions %v", body)
	}
	summary := sessions[0].(map[string]any)
	if summary["project_name"] != "loft" || summary["image_count"] != float64(2) {
		t.Fatalf("summary %v", summary)
	}

	rec, _ = doJSON(t, handler, http.MethodDelete, "/api/v1/session/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}
	rec, _ = doJSON(t, handler, http.MethodPost, "/api/v1/session/"+id+"/image",
		map[string]string{"image": base64.StdEncoding.EncodeToString([]byte("x"))})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("upload to deleted session: %d", rec.Code)
	}
}

func TestCreateSessionRequiresProjectName(t *testing.T) {
	_, handler := newTestServer(t)
	rec, _ := doJSON(t, handler, http.MethodPost, "/api/v1/session", map[string]string{"room_type": "kitchen"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestAddImageRejectsBadBase64(t *testing.T) {
	_, handler := newTestServer(t)
	id := createSession(t, handler)
	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/session/"+id+"/image",
		map[string]string{"image": "not-base64!!!"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "base64") {
		t.Fatalf("error %v", body)
	}
}

func TestReconstructInsufficientImages(t *testing.T) {
	_, handler := newTestServer(t)
	id := createSession(t, handler)
	uploadImage(t, handler, id, "plain")

	rec, _ := doJSON(t, handler, http.MethodPost, "/api/v1/session/"+id+"/reconstruct", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReconstructionEndToEnd(t *testing.T) {
	_, handler := newTestServer(t)
	id := createSession(t, handler)
	uploadImage(t, handler, id, "plain")
	uploadImage(t, handler, id, "stain")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/session/"+id+"/reconstruct",
		map[string]string{"quality": "low"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("reconstruct status %d: %s", rec.Code, rec.Body.String())
	}
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatalf("no job_id in %v", body)
	}
	if body["quality"] != "low" {
		t.Fatalf("quality %v", body["quality"])
	}

	var status map[string]any
	deadline := time.Now().Add(30 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("job stuck at %v", status)
		}
		rec, status = doJSON(t, handler, http.MethodGet, "/api/v1/job/"+jobID+"/status", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status code %d", rec.Code)
		}
		if status["status"] == "completed" || status["status"] == "failed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status["status"] != "completed" {
		t.Fatalf("job did not complete: %v", status)
	}
	if status["progress"] != float64(100) {
		t.Fatalf("progress %v", status["progress"])
	}

	for _, format := range []string{"ply", "obj", "glb"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/job/"+jobID+"/artifact/"+format, nil)
		artifactRec := httptest.NewRecorder()
		handler.ServeHTTP(artifactRec, req)
		if artifactRec.Code != http.StatusOK {
			t.Fatalf("artifact %s status %d: %s", format, artifactRec.Code, artifactRec.Body.String())
		}
		disposition := artifactRec.Header().Get("Content-Disposition")
		want := fmt.Sprintf("model.%s", format)
		if !strings.Contains(disposition, want) {
			t.Fatalf("disposition %q missing %q", disposition, want)
		}
		if artifactRec.Body.Len() == 0 {
			t.Fatalf("artifact %s is empty", format)
		}
	}

	rec, _ = doJSON(t, handler, http.MethodGet, "/api/v1/job/"+jobID+"/artifact/stl", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported format status %d", rec.Code)
	}
}

func TestJobStatusUnknown(t *testing.T) {
	_, handler := newTestServer(t)
	rec, _ := doJSON(t, handler, http.MethodGet, "/api/v1/job/nope/status", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}
