package testsupport

import (
	"context"
	"testing"

	"facet/internal/config"
	"facet/internal/geom"
	"facet/internal/logging"
	"facet/internal/session"
)

// MustOpenSessions opens a session.Store for tests and registers cleanup.
func MustOpenSessions(t testing.TB, cfg *config.Config) *session.Store {
	t.Helper()

	store, err := session.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSession creates a session for tests using the provided store.
func NewSession(t testing.TB, store *session.Store, projectName string) *session.Session {
	t.Helper()

	created, err := store.Create(context.Background(), projectName, "bathroom")
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return created
}

// AddImage stores a small synthetic image with the given classification and
// a pose derived from the current image count.
func AddImage(t testing.TB, store *session.Store, sessionID, classification string) {
	t.Helper()

	pose := geom.Pose{
		Position: geom.Vec3{X: 1, Y: 2, Z: 3},
		Rotation: geom.Identity(),
	}
	_, _, err := store.AddImage(context.Background(), sessionID,
		[]byte("jpegdata"), pose, "", classification, 0.9)
	if err != nil {
		t.Fatalf("store.AddImage: %v", err)
	}
}
