// Package session persists capture sessions in SQLite and owns their backing
// image storage on disk.
//
// The Store manages the sessions, images, and annotations tables plus the
// per-session images/ directory that the geometry engine later consumes.
// AddImage serializes uploads per session so sequential filenames never
// collide, and derives a defect annotation whenever an image's classification
// is outside the configured benign set. Snapshot produces the immutable view
// a reconstruction job pins at start time.
//
// Treat this package as the single source of truth for session semantics;
// schema changes bump the version in schema.go.
package session
