// Package colmap drives an external COLMAP installation through the staged
// SfM/MVS pipeline: feature extraction, exhaustive matching, incremental
// mapping, undistortion, patch-match stereo, and stereo fusion.
//
// The Client owns a per-session workspace (images/, database.db, sparse/,
// dense/) and invokes each stage as an independent subprocess via the
// Executor interface, which tests replace with fakes. Sparse-side stage
// failures abort the pipeline; dense-side failures are recorded and the
// exported sparse model is used as the fallback artifact.
package colmap
