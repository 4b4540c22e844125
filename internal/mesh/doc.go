// Package mesh builds triangle meshes from point clouds and provides the
// post-processing operations applied before export: quadric simplification,
// Laplacian smoothing, and primitive generation for annotation markers.
package mesh
