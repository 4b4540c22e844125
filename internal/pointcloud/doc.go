// Package pointcloud implements the point-set half of post-processing: PLY
// input/output, voxel downsampling, and the two outlier-removal strategies.
//
// Downsampling keeps the first point encountered per voxel rather than the
// voxel centroid. That trades reconstruction density for simplicity: the kept
// points are real measured samples and the operation is idempotent, but cell
// interiors are represented less evenly than centroid averaging would give.
// Neighbor queries run against an in-memory k-d tree.
package pointcloud
