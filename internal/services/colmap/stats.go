package colmap

import (
	"os"
	"path/filepath"
	"strings"
)

// Approximate on-disk record sizes for COLMAP binary model files. Sparse
// counts derived from these are estimates, not parsed structures.
const (
	approxBytesPerPoint  = 43
	approxBytesPerCamera = 80
)

// Stats reports best-effort counts derived from workspace contents. Sparse
// point and camera counts are approximated from binary file sizes and should
// be presented as estimates.
type Stats struct {
	NumImages       int  `json:"num_images"`
	NumCameras      int  `json:"num_cameras"`
	NumPointsSparse int  `json:"num_points_sparse"`
	DenseAvailable  bool `json:"num_points_dense_available"`
}

// Stats inspects the workspace and summarizes reconstruction output.
func (c *Client) Stats() Stats {
	stats := Stats{}

	if entries, err := os.ReadDir(c.ImagesDir()); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(entry.Name())) {
			case ".jpg", ".jpeg", ".png":
				stats.NumImages++
			}
		}
	}

	if info, err := os.Stat(filepath.Join(c.sparseModelDir(), "points3D.bin")); err == nil {
		stats.NumPointsSparse = int(info.Size() / approxBytesPerPoint)
	}
	if info, err := os.Stat(filepath.Join(c.sparseModelDir(), "cameras.bin")); err == nil {
		stats.NumCameras = int(info.Size() / approxBytesPerCamera)
	}

	stats.DenseAvailable = fileExists(c.densePointCloud())
	return stats
}
