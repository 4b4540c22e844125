package pointcloud

import (
	"facet/internal/ply"
)

// LoadPLY reads a point cloud from a PLY file. Any face data in the file is
// ignored; only vertex positions and colors are kept.
func LoadPLY(path string) (*Cloud, error) {
	data, err := ply.Read(path)
	if err != nil {
		return nil, err
	}
	return &Cloud{Points: data.Points, Colors: data.Colors}, nil
}

// SavePLY writes the cloud as binary PLY.
func SavePLY(path string, cloud *Cloud) error {
	return ply.Write(path, &ply.Data{Points: cloud.Points, Colors: cloud.Colors})
}
