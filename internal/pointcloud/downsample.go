package pointcloud

import "math"

type voxelKey struct {
	x, y, z int64
}

// Downsample reduces density by keeping exactly one point per voxel: the
// first point encountered in input order. This is position-deduping, not
// centroid averaging; see the package comment for the trade-off. The result
// never has more points than the input, and downsampling at a fixed voxel
// size is idempotent. A non-positive voxel size returns the input unchanged.
func (c *Cloud) Downsample(voxelSize float64) *Cloud {
	if c.Len() == 0 || voxelSize <= 0 {
		return c
	}

	seen := make(map[voxelKey]struct{}, c.Len())
	keep := make([]int, 0, c.Len())
	for i, p := range c.Points {
		key := voxelKey{
			x: int64(math.Floor(p.X / voxelSize)),
			y: int64(math.Floor(p.Y / voxelSize)),
			z: int64(math.Floor(p.Z / voxelSize)),
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}
	return c.gather(keep)
}
