package pointcloud

import "math"

// RemoveStatisticalOutliers discards points whose mean distance to their k
// nearest neighbors exceeds mean + stdRatio*std of that statistic across the
// cloud. The threshold is monotonic: a higher stdRatio retains a superset of
// the points retained at a lower one. Clouds with at most k points (and empty
// clouds) are returned unchanged.
func (c *Cloud) RemoveStatisticalOutliers(k int, stdRatio float64) *Cloud {
	if c.Len() == 0 || k <= 0 || c.Len() <= k {
		return c
	}

	tree := NewKDTree(c.Points)
	meanDists := make([]float64, c.Len())
	for i, p := range c.Points {
		// k+1 because the query point is its own nearest neighbor.
		neighbors := tree.KNN(p, k+1)
		var sum float64
		var counted int
		for _, idx := range neighbors {
			if idx == i {
				continue
			}
			sum += p.Dist(c.Points[idx])
			counted++
		}
		if counted > 0 {
			meanDists[i] = sum / float64(counted)
		}
	}

	var mean float64
	for _, d := range meanDists {
		mean += d
	}
	mean /= float64(len(meanDists))

	var variance float64
	for _, d := range meanDists {
		diff := d - mean
		variance += diff * diff
	}
	std := math.Sqrt(variance / float64(len(meanDists)))

	threshold := mean + stdRatio*std
	keep := make([]int, 0, c.Len())
	for i, d := range meanDists {
		if d < threshold {
			keep = append(keep, i)
		}
	}
	return c.gather(keep)
}

// RemoveRadiusOutliers discards points with fewer than minNeighbors other
// points within radius. Empty clouds are returned unchanged.
func (c *Cloud) RemoveRadiusOutliers(radius float64, minNeighbors int) *Cloud {
	if c.Len() == 0 || minNeighbors <= 0 || radius <= 0 {
		return c
	}

	tree := NewKDTree(c.Points)
	keep := make([]int, 0, c.Len())
	for i, p := range c.Points {
		neighbors := 0
		for _, idx := range tree.Radius(p, radius) {
			if idx != i {
				neighbors++
			}
		}
		if neighbors >= minNeighbors {
			keep = append(keep, i)
		}
	}
	return c.gather(keep)
}
