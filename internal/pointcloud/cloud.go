package pointcloud

import "facet/internal/geom"

// Cloud is a point set with optional per-point color. Colors is either nil or
// the same length as Points.
type Cloud struct {
	Points []geom.Vec3
	Colors []geom.Color
}

// Len returns the number of points.
func (c *Cloud) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Points)
}

// HasColors reports whether per-point colors are present.
func (c *Cloud) HasColors() bool {
	return c != nil && len(c.Colors) == len(c.Points) && len(c.Colors) > 0
}

// Bounds returns the axis-aligned bounding box of the point set.
func (c *Cloud) Bounds() geom.BBox {
	return geom.BoundsOf(c.Points)
}

// gather returns a new cloud containing the points at the kept indices, in order.
func (c *Cloud) gather(keep []int) *Cloud {
	out := &Cloud{Points: make([]geom.Vec3, 0, len(keep))}
	if c.HasColors() {
		out.Colors = make([]geom.Color, 0, len(keep))
	}
	for _, idx := range keep {
		out.Points = append(out.Points, c.Points[idx])
		if c.HasColors() {
			out.Colors = append(out.Colors, c.Colors[idx])
		}
	}
	return out
}
