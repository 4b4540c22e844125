// Package overlay fuses defect annotations into a reconstructed mesh as
// colored spherical markers and writes the final export artifacts.
package overlay

import (
	"strings"

	"facet/internal/geom"
	"facet/internal/mesh"
	"facet/internal/session"
)

// markerColors maps defect classifications to marker colors. Lookup is
// case-insensitive and treats underscores as spaces.
var markerColors = map[string]geom.Color{
	"algae":       {R: 0, G: 255, B: 0},
	"major crack": {R: 255, G: 0, B: 0},
	"minor crack": {R: 255, G: 165, B: 0},
	"peeling":     {R: 128, G: 0, B: 128},
	"plain":       {R: 0, G: 0, B: 255},
	"spalling":    {R: 139, G: 69, B: 19},
	"stain":       {R: 255, G: 255, B: 0},
}

// ColorFor returns the marker color for a classification, falling back to
// neutral gray for labels the table does not know.
func ColorFor(classification string) geom.Color {
	key := strings.ToLower(strings.TrimSpace(classification))
	key = strings.ReplaceAll(key, "_", " ")
	if color, ok := markerColors[key]; ok {
		return color
	}
	return geom.Gray
}

// AddMarkers combines one sphere per annotation with the base mesh. The
// returned geometry contains exactly len(annotations) markers.
func AddMarkers(base *mesh.Mesh, annotations []session.Annotation, radius float64) *mesh.Mesh {
	combined := base
	for _, annotation := range annotations {
		marker := mesh.Sphere(annotation.Position, radius, ColorFor(annotation.Classification))
		combined = mesh.Concat(combined, marker)
	}
	return combined
}
