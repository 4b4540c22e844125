package colmap

import "strings"

// Preset maps a quality name to concrete engine parameters. A preset is
// resolved once at job start and frozen for that job's lifetime.
type Preset struct {
	Name         string
	MaxFeatures  int
	MaxImageSize int
	WindowRadius int
}

var presets = map[string]Preset{
	"high":   {Name: "high", MaxFeatures: 16384, MaxImageSize: 3200, WindowRadius: 7},
	"medium": {Name: "medium", MaxFeatures: 8192, MaxImageSize: 2000, WindowRadius: 5},
	"low":    {Name: "low", MaxFeatures: 4096, MaxImageSize: 1600, WindowRadius: 3},
}

// ResolvePreset maps a quality name to its preset. Unrecognized values fall
// back to medium.
func ResolvePreset(quality string) Preset {
	if preset, ok := presets[strings.ToLower(strings.TrimSpace(quality))]; ok {
		return preset
	}
	return presets["medium"]
}

// EstimateMultiplier scales reconstruction time estimates by preset cost.
func (p Preset) EstimateMultiplier() float64 {
	switch p.Name {
	case "high":
		return 2.0
	case "low":
		return 0.5
	default:
		return 1.0
	}
}
