package overlay

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"

	"facet/internal/geom"
	"facet/internal/mesh"
)

// writeGLB emits a minimal glTF 2.0 binary: one buffer, one mesh, one node.
// Positions and colors are float VEC3 accessors, indices unsigned int.
func writeGLB(path string, m *mesh.Mesh) error {
	if len(m.Vertices) == 0 || len(m.Faces) == 0 {
		return errors.New("empty geometry")
	}

	var bin bytes.Buffer
	writeFloat := func(v float64) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v)))
		bin.Write(b[:])
	}

	positionsOffset := 0
	for _, v := range m.Vertices {
		writeFloat(v.X)
		writeFloat(v.Y)
		writeFloat(v.Z)
	}
	colorsOffset := bin.Len()
	hasColors := m.HasColors()
	if hasColors {
		for _, c := range m.Colors {
			writeFloat(float64(c.R) / 255)
			writeFloat(float64(c.G) / 255)
			writeFloat(float64(c.B) / 255)
		}
	}
	indicesOffset := bin.Len()
	for _, face := range m.Faces {
		for _, index := range face {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(index))
			bin.Write(b[:])
		}
	}
	for bin.Len()%4 != 0 {
		bin.WriteByte(0)
	}

	bounds := m.Bounds()
	vertexCount := len(m.Vertices)
	indexCount := len(m.Faces) * 3

	bufferViews := []map[string]any{
		{"buffer": 0, "byteOffset": positionsOffset, "byteLength": vertexCount * 12, "target": 34962},
	}
	accessors := []map[string]any{
		{
			"bufferView": 0, "componentType": 5126, "count": vertexCount, "type": "VEC3",
			"min": vecSlice(bounds.Min), "max": vecSlice(bounds.Max),
		},
	}
	attributes := map[string]any{"POSITION": 0}
	if hasColors {
		bufferViews = append(bufferViews, map[string]any{
			"buffer": 0, "byteOffset": colorsOffset, "byteLength": vertexCount * 12, "target": 34962,
		})
		accessors = append(accessors, map[string]any{
			"bufferView": 1, "componentType": 5126, "count": vertexCount, "type": "VEC3",
		})
		attributes["COLOR_0"] = len(accessors) - 1
	}
	bufferViews = append(bufferViews, map[string]any{
		"buffer": 0, "byteOffset": indicesOffset, "byteLength": indexCount * 4, "target": 34963,
	})
	accessors = append(accessors, map[string]any{
		"bufferView": len(bufferViews) - 1, "componentType": 5125, "count": indexCount, "type": "SCALAR",
	})
	indicesAccessor := len(accessors) - 1

	document := map[string]any{
		"asset":       map[string]any{"version": "2.0", "generator": "facet"},
		"buffers":     []map[string]any{{"byteLength": bin.Len()}},
		"bufferViews": bufferViews,
		"accessors":   accessors,
		"meshes": []map[string]any{{
			"primitives": []map[string]any{{
				"attributes": attributes,
				"indices":    indicesAccessor,
				"mode":       4,
			}},
		}},
		"nodes":  []map[string]any{{"mesh": 0}},
		"scenes": []map[string]any{{"nodes": []int{0}}},
		"scene":  0,
	}
	jsonChunk, err := json.Marshal(document)
	if err != nil {
		return err
	}
	for len(jsonChunk)%4 != 0 {
		jsonChunk = append(jsonChunk, ' ')
	}

	const (
		glbMagic     = 0x46546C67
		jsonChunkTag = 0x4E4F534A
		binChunkTag  = 0x004E4942
	)
	total := 12 + 8 + len(jsonChunk) + 8 + bin.Len()

	var out bytes.Buffer
	writeUint32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		out.Write(b[:])
	}
	writeUint32(glbMagic)
	writeUint32(2)
	writeUint32(uint32(total))
	writeUint32(uint32(len(jsonChunk)))
	writeUint32(jsonChunkTag)
	out.Write(jsonChunk)
	writeUint32(uint32(bin.Len()))
	writeUint32(binChunkTag)
	out.Write(bin.Bytes())

	return os.WriteFile(path, out.Bytes(), 0o644)
}

func vecSlice(v geom.Vec3) []float32 {
	return []float32{float32(v.X), float32(v.Y), float32(v.Z)}
}
