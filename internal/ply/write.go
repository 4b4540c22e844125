package ply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"facet/internal/geom"
)

// Write encodes data as binary_little_endian PLY at path. Vertices without an
// explicit color are written gray so downstream viewers always get a colored
// model. A face element is emitted only when faces are present.
func Write(path string, data *Data) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create ply: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	fmt.Fprintln(writer, "ply")
	fmt.Fprintln(writer, "format binary_little_endian 1.0")
	fmt.Fprintf(writer, "element vertex %d\n", len(data.Points))
	fmt.Fprintln(writer, "property float x")
	fmt.Fprintln(writer, "property float y")
	fmt.Fprintln(writer, "property float z")
	fmt.Fprintln(writer, "property uchar red")
	fmt.Fprintln(writer, "property uchar green")
	fmt.Fprintln(writer, "property uchar blue")
	if len(data.Faces) > 0 {
		fmt.Fprintf(writer, "element face %d\n", len(data.Faces))
		fmt.Fprintln(writer, "property list uchar int vertex_indices")
	}
	fmt.Fprintln(writer, "end_header")

	scratch := make([]byte, 4)
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint32(scratch, math.Float32bits(float32(v)))
		writer.Write(scratch)
	}
	for i, point := range data.Points {
		writeFloat(point.X)
		writeFloat(point.Y)
		writeFloat(point.Z)
		color := geom.Gray
		if i < len(data.Colors) {
			color = data.Colors[i]
		}
		writer.WriteByte(color.R)
		writer.WriteByte(color.G)
		writer.WriteByte(color.B)
	}
	for _, face := range data.Faces {
		writer.WriteByte(3)
		for _, index := range face {
			binary.LittleEndian.PutUint32(scratch, uint32(index))
			writer.Write(scratch)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("write ply: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close ply: %w", err)
	}
	return nil
}
