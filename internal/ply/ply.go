// Package ply reads and writes the PLY interchange format used between the
// geometry engine and post-processing.
//
// The reader accepts ascii and binary_little_endian files and extracts x/y/z
// vertex positions, optional 8-bit red/green/blue channels, and triangular
// faces when a face element is present. Unknown vertex properties (normals,
// alpha, confidence) are skipped. The writer always emits
// binary_little_endian with colored vertices.
package ply

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"facet/internal/geom"
)

// Data is the decoded content of a PLY file.
type Data struct {
	Points []geom.Vec3
	Colors []geom.Color
	Faces  [][3]int
}

// ErrUnsupported reports a PLY layout the codec cannot decode.
var ErrUnsupported = errors.New("unsupported ply layout")

type property struct {
	name     string
	typ      string
	isList   bool
	countTyp string
	elemTyp  string
}

type element struct {
	name  string
	count int
	props []property
}

var scalarSizes = map[string]int{
	"char": 1, "int8": 1, "uchar": 1, "uint8": 1,
	"short": 2, "int16": 2, "ushort": 2, "uint16": 2,
	"int": 4, "int32": 4, "uint": 4, "uint32": 4,
	"float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

// Read decodes the file at path.
func Read(path string) (*Data, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ply: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	format, elements, err := readHeader(reader)
	if err != nil {
		return nil, err
	}

	data := &Data{}
	for _, elem := range elements {
		switch elem.name {
		case "vertex":
			if err := readVertices(reader, format, elem, data); err != nil {
				return nil, err
			}
		case "face":
			if err := readFaces(reader, format, elem, data); err != nil {
				return nil, err
			}
		default:
			if err := skipElement(reader, format, elem); err != nil {
				return nil, err
			}
		}
	}
	return data, nil
}

func readHeader(reader *bufio.Reader) (format string, elements []element, err error) {
	magic, err := readHeaderLine(reader)
	if err != nil {
		return "", nil, err
	}
	if magic != "ply" {
		return "", nil, fmt.Errorf("%w: missing ply magic", ErrUnsupported)
	}

	for {
		line, err := readHeaderLine(reader)
		if err != nil {
			return "", nil, err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "comment", "obj_info":
		case "format":
			if len(fields) < 2 {
				return "", nil, fmt.Errorf("%w: malformed format line", ErrUnsupported)
			}
			format = fields[1]
			if format != "ascii" && format != "binary_little_endian" {
				return "", nil, fmt.Errorf("%w: format %q", ErrUnsupported, format)
			}
		case "element":
			if len(fields) != 3 {
				return "", nil, fmt.Errorf("%w: malformed element line", ErrUnsupported)
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil || count < 0 {
				return "", nil, fmt.Errorf("%w: element count %q", ErrUnsupported, fields[2])
			}
			elements = append(elements, element{name: fields[1], count: count})
		case "property":
			if len(elements) == 0 {
				return "", nil, fmt.Errorf("%w: property before element", ErrUnsupported)
			}
			last := &elements[len(elements)-1]
			switch {
			case len(fields) == 3:
				last.props = append(last.props, property{name: fields[2], typ: fields[1]})
			case len(fields) == 5 && fields[1] == "list":
				last.props = append(last.props, property{
					name: fields[4], isList: true, countTyp: fields[2], elemTyp: fields[3],
				})
			default:
				return "", nil, fmt.Errorf("%w: malformed property line", ErrUnsupported)
			}
		case "end_header":
			if format == "" {
				return "", nil, fmt.Errorf("%w: missing format line", ErrUnsupported)
			}
			return format, elements, nil
		default:
			return "", nil, fmt.Errorf("%w: header keyword %q", ErrUnsupported, fields[0])
		}
	}
}

func readHeaderLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read ply header: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func readVertices(reader *bufio.Reader, format string, elem element, data *Data) error {
	idx := map[string]int{}
	for i, prop := range elem.props {
		if prop.isList {
			return fmt.Errorf("%w: list property in vertex element", ErrUnsupported)
		}
		if _, ok := scalarSizes[prop.typ]; !ok {
			return fmt.Errorf("%w: property type %q", ErrUnsupported, prop.typ)
		}
		idx[prop.name] = i
	}
	for _, required := range []string{"x", "y", "z"} {
		if _, ok := idx[required]; !ok {
			return fmt.Errorf("%w: vertex element missing %q", ErrUnsupported, required)
		}
	}
	_, hasColor := idx["red"]
	if hasColor {
		_, hasGreen := idx["green"]
		_, hasBlue := idx["blue"]
		hasColor = hasGreen && hasBlue
	}

	data.Points = make([]geom.Vec3, 0, elem.count)
	if hasColor {
		data.Colors = make([]geom.Color, 0, elem.count)
	}

	values := make([]float64, len(elem.props))
	for row := 0; row < elem.count; row++ {
		if err := readRow(reader, format, elem.props, values); err != nil {
			return fmt.Errorf("vertex %d: %w", row, err)
		}
		data.Points = append(data.Points, geom.Vec3{
			X: values[idx["x"]],
			Y: values[idx["y"]],
			Z: values[idx["z"]],
		})
		if hasColor {
			data.Colors = append(data.Colors, geom.Color{
				R: clampByte(values[idx["red"]]),
				G: clampByte(values[idx["green"]]),
				B: clampByte(values[idx["blue"]]),
			})
		}
	}
	return nil
}

func readFaces(reader *bufio.Reader, format string, elem element, data *Data) error {
	if len(elem.props) != 1 || !elem.props[0].isList {
		return fmt.Errorf("%w: face element layout", ErrUnsupported)
	}
	prop := elem.props[0]

	for row := 0; row < elem.count; row++ {
		var indices []int
		var err error
		if format == "ascii" {
			indices, err = readASCIIFace(reader)
		} else {
			indices, err = readBinaryFace(reader, prop)
		}
		if err != nil {
			return fmt.Errorf("face %d: %w", row, err)
		}
		// Triangle-fan split for quads and larger polygons.
		for i := 2; i < len(indices); i++ {
			data.Faces = append(data.Faces, [3]int{indices[0], indices[i-1], indices[i]})
		}
	}
	return nil
}

func readASCIIFace(reader *bufio.Reader) ([]int, error) {
	fields, err := readDataLine(reader)
	if err != nil {
		return nil, err
	}
	if len(fields) < 1 {
		return nil, errors.New("empty face row")
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil || count < 0 || len(fields) < 1+count {
		return nil, errors.New("malformed face row")
	}
	indices := make([]int, count)
	for i := 0; i < count; i++ {
		if indices[i], err = strconv.Atoi(fields[1+i]); err != nil {
			return nil, err
		}
	}
	return indices, nil
}

func readBinaryFace(reader *bufio.Reader, prop property) ([]int, error) {
	count, err := readScalar(reader, prop.countTyp)
	if err != nil {
		return nil, err
	}
	n := int(count)
	if n < 0 || n > 255 {
		return nil, errors.New("malformed face count")
	}
	indices := make([]int, n)
	for i := 0; i < n; i++ {
		value, err := readScalar(reader, prop.elemTyp)
		if err != nil {
			return nil, err
		}
		indices[i] = int(value)
	}
	return indices, nil
}

func skipElement(reader *bufio.Reader, format string, elem element) error {
	if format == "ascii" {
		for row := 0; row < elem.count; row++ {
			if _, err := readDataLine(reader); err != nil {
				return err
			}
		}
		return nil
	}
	stride := 0
	for _, prop := range elem.props {
		if prop.isList {
			return fmt.Errorf("%w: cannot skip binary list element %q", ErrUnsupported, elem.name)
		}
		stride += scalarSizes[prop.typ]
	}
	_, err := io.CopyN(io.Discard, reader, int64(stride*elem.count))
	return err
}

func readRow(reader *bufio.Reader, format string, props []property, values []float64) error {
	if format == "ascii" {
		fields, err := readDataLine(reader)
		if err != nil {
			return err
		}
		if len(fields) < len(props) {
			return errors.New("short vertex row")
		}
		for i := range props {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return err
			}
			values[i] = value
		}
		return nil
	}
	for i, prop := range props {
		value, err := readScalar(reader, prop.typ)
		if err != nil {
			return err
		}
		values[i] = value
	}
	return nil
}

func readDataLine(reader *bufio.Reader) ([]string, error) {
	for {
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
			return nil, err
		}
		fields := strings.Fields(line)
		if len(fields) > 0 {
			return fields, nil
		}
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
	}
}

func readScalar(reader io.Reader, typ string) (float64, error) {
	size, ok := scalarSizes[typ]
	if !ok {
		return 0, fmt.Errorf("%w: scalar type %q", ErrUnsupported, typ)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return 0, err
	}
	switch typ {
	case "char", "int8":
		return float64(int8(buf[0])), nil
	case "uchar", "uint8":
		return float64(buf[0]), nil
	case "short", "int16":
		return float64(int16(binary.LittleEndian.Uint16(buf))), nil
	case "ushort", "uint16":
		return float64(binary.LittleEndian.Uint16(buf)), nil
	case "int", "int32":
		return float64(int32(binary.LittleEndian.Uint32(buf))), nil
	case "uint", "uint32":
		return float64(binary.LittleEndian.Uint32(buf)), nil
	case "float", "float32":
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))), nil
	default: // double, float64
		return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
	}
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
