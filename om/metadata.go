package om

import (
	"fmt"
	"strconv"

	"github.com/gridpoint/omstore/internal/codec"
	"github.com/gridpoint/omstore/internal/grid"
)

// DType identifies the element type of an array.
type DType uint8

const (
	Float32 DType = iota
	Float64
	Int32
	Int64

	numDTypes
)

// Size returns the element width in bytes.
func (d DType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	default:
		return 8
	}
}

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// ParseDType accepts a numpy-style little-endian type string such as
// "<f4", "<f8", "<i4" or "<i8". Big-endian types are rejected.
func ParseDType(s string) (DType, error) {
	if len(s) != 3 {
		return 0, fmt.Errorf("invalid dtype: %s", s)
	}
	if s[0] == '>' {
		return 0, fmt.Errorf("big-endian types are unsupported: %s", s)
	}
	if s[0] != '<' {
		return 0, fmt.Errorf("invalid dtype: %s", s)
	}
	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return 0, fmt.Errorf("invalid size in dtype: %s", s)
	}
	switch {
	case s[1] == 'f' && size == 4:
		return Float32, nil
	case s[1] == 'f' && size == 8:
		return Float64, nil
	case s[1] == 'i' && size == 4:
		return Int32, nil
	case s[1] == 'i' && size == 8:
		return Int64, nil
	default:
		return 0, fmt.Errorf("unsupported dtype: %s", s)
	}
}

// Compression identifies the per-array chunk compression scheme.
type Compression uint8

const (
	CompressionNone            = Compression(codec.None)
	CompressionZstd            = Compression(codec.Zstd)
	CompressionDeltaZigzag     = Compression(codec.DeltaZigzag)
	CompressionDeltaZigzagZstd = Compression(codec.DeltaZigzagZstd)
)

func (c Compression) String() string { return codec.Scheme(c).String() }

// ParseCompression resolves a scheme name as printed by String.
func ParseCompression(name string) (Compression, error) {
	s, err := codec.Parse(name)
	return Compression(s), err
}

// Dim describes one axis: its name, extent and nominal chunk extent.
// The chunk extent need not divide the extent evenly; the trailing
// chunk is then partial.
type Dim struct {
	Name   string
	Extent int
	Chunk  int
}

// Metadata describes one array. It is accumulated on the write side and
// immutable once the file is finalized.
type Metadata struct {
	Dims        []Dim
	DType       DType
	Compression Compression

	// ScaleFactor and AddOffset describe how integer payloads map back to
	// physical values (value = stored*ScaleFactor + AddOffset). The engine
	// carries them through unmodified.
	ScaleFactor float32
	AddOffset   float32
}

// Extents returns the per-dimension element counts.
func (m *Metadata) Extents() []int {
	e := make([]int, len(m.Dims))
	for i, d := range m.Dims {
		e[i] = d.Extent
	}
	return e
}

// ChunkShape returns the nominal per-dimension chunk extents.
func (m *Metadata) ChunkShape() []int {
	c := make([]int, len(m.Dims))
	for i, d := range m.Dims {
		c[i] = d.Chunk
	}
	return c
}

// Validate checks the metadata before a file is created.
func (m *Metadata) Validate() error {
	if len(m.Dims) == 0 {
		return fmt.Errorf("%w: array must have at least one dimension", ErrInvalidFormat)
	}
	if m.DType >= numDTypes {
		return fmt.Errorf("%w: unknown dtype %d", ErrInvalidFormat, m.DType)
	}
	if !codec.Scheme(m.Compression).Valid() {
		return fmt.Errorf("%w: unknown compression scheme %d", ErrInvalidFormat, m.Compression)
	}
	for i, d := range m.Dims {
		if len(d.Name) > 0xFFFF {
			return fmt.Errorf("%w: dimension %d name too long", ErrInvalidFormat, i)
		}
		if d.Extent <= 0 {
			return fmt.Errorf("%w: dimension %q has non-positive extent %d", ErrInvalidFormat, d.Name, d.Extent)
		}
		if d.Chunk <= 0 || d.Chunk > d.Extent {
			return fmt.Errorf("%w: dimension %q chunk extent %d out of range (1..%d)", ErrInvalidFormat, d.Name, d.Chunk, d.Extent)
		}
	}
	return nil
}

func (m *Metadata) grid() (*grid.Grid, error) {
	g, err := grid.New(m.Extents(), m.ChunkShape())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return g, nil
}
