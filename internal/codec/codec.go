// Package codec encodes and decodes single chunks of fixed-width numeric
// samples. The scheme is chosen per array, not per chunk, and every scheme
// is lossless and deterministic: the same input always produces the same
// bytes, so rechunked files are reproducible.
package codec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Scheme identifies a chunk compression scheme.
type Scheme uint8

const (
	// None stores raw little-endian samples.
	None Scheme = iota
	// Zstd compresses raw samples with zstandard.
	Zstd
	// DeltaZigzag reinterprets each sample's bit pattern as an unsigned
	// integer, deltas consecutive samples, zigzag-encodes the deltas and
	// packs them as unsigned varints.
	DeltaZigzag
	// DeltaZigzagZstd applies DeltaZigzag and then zstandard over the
	// varint stream.
	DeltaZigzagZstd

	numSchemes
)

// ErrCorrupt reports an encoded chunk inconsistent with its declared
// scheme, element width or element count.
var ErrCorrupt = errors.New("corrupt chunk")

func (s Scheme) String() string {
	switch s {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case DeltaZigzag:
		return "delta-zigzag"
	case DeltaZigzagZstd:
		return "delta-zigzag-zstd"
	default:
		return fmt.Sprintf("scheme(%d)", uint8(s))
	}
}

// Valid reports whether s names a known scheme.
func (s Scheme) Valid() bool { return s < numSchemes }

// Parse resolves a scheme name as printed by String.
func Parse(name string) (Scheme, error) {
	for s := None; s < numSchemes; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown compression scheme %q", name)
}

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func zstdInit() {
	// Single-goroutine stateless coders shared by all stores. EncodeAll
	// with a fixed level keeps output byte-identical across runs.
	zstdEncoder, _ = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1))
	zstdDecoder, _ = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1))
}

// Encode compresses one chunk of raw little-endian samples. The length of
// raw must be a multiple of elemSize.
func Encode(raw []byte, s Scheme, elemSize int) ([]byte, error) {
	if err := checkElemSize(elemSize); err != nil {
		return nil, err
	}
	if len(raw)%elemSize != 0 {
		return nil, fmt.Errorf("codec: buffer of %d bytes is not a multiple of element size %d", len(raw), elemSize)
	}
	switch s {
	case None:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case Zstd:
		zstdOnce.Do(zstdInit)
		return zstdEncoder.EncodeAll(raw, nil), nil
	case DeltaZigzag:
		return deltaEncode(raw, elemSize), nil
	case DeltaZigzagZstd:
		zstdOnce.Do(zstdInit)
		return zstdEncoder.EncodeAll(deltaEncode(raw, elemSize), nil), nil
	default:
		return nil, fmt.Errorf("codec: unsupported scheme %s", s)
	}
}

// Decode decompresses one chunk and verifies that it holds exactly
// expectCount samples of elemSize bytes. Any mismatch between the byte
// stream and the declared scheme or count fails with ErrCorrupt.
func Decode(enc []byte, s Scheme, elemSize, expectCount int) ([]byte, error) {
	if err := checkElemSize(elemSize); err != nil {
		return nil, err
	}
	want := expectCount * elemSize
	switch s {
	case None:
		if len(enc) != want {
			return nil, fmt.Errorf("%w: %d raw bytes, want %d", ErrCorrupt, len(enc), want)
		}
		out := make([]byte, want)
		copy(out, enc)
		return out, nil
	case Zstd:
		zstdOnce.Do(zstdInit)
		out, err := zstdDecoder.DecodeAll(enc, make([]byte, 0, want))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		if len(out) != want {
			return nil, fmt.Errorf("%w: zstd yielded %d bytes, want %d", ErrCorrupt, len(out), want)
		}
		return out, nil
	case DeltaZigzag:
		return deltaDecode(enc, elemSize, expectCount)
	case DeltaZigzagZstd:
		zstdOnce.Do(zstdInit)
		varints, err := zstdDecoder.DecodeAll(enc, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		return deltaDecode(varints, elemSize, expectCount)
	default:
		return nil, fmt.Errorf("codec: unsupported scheme %s", s)
	}
}

func checkElemSize(elemSize int) error {
	switch elemSize {
	case 1, 2, 4, 8:
		return nil
	default:
		return fmt.Errorf("codec: unsupported element size %d", elemSize)
	}
}
