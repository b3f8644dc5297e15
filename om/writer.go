package om

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/gridpoint/omstore/internal/codec"
	"github.com/gridpoint/omstore/internal/grid"
)

// Writer builds a new om file. Chunks may be written in any order and
// from multiple goroutines as long as no two goroutines write the same
// chunk coordinate. The file becomes readable only after Finalize.
type Writer struct {
	f    *os.File
	meta Metadata
	grid *grid.Grid

	mu     sync.Mutex
	dir    []dirEntry
	next   int64 // append offset for the next encoded chunk
	sealed bool
	closed bool
}

// Create allocates a new array file with the given metadata. The metadata
// is sealed into the file by Finalize; until then the file reports
// ErrNotFinalized to readers.
func Create(path string, meta Metadata) (*Writer, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	g, err := meta.grid()
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	metaLen := metaBlockLen(&meta, g.TotalChunks())
	if _, err := f.WriteAt(encodeHeader(metaLen, false), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	m := meta
	m.Dims = append([]Dim(nil), meta.Dims...)
	return &Writer{
		f:    f,
		meta: m,
		grid: g,
		dir:  make([]dirEntry, g.TotalChunks()),
		next: int64(headerLen + metaLen),
	}, nil
}

// Meta returns the array metadata.
func (w *Writer) Meta() Metadata { return w.meta }

// Grid exposes the chunk layout of the array under construction.
func (w *Writer) Grid() ChunkLayout { return ChunkLayout{g: w.grid} }

// WriteChunk encodes and persists one chunk. The buffer must hold exactly
// the chunk's fill count of elements in row-major order relative to the
// chunk's actual (possibly boundary-truncated) shape. Rewriting a
// coordinate before Finalize replaces the directory entry; the last write
// wins.
func (w *Writer) WriteChunk(chunkCoord []int, raw []byte) error {
	if len(chunkCoord) != w.grid.NDims() {
		return fmt.Errorf("%w: chunk coordinate %v for %d dimensions", ErrOutOfBounds, chunkCoord, w.grid.NDims())
	}
	for i, c := range chunkCoord {
		if c < 0 || c >= w.grid.Counts()[i] {
			return fmt.Errorf("%w: chunk coordinate %v exceeds grid %v", ErrOutOfBounds, chunkCoord, w.grid.Counts())
		}
	}
	elemSize := w.meta.DType.Size()
	if want := w.grid.FillCount(chunkCoord) * elemSize; len(raw) != want {
		return fmt.Errorf("chunk %v: buffer holds %d bytes, want %d", chunkCoord, len(raw), want)
	}

	enc, err := codec.Encode(raw, codec.Scheme(w.meta.Compression), elemSize)
	if err != nil {
		return fmt.Errorf("chunk %v: %w", chunkCoord, err)
	}

	w.mu.Lock()
	if w.sealed || w.closed {
		w.mu.Unlock()
		return fmt.Errorf("chunk %v: %w", chunkCoord, ErrSealed)
	}
	offset := w.next
	w.next += int64(len(enc))
	w.dir[w.grid.Ordinal(chunkCoord)] = dirEntry{offset: uint64(offset), length: uint64(len(enc))}
	w.mu.Unlock()

	if _, err := w.f.WriteAt(enc, offset); err != nil {
		return fmt.Errorf("chunk %v: %w", chunkCoord, err)
	}
	return nil
}

// WriteChunkFloat32 converts vals to little-endian bytes and writes them
// as one chunk.
func (w *Writer) WriteChunkFloat32(chunkCoord []int, vals []float32) error {
	raw := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	return w.WriteChunk(chunkCoord, raw)
}

// WriteChunkFloat64 converts vals to little-endian bytes and writes them
// as one chunk.
func (w *Writer) WriteChunkFloat64(chunkCoord []int, vals []float64) error {
	raw := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}
	return w.WriteChunk(chunkCoord, raw)
}

// Finalize writes the metadata block and seals the file. Chunks never
// written stay as zero-length directory entries and read back as zeros.
// Finalize may be called at most once.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	if w.sealed || w.closed {
		w.mu.Unlock()
		return ErrSealed
	}
	w.sealed = true
	w.closed = true
	block := encodeMetadata(&w.meta, w.dir)
	w.mu.Unlock()

	if _, err := w.f.WriteAt(block, headerLen); err != nil {
		return fmt.Errorf("failed to write metadata block: %w", err)
	}
	// Seal only after the metadata block is durable.
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}
	if _, err := w.f.WriteAt(encodeHeader(len(block), true), 0); err != nil {
		return fmt.Errorf("failed to seal header: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}
	return w.f.Close()
}

// Discard closes the writer without sealing. The partial file is left on
// disk; readers see ErrNotFinalized.
func (w *Writer) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}
