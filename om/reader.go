package om

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"gocloud.dev/blob"

	"github.com/gridpoint/omstore/internal/codec"
	"github.com/gridpoint/omstore/internal/grid"
)

// Reader provides random access to a finalized om file. All metadata is
// parsed and validated at open time; concurrent ReadRange calls are safe.
type Reader struct {
	bucket *blob.Bucket
	key    string
	size   int64
	meta   *Metadata
	grid   *grid.Grid
	dir    []dirEntry
}

// Open opens an om file for reading. The URL addresses the file through a
// gocloud bucket, e.g. "file:///data/era5/temperature.om"; the last path
// segment is the object key. Opening an unsealed file fails with
// ErrNotFinalized.
func Open(ctx context.Context, urlstr string) (*Reader, error) {
	idx := strings.LastIndex(urlstr, "/")
	if idx < 0 || idx == len(urlstr)-1 {
		return nil, fmt.Errorf("%w: url %q does not name a file", ErrInvalidFormat, urlstr)
	}
	bucket, err := blob.OpenBucket(ctx, urlstr[:idx])
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	r, err := openIn(ctx, bucket, urlstr[idx+1:])
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return r, nil
}

func openIn(ctx context.Context, bucket *blob.Bucket, key string) (*Reader, error) {
	attrs, err := bucket.Attributes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	if attrs.Size < headerLen {
		return nil, fmt.Errorf("%w: file shorter than header", ErrInvalidFormat)
	}

	head, err := readAt(ctx, bucket, key, 0, headerLen)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	metaLen, sealed, err := parseHeader(head)
	if err != nil {
		return nil, err
	}
	if !sealed {
		return nil, fmt.Errorf("%w: %s", ErrNotFinalized, key)
	}
	dataStart := int64(headerLen + metaLen)
	if dataStart > attrs.Size {
		return nil, fmt.Errorf("%w: metadata block extends past end of file", ErrInvalidFormat)
	}

	block, err := readAt(ctx, bucket, key, headerLen, int64(metaLen))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata block: %w", err)
	}
	meta, dir, err := decodeMetadata(block)
	if err != nil {
		return nil, err
	}
	g, err := meta.grid()
	if err != nil {
		return nil, err
	}
	if len(dir) != g.TotalChunks() {
		return nil, fmt.Errorf("%w: directory holds %d entries for %d chunks", ErrInvalidFormat, len(dir), g.TotalChunks())
	}
	for i, e := range dir {
		if e.length == 0 {
			continue
		}
		if e.offset < uint64(dataStart) || e.offset+e.length > uint64(attrs.Size) {
			return nil, fmt.Errorf("%w: chunk %d at [%d,%d) outside data section", ErrInvalidFormat, i, e.offset, e.offset+e.length)
		}
	}

	return &Reader{
		bucket: bucket,
		key:    key,
		size:   attrs.Size,
		meta:   meta,
		grid:   g,
		dir:    dir,
	}, nil
}

// Meta returns the array metadata.
func (r *Reader) Meta() *Metadata { return r.meta }

// Grid exposes the chunk index of the array.
func (r *Reader) Grid() ChunkLayout { return ChunkLayout{g: r.grid} }

// ReadChunk decodes one whole chunk. The returned buffer is row-major
// relative to the chunk's actual shape and holds exactly its fill count
// of elements. A chunk that was never written decodes to zeros.
func (r *Reader) ReadChunk(ctx context.Context, chunkCoord []int) ([]byte, error) {
	if len(chunkCoord) != r.grid.NDims() {
		return nil, fmt.Errorf("%w: chunk coordinate %v for %d dimensions", ErrOutOfBounds, chunkCoord, r.grid.NDims())
	}
	for i, c := range chunkCoord {
		if c < 0 || c >= r.grid.Counts()[i] {
			return nil, fmt.Errorf("%w: chunk coordinate %v exceeds grid %v", ErrOutOfBounds, chunkCoord, r.grid.Counts())
		}
	}

	elemSize := r.meta.DType.Size()
	fill := r.grid.FillCount(chunkCoord)
	entry := r.dir[r.grid.Ordinal(chunkCoord)]
	if entry.length == 0 {
		return make([]byte, fill*elemSize), nil
	}

	enc, err := r.readChunkBytes(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("chunk %v: %w", chunkCoord, err)
	}
	raw, err := codec.Decode(enc, codec.Scheme(r.meta.Compression), elemSize, fill)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %v: %v", ErrCorruptChunk, chunkCoord, err)
	}
	return raw, nil
}

// readChunkBytes fetches one encoded chunk, retrying transient I/O errors
// a bounded number of times.
func (r *Reader) readChunkBytes(ctx context.Context, entry dirEntry) ([]byte, error) {
	var err error
	for attempt := 0; attempt <= chunkReadRetries; attempt++ {
		var enc []byte
		enc, err = readAt(ctx, r.bucket, r.key, int64(entry.offset), int64(entry.length))
		if err == nil {
			return enc, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, err
}

// ReadRange reads the closed-open hyper-rectangle [start, end) into a
// row-major buffer of shape end-start. Bounds are validated up front;
// an out-of-range request performs no I/O. Every covering chunk is
// fetched and decoded exactly once.
func (r *Reader) ReadRange(ctx context.Context, start, end []int) ([]byte, error) {
	if len(start) != r.grid.NDims() || len(end) != r.grid.NDims() {
		return nil, fmt.Errorf("%w: start and end must match array dimensionality %d", ErrOutOfBounds, r.grid.NDims())
	}
	extents := r.grid.Extents()
	for i := range start {
		if start[i] < 0 || end[i] <= start[i] || end[i] > extents[i] {
			return nil, fmt.Errorf("%w: range [%d,%d) at dimension %d (extent %d)", ErrOutOfBounds, start[i], end[i], i, extents[i])
		}
	}

	elemSize := r.meta.DType.Size()
	outShape := make([]int, len(start))
	for i := range start {
		outShape[i] = end[i] - start[i]
	}
	out := make([]byte, grid.Volume(outShape)*elemSize)

	chunks := r.grid.ChunkShape()
	minChunk := make([]int, len(start))
	maxChunk := make([]int, len(start))
	for i := range start {
		minChunk[i] = start[i] / chunks[i]
		maxChunk[i] = (end[i]-1)/chunks[i] + 1
	}

	err := grid.IterateRange(minChunk, maxChunk, func(chunkCoord []int) error {
		raw, err := r.ReadChunk(ctx, chunkCoord)
		if err != nil {
			return err
		}

		chunkStart := r.grid.ChunkStart(chunkCoord)
		chunkShape := r.grid.ChunkShapeAt(chunkCoord)
		region := make([]int, len(start))
		srcOffset := make([]int, len(start))
		dstOffset := make([]int, len(start))
		for i := range start {
			lo := max(chunkStart[i], start[i])
			hi := min(chunkStart[i]+chunkShape[i], end[i])
			region[i] = hi - lo
			srcOffset[i] = lo - chunkStart[i]
			dstOffset[i] = lo - start[i]
		}
		grid.CopyRegion(out, outShape, dstOffset, raw, chunkShape, srcOffset, region, elemSize)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadRangeClamped clamps the requested box to the array extents before
// reading; viewport renderers use it to tolerate over-wide requests. It
// returns the buffer together with the clamped bounds. A box entirely
// outside the array yields an empty buffer.
func (r *Reader) ReadRangeClamped(ctx context.Context, start, end []int) ([]byte, []int, []int, error) {
	if len(start) != r.grid.NDims() || len(end) != r.grid.NDims() {
		return nil, nil, nil, fmt.Errorf("%w: start and end must match array dimensionality %d", ErrOutOfBounds, r.grid.NDims())
	}
	extents := r.grid.Extents()
	cs := make([]int, len(start))
	ce := make([]int, len(end))
	for i := range start {
		cs[i] = min(max(start[i], 0), extents[i])
		ce[i] = min(max(end[i], cs[i]), extents[i])
		if cs[i] == ce[i] {
			return []byte{}, cs, cs, nil
		}
	}
	buf, err := r.ReadRange(ctx, cs, ce)
	return buf, cs, ce, err
}

// ReadRangeFloat32 reads a range of a Float32 array as values.
func (r *Reader) ReadRangeFloat32(ctx context.Context, start, end []int) ([]float32, error) {
	if r.meta.DType != Float32 {
		return nil, fmt.Errorf("array holds %s, not float32", r.meta.DType)
	}
	raw, err := r.ReadRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	vals := make([]float32, len(raw)/4)
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vals, nil
}

// ReadRangeFloat64 reads a range of a Float64 array as values.
func (r *Reader) ReadRangeFloat64(ctx context.Context, start, end []int) ([]float64, error) {
	if r.meta.DType != Float64 {
		return nil, fmt.Errorf("array holds %s, not float64", r.meta.DType)
	}
	raw, err := r.ReadRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	vals := make([]float64, len(raw)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return vals, nil
}

// Close closes the underlying bucket.
func (r *Reader) Close() error {
	return r.bucket.Close()
}

func readAt(ctx context.Context, bucket *blob.Bucket, key string, offset, length int64) ([]byte, error) {
	rr, err := bucket.NewRangeReader(ctx, key, offset, length, nil)
	if err != nil {
		return nil, err
	}
	defer rr.Close()
	buf := make([]byte, length)
	if _, err := io.ReadFull(rr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
