// Package rechunk converts an om array from one chunk layout into
// another: a different chunk shape, a different axis order, or both.
// The conversion streams chunk by chunk under a bounded memory budget;
// the whole dataset is never resident at once.
package rechunk

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/gridpoint/omstore/internal/grid"
	"github.com/gridpoint/omstore/om"
)

// DefaultWindowElems bounds the decoded source elements held resident
// while gathering destination chunks (128 MiB of float64 samples).
const DefaultWindowElems = 1 << 24

// Options configures a conversion.
type Options struct {
	// Perm maps destination axis i to source axis Perm[i]; nil keeps the
	// source axis order.
	Perm []int
	// ChunkShape is the destination chunk shape in destination axis
	// order; nil reuses the permuted source chunk shape.
	ChunkShape []int
	// Workers is the number of destination chunks converted in parallel;
	// 0 uses GOMAXPROCS.
	Workers int
	// WindowElems caps the decoded source elements held simultaneously;
	// 0 uses DefaultWindowElems.
	WindowElems int
	// Progress, when set, is called after each destination chunk.
	Progress func(done, total int)
	// Logger receives conversion progress; nil disables logging.
	Logger *zerolog.Logger
}

// TimeToFront returns the permutation that moves the last axis first,
// turning a temporal-major [lat, lon, time] layout into a spatial-major
// [time, lat, lon] one.
func TimeToFront(ndims int) []int { return grid.TimeToFront(ndims) }

// TimeToBack returns the inverse of TimeToFront.
func TimeToBack(ndims int) []int { return grid.TimeToBack(ndims) }

// Convert creates a new om file at destPath holding the source array in
// the requested layout. On any failure the destination is left on disk
// unsealed, so readers see ErrNotFinalized rather than silently partial
// data.
func Convert(ctx context.Context, src *om.Reader, destPath string, opts Options) error {
	perm, err := normalizePerm(src, opts.Perm)
	if err != nil {
		return err
	}

	srcMeta := src.Meta()
	destDims := make([]om.Dim, len(srcMeta.Dims))
	for i, axis := range perm {
		destDims[i] = srcMeta.Dims[axis]
	}
	if opts.ChunkShape != nil {
		if len(opts.ChunkShape) != len(destDims) {
			return fmt.Errorf("%w: %d chunk extents for %d dimensions", om.ErrLayoutMismatch, len(opts.ChunkShape), len(destDims))
		}
		for i, c := range opts.ChunkShape {
			destDims[i].Chunk = c
		}
	}

	dst, err := om.Create(destPath, om.Metadata{
		Dims:        destDims,
		DType:       srcMeta.DType,
		Compression: srcMeta.Compression,
		ScaleFactor: srcMeta.ScaleFactor,
		AddOffset:   srcMeta.AddOffset,
	})
	if err != nil {
		return err
	}
	return ConvertInto(ctx, src, dst, opts)
}

// ConvertInto streams the source array into an already created writer and
// finalizes it on success. The writer's extents must equal the permuted
// source extents; otherwise the conversion fails with ErrLayoutMismatch
// before anything is read.
func ConvertInto(ctx context.Context, src *om.Reader, dst *om.Writer, opts Options) error {
	if err := convert(ctx, src, dst, opts); err != nil {
		dst.Discard()
		return err
	}
	return dst.Finalize()
}

func convert(ctx context.Context, src *om.Reader, dst *om.Writer, opts Options) error {
	perm, err := normalizePerm(src, opts.Perm)
	if err != nil {
		return err
	}
	srcMeta := src.Meta()
	dstMeta := dst.Meta()
	if dstMeta.DType != srcMeta.DType {
		return fmt.Errorf("%w: source %s vs destination %s", om.ErrLayoutMismatch, srcMeta.DType, dstMeta.DType)
	}

	srcGrid, err := grid.New(srcMeta.Extents(), srcMeta.ChunkShape())
	if err != nil {
		return fmt.Errorf("%w: %v", om.ErrLayoutMismatch, err)
	}
	dstGrid, err := grid.New(dstMeta.Extents(), dstMeta.ChunkShape())
	if err != nil {
		return fmt.Errorf("%w: %v", om.ErrLayoutMismatch, err)
	}
	wantExtents := perm.Apply(srcGrid.Extents())
	for i, e := range dstGrid.Extents() {
		if e != wantExtents[i] {
			return fmt.Errorf("%w: destination extents %v, want %v", om.ErrLayoutMismatch, dstGrid.Extents(), wantExtents)
		}
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	windowElems := opts.WindowElems
	if windowElems <= 0 {
		windowElems = DefaultWindowElems
	}
	window := max(1, windowElems/grid.Volume(srcGrid.ChunkShape()))

	total := dstGrid.TotalChunks()
	logger.Info().
		Int("chunks", total).
		Int("workers", workers).
		Int("window", window).
		Ints("perm", []int(perm)).
		Msg("starting conversion")

	cache := newSourceCache(window, func(ctx context.Context, ordinal int) ([]byte, error) {
		return src.ReadChunk(ctx, srcGrid.CoordAt(ordinal))
	})

	c := &converter{
		src:      src,
		dst:      dst,
		srcGrid:  srcGrid,
		dstGrid:  dstGrid,
		inv:      perm.Inverse(),
		identity: perm.IsIdentity(),
		elemSize: srcMeta.DType.Size(),
		cache:    cache,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		runErr  error
		done    atomic.Int64
	)
	fail := func(err error) {
		errOnce.Do(func() {
			runErr = err
			cancel()
		})
	}

	jobs := make(chan int)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ordinal := range jobs {
				if runCtx.Err() != nil {
					continue
				}
				if err := c.convertChunk(runCtx, ordinal); err != nil {
					fail(fmt.Errorf("destination chunk %v: %w", c.dstGrid.CoordAt(ordinal), err))
					continue
				}
				n := int(done.Add(1))
				logger.Debug().Int("done", n).Int("total", total).Msg("chunk converted")
				if opts.Progress != nil {
					opts.Progress(n, total)
				}
			}
		}()
	}

feed:
	for ordinal := 0; ordinal < total; ordinal++ {
		select {
		case jobs <- ordinal:
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	if runErr != nil {
		logger.Error().Err(runErr).Msg("conversion aborted; destination left unsealed")
		return runErr
	}
	logger.Info().Int("chunks", total).Msg("conversion complete")
	return nil
}

type converter struct {
	src      *om.Reader
	dst      *om.Writer
	srcGrid  *grid.Grid
	dstGrid  *grid.Grid
	inv      grid.Permutation
	identity bool
	elemSize int
	cache    *sourceCache
}

// convertChunk gathers one destination chunk from the source and writes
// it. All source reads for the chunk complete before the write starts.
func (c *converter) convertChunk(ctx context.Context, ordinal int) error {
	dstCoord := c.dstGrid.CoordAt(ordinal)
	dstStart := c.dstGrid.ChunkStart(dstCoord)
	dstShape := c.dstGrid.ChunkShapeAt(dstCoord)

	if c.identity {
		end := make([]int, len(dstStart))
		for i := range dstStart {
			end[i] = dstStart[i] + dstShape[i]
		}
		buf, err := c.src.ReadRange(ctx, dstStart, end)
		if err != nil {
			return err
		}
		return c.dst.WriteChunk(dstCoord, buf)
	}

	buf := make([]byte, grid.Volume(dstShape)*c.elemSize)
	srcCoord := make([]int, len(dstStart))
	flat := 0
	err := grid.IterateRange(make([]int, len(dstShape)), dstShape, func(rel []int) error {
		for j := range srcCoord {
			// Source axis j lives at destination position inv[j].
			srcCoord[j] = dstStart[c.inv[j]] + rel[c.inv[j]]
		}
		srcChunk, local := c.srcGrid.Locate(srcCoord)
		data, err := c.cache.get(ctx, c.srcGrid.Ordinal(srcChunk))
		if err != nil {
			return err
		}
		strides := grid.Strides(c.srcGrid.ChunkShapeAt(srcChunk))
		idx := 0
		for i, l := range local {
			idx += l * strides[i]
		}
		copy(buf[flat*c.elemSize:(flat+1)*c.elemSize], data[idx*c.elemSize:(idx+1)*c.elemSize])
		flat++
		return nil
	})
	if err != nil {
		return err
	}
	return c.dst.WriteChunk(dstCoord, buf)
}

func normalizePerm(src *om.Reader, p []int) (grid.Permutation, error) {
	ndims := len(src.Meta().Dims)
	if p == nil {
		return grid.Identity(ndims), nil
	}
	if len(p) != ndims {
		return nil, fmt.Errorf("%w: permutation %v for %d dimensions", om.ErrLayoutMismatch, p, ndims)
	}
	perm, err := grid.NewPermutation(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", om.ErrLayoutMismatch, err)
	}
	return perm, nil
}
