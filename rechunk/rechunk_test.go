package rechunk_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	_ "gocloud.dev/blob/fileblob"

	"github.com/gridpoint/omstore/om"
	"github.com/gridpoint/omstore/rechunk"
)

// sourceValue encodes a [time, lat, lon] coordinate into a float32 that
// survives the trip exactly (all values stay below 2^24).
func sourceValue(ti, la, lo int) float32 {
	return float32(ti*10000 + la*100 + lo)
}

// writeSource builds a temporal-major [time=100, lat=10, lon=10] array
// chunked [10, 10, 10].
func writeSource(t *testing.T, path string, compression om.Compression) {
	t.Helper()

	w, err := om.Create(path, om.Metadata{
		Dims: []om.Dim{
			{Name: "time", Extent: 100, Chunk: 10},
			{Name: "lat", Extent: 10, Chunk: 10},
			{Name: "lon", Extent: 10, Chunk: 10},
		},
		DType:       om.Float32,
		Compression: compression,
		ScaleFactor: 20,
		AddOffset:   -5,
	})
	require.NoError(t, err)

	for c := 0; c < 10; c++ {
		vals := make([]float32, 0, 10*10*10)
		for ti := c * 10; ti < (c+1)*10; ti++ {
			for la := 0; la < 10; la++ {
				for lo := 0; lo < 10; lo++ {
					vals = append(vals, sourceValue(ti, la, lo))
				}
			}
		}
		require.NoError(t, w.WriteChunkFloat32([]int{c, 0, 0}, vals))
	}
	require.NoError(t, w.Finalize())
}

func TestTemporalToSpatial(t *testing.T) {
	// [time=100, lat=10, lon=10] chunked [10, 10, 10] converts to
	// [lat=10, lon=10, time=100] chunked [10, 10, 10]; every element
	// must survive the conversion.
	ctx := context.Background()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "temporal.om")
	dstPath := filepath.Join(dir, "spatial.om")

	writeSource(t, srcPath, om.CompressionDeltaZigzagZstd)

	src, err := om.Open(ctx, "file://"+filepath.ToSlash(srcPath))
	require.NoError(t, err)
	defer src.Close()

	var calls atomic.Int64
	err = rechunk.Convert(ctx, src, dstPath, rechunk.Options{
		Perm:        rechunk.TimeToBack(3),
		ChunkShape:  []int{10, 10, 10},
		Workers:     4,
		WindowElems: 4000, // 4 decoded source chunks
		Progress:    func(done, total int) { calls.Add(1) },
	})
	require.NoError(t, err)

	dst, err := om.Open(ctx, "file://"+filepath.ToSlash(dstPath))
	require.NoError(t, err)
	defer dst.Close()

	meta := dst.Meta()
	require.Equal(t, "lat", meta.Dims[0].Name)
	require.Equal(t, "lon", meta.Dims[1].Name)
	require.Equal(t, "time", meta.Dims[2].Name)
	require.Equal(t, []int{10, 10, 100}, meta.Extents())
	require.Equal(t, float32(20), meta.ScaleFactor)
	require.Equal(t, float32(-5), meta.AddOffset)
	require.Equal(t, int64(dst.Grid().TotalChunks()), calls.Load())

	vals, err := dst.ReadRangeFloat32(ctx, []int{0, 0, 0}, []int{10, 10, 100})
	require.NoError(t, err)
	require.Len(t, vals, 10*10*100)

	i := 0
	for la := 0; la < 10; la++ {
		for lo := 0; lo < 10; lo++ {
			for ti := 0; ti < 100; ti++ {
				require.Equal(t, sourceValue(ti, la, lo), vals[i],
					"value at lat=%d lon=%d time=%d", la, lo, ti)
				i++
			}
		}
	}
}

func TestTemporalToSpatialRoundTrip(t *testing.T) {
	// Converting to spatial-major and back restores the original array.
	ctx := context.Background()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "a.om")
	midPath := filepath.Join(dir, "b.om")
	backPath := filepath.Join(dir, "c.om")

	writeSource(t, srcPath, om.CompressionZstd)

	src, err := om.Open(ctx, "file://"+filepath.ToSlash(srcPath))
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, rechunk.Convert(ctx, src, midPath, rechunk.Options{
		Perm:       rechunk.TimeToBack(3),
		ChunkShape: []int{10, 10, 1}, // single-timestep slabs
	}))

	mid, err := om.Open(ctx, "file://"+filepath.ToSlash(midPath))
	require.NoError(t, err)
	defer mid.Close()

	require.NoError(t, rechunk.Convert(ctx, mid, backPath, rechunk.Options{
		Perm:       rechunk.TimeToFront(3),
		ChunkShape: []int{10, 10, 10},
	}))

	back, err := om.Open(ctx, "file://"+filepath.ToSlash(backPath))
	require.NoError(t, err)
	defer back.Close()

	want, err := src.ReadRange(ctx, []int{0, 0, 0}, []int{100, 10, 10})
	require.NoError(t, err)
	got, err := back.ReadRange(ctx, []int{0, 0, 0}, []int{100, 10, 10})
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestReshapeOnly(t *testing.T) {
	// Identity permutation with a different chunk shape, including
	// boundary chunks in the destination.
	ctx := context.Background()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.om")
	dstPath := filepath.Join(dir, "dst.om")

	writeSource(t, srcPath, om.CompressionNone)

	src, err := om.Open(ctx, "file://"+filepath.ToSlash(srcPath))
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, rechunk.Convert(ctx, src, dstPath, rechunk.Options{
		ChunkShape: []int{25, 4, 7},
	}))

	dst, err := om.Open(ctx, "file://"+filepath.ToSlash(dstPath))
	require.NoError(t, err)
	defer dst.Close()

	want, err := src.ReadRange(ctx, []int{0, 0, 0}, []int{100, 10, 10})
	require.NoError(t, err)
	got, err := dst.ReadRange(ctx, []int{0, 0, 0}, []int{100, 10, 10})
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLayoutMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.om")

	writeSource(t, srcPath, om.CompressionNone)

	src, err := om.Open(ctx, "file://"+filepath.ToSlash(srcPath))
	require.NoError(t, err)
	defer src.Close()

	err = rechunk.Convert(ctx, src, filepath.Join(dir, "bad1.om"), rechunk.Options{
		Perm: []int{1, 0}, // wrong rank
	})
	require.ErrorIs(t, err, om.ErrLayoutMismatch)

	err = rechunk.Convert(ctx, src, filepath.Join(dir, "bad2.om"), rechunk.Options{
		Perm: []int{0, 0, 1}, // duplicate axis
	})
	require.ErrorIs(t, err, om.ErrLayoutMismatch)

	// Pre-created destination with wrong extents.
	dst, err := om.Create(filepath.Join(dir, "bad3.om"), om.Metadata{
		Dims: []om.Dim{
			{Name: "time", Extent: 50, Chunk: 10},
			{Name: "lat", Extent: 10, Chunk: 10},
			{Name: "lon", Extent: 10, Chunk: 10},
		},
		DType: om.Float32,
	})
	require.NoError(t, err)
	err = rechunk.ConvertInto(ctx, src, dst, rechunk.Options{})
	require.ErrorIs(t, err, om.ErrLayoutMismatch)
}

func TestCancelLeavesDestinationUnsealed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.om")
	dstPath := filepath.Join(dir, "dst.om")

	writeSource(t, srcPath, om.CompressionNone)

	src, err := om.Open(ctx, "file://"+filepath.ToSlash(srcPath))
	require.NoError(t, err)
	defer src.Close()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	err = rechunk.Convert(cancelled, src, dstPath, rechunk.Options{
		Perm: rechunk.TimeToBack(3),
	})
	require.Error(t, err)

	// The aborted destination must be on disk but refuse to open.
	_, err = om.Open(ctx, "file://"+filepath.ToSlash(dstPath))
	require.ErrorIs(t, err, om.ErrNotFinalized)
}
