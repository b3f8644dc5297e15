package om_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "gocloud.dev/blob/fileblob"

	"github.com/gridpoint/omstore/om"
)

func TestDataset_NextBatch(t *testing.T) {
	// Shape [10, 2], chunks [5, 2]: batches of 3 cross the chunk
	// boundary between rows 4 and 5.
	path := filepath.Join(t.TempDir(), "batches.om")

	w, err := om.Create(path, om.Metadata{
		Dims: []om.Dim{
			{Name: "sample", Extent: 10, Chunk: 5},
			{Name: "feature", Extent: 2, Chunk: 2},
		},
		DType:       om.Float32,
		Compression: om.CompressionZstd,
	})
	require.NoError(t, err)

	require.NoError(t, w.WriteChunkFloat32([]int{0, 0}, []float32{
		0, 1,
		2, 3,
		4, 5,
		6, 7,
		8, 9,
	}))
	require.NoError(t, w.WriteChunkFloat32([]int{1, 0}, []float32{
		10, 11,
		12, 13,
		14, 15,
		16, 17,
		18, 19,
	}))
	require.NoError(t, w.Finalize())

	ctx := context.Background()
	ds, err := om.NewDataset(ctx, "file://"+filepath.ToSlash(path))
	require.NoError(t, err)
	defer ds.Close()

	batch1, err := ds.NextBatch(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []int{3, 2}, batch1.Shape().Dimensions)
	require.Equal(t, [][]float32{{0, 1}, {2, 3}, {4, 5}}, batch1.Value().([][]float32))

	batch2, err := ds.NextBatch(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []int{3, 2}, batch2.Shape().Dimensions)
	require.Equal(t, [][]float32{{6, 7}, {8, 9}, {10, 11}}, batch2.Value().([][]float32))

	batch3, err := ds.NextBatch(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, []int{4, 2}, batch3.Shape().Dimensions)
	require.Equal(t, [][]float32{{12, 13}, {14, 15}, {16, 17}, {18, 19}}, batch3.Value().([][]float32))

	_, err = ds.NextBatch(ctx, 1)
	require.ErrorIs(t, err, io.EOF)

	ds.Reset()
	batch4, err := ds.NextBatch(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []int{10, 2}, batch4.Shape().Dimensions)
}
