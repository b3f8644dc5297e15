package om

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Dataset iterates an array in batches along the leading dimension,
// returning tensors for training or analysis pipelines.
type Dataset struct {
	r            *Reader
	ownReader    bool
	CurrentIndex int
}

// NewDataset opens the om file at the given URL for batch iteration.
func NewDataset(ctx context.Context, urlstr string) (*Dataset, error) {
	r, err := Open(ctx, urlstr)
	if err != nil {
		return nil, err
	}
	return &Dataset{r: r, ownReader: true}, nil
}

// DatasetOf wraps an existing reader; Close leaves the reader open.
func DatasetOf(r *Reader) *Dataset {
	return &Dataset{r: r}
}

// NextBatch reads the next batch of size batchSize along dimension 0.
// Returns io.EOF when the array is exhausted.
func (d *Dataset) NextBatch(ctx context.Context, batchSize int) (*tensors.Tensor, error) {
	extents := d.r.grid.Extents()
	if d.CurrentIndex >= extents[0] {
		return nil, io.EOF
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	start := make([]int, len(extents))
	end := append([]int(nil), extents...)
	start[0] = d.CurrentIndex
	end[0] = min(d.CurrentIndex+batchSize, extents[0])

	raw, err := d.r.ReadRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	d.CurrentIndex = end[0]

	batchShape := make([]int, len(extents))
	for i := range extents {
		batchShape[i] = end[i] - start[i]
	}

	switch d.r.meta.DType {
	case Float32:
		vals := make([]float32, len(raw)/4)
		for i := range vals {
			vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return tensors.FromFlatDataAndDimensions(vals, batchShape...), nil
	case Float64:
		vals := make([]float64, len(raw)/8)
		for i := range vals {
			vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return tensors.FromFlatDataAndDimensions(vals, batchShape...), nil
	case Int32:
		vals := make([]int32, len(raw)/4)
		for i := range vals {
			vals[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return tensors.FromFlatDataAndDimensions(vals, batchShape...), nil
	case Int64:
		vals := make([]int64, len(raw)/8)
		for i := range vals {
			vals[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return tensors.FromFlatDataAndDimensions(vals, batchShape...), nil
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", d.r.meta.DType)
	}
}

// Reset rewinds the iterator to the first row.
func (d *Dataset) Reset() { d.CurrentIndex = 0 }

// Close releases the underlying reader if the dataset owns it.
func (d *Dataset) Close() error {
	if d.ownReader {
		return d.r.Close()
	}
	return nil
}
