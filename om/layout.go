package om

import (
	"fmt"

	"github.com/gridpoint/omstore/internal/grid"
)

// ChunkLayout exposes the chunk index of an array: the translation
// between logical coordinates, chunk coordinates and flat chunk ordinals.
type ChunkLayout struct {
	g *grid.Grid
}

// Counts returns the number of chunks per dimension, ceil(extent/chunk).
func (l ChunkLayout) Counts() []int { return append([]int(nil), l.g.Counts()...) }

// TotalChunks returns the total number of chunks in the grid.
func (l ChunkLayout) TotalChunks() int { return l.g.TotalChunks() }

// Locate maps a logical coordinate to its owning chunk coordinate and the
// local offset within that chunk.
func (l ChunkLayout) Locate(coord []int) (chunkCoord, local []int, err error) {
	if !l.g.Contains(coord) {
		return nil, nil, fmt.Errorf("%w: %v outside extents %v", ErrOutOfBounds, coord, l.g.Extents())
	}
	chunkCoord, local = l.g.Locate(coord)
	return chunkCoord, local, nil
}

// ChunkShapeAt returns the actual shape of a chunk; boundary chunks are
// truncated below the nominal chunk shape.
func (l ChunkLayout) ChunkShapeAt(chunkCoord []int) []int {
	return l.g.ChunkShapeAt(chunkCoord)
}

// FillCount returns the number of elements actually stored in a chunk.
func (l ChunkLayout) FillCount(chunkCoord []int) int {
	return l.g.FillCount(chunkCoord)
}

// ChunkStart returns the logical coordinate of a chunk's first element.
func (l ChunkLayout) ChunkStart(chunkCoord []int) []int {
	return l.g.ChunkStart(chunkCoord)
}

// Ordinal flattens a chunk coordinate into its row-major directory index.
func (l ChunkLayout) Ordinal(chunkCoord []int) int { return l.g.Ordinal(chunkCoord) }

// CoordAt is the inverse of Ordinal.
func (l ChunkLayout) CoordAt(ordinal int) []int { return l.g.CoordAt(ordinal) }
