// Package grid implements the chunk index: coordinate translation between
// logical element coordinates, chunk coordinates and flat chunk ordinals
// for an N-dimensional array split into a regular chunk grid.
package grid

import "fmt"

// Grid describes the chunk layout of one array: per-dimension extents and
// nominal chunk extents. Boundary chunks along a dimension whose extent is
// not a multiple of the chunk extent are truncated.
type Grid struct {
	extents []int
	chunks  []int
	counts  []int
	total   int
}

// New validates extents and chunk extents and builds a Grid.
func New(extents, chunks []int) (*Grid, error) {
	if len(extents) == 0 {
		return nil, fmt.Errorf("grid: array must have at least one dimension")
	}
	if len(chunks) != len(extents) {
		return nil, fmt.Errorf("grid: %d chunk extents for %d dimensions", len(chunks), len(extents))
	}
	g := &Grid{
		extents: append([]int(nil), extents...),
		chunks:  append([]int(nil), chunks...),
		counts:  make([]int, len(extents)),
		total:   1,
	}
	for i := range extents {
		if extents[i] <= 0 {
			return nil, fmt.Errorf("grid: dimension %d has non-positive extent %d", i, extents[i])
		}
		if chunks[i] <= 0 || chunks[i] > extents[i] {
			return nil, fmt.Errorf("grid: dimension %d chunk extent %d out of range (1..%d)", i, chunks[i], extents[i])
		}
		g.counts[i] = (extents[i] + chunks[i] - 1) / chunks[i]
		g.total *= g.counts[i]
	}
	return g, nil
}

// NDims returns the number of dimensions.
func (g *Grid) NDims() int { return len(g.extents) }

// Extents returns the per-dimension element counts.
func (g *Grid) Extents() []int { return g.extents }

// ChunkShape returns the nominal per-dimension chunk extents.
func (g *Grid) ChunkShape() []int { return g.chunks }

// Counts returns ceil(extent/chunk) per dimension.
func (g *Grid) Counts() []int { return g.counts }

// TotalChunks returns the product of Counts.
func (g *Grid) TotalChunks() int { return g.total }

// Contains reports whether coord is a valid logical coordinate.
func (g *Grid) Contains(coord []int) bool {
	if len(coord) != len(g.extents) {
		return false
	}
	for i, c := range coord {
		if c < 0 || c >= g.extents[i] {
			return false
		}
	}
	return true
}

// Locate maps a logical coordinate to the owning chunk coordinate and the
// local coordinate within that chunk. The caller must have validated coord.
func (g *Grid) Locate(coord []int) (chunkCoord, local []int) {
	chunkCoord = make([]int, len(coord))
	local = make([]int, len(coord))
	for i, c := range coord {
		chunkCoord[i] = c / g.chunks[i]
		local[i] = c % g.chunks[i]
	}
	return chunkCoord, local
}

// ChunkStart returns the logical coordinate of a chunk's first element.
func (g *Grid) ChunkStart(chunkCoord []int) []int {
	start := make([]int, len(chunkCoord))
	for i, c := range chunkCoord {
		start[i] = c * g.chunks[i]
	}
	return start
}

// ChunkShapeAt returns the actual shape of a chunk, truncated at array
// boundaries. For interior chunks this equals ChunkShape.
func (g *Grid) ChunkShapeAt(chunkCoord []int) []int {
	shape := make([]int, len(chunkCoord))
	for i, c := range chunkCoord {
		start := c * g.chunks[i]
		end := start + g.chunks[i]
		if end > g.extents[i] {
			end = g.extents[i]
		}
		shape[i] = end - start
	}
	return shape
}

// FillCount returns the number of elements actually stored in a chunk,
// accounting for boundary truncation.
func (g *Grid) FillCount(chunkCoord []int) int {
	n := 1
	for _, s := range g.ChunkShapeAt(chunkCoord) {
		n *= s
	}
	return n
}

// Ordinal flattens a chunk coordinate into a row-major index over the
// chunk grid. Directory lookups are O(1) through this index.
func (g *Grid) Ordinal(chunkCoord []int) int {
	ord := 0
	for i, c := range chunkCoord {
		ord = ord*g.counts[i] + c
	}
	return ord
}

// CoordAt is the inverse of Ordinal.
func (g *Grid) CoordAt(ordinal int) []int {
	coord := make([]int, len(g.counts))
	for i := len(g.counts) - 1; i >= 0; i-- {
		coord[i] = ordinal % g.counts[i]
		ordinal /= g.counts[i]
	}
	return coord
}

// Strides computes the C-order (row-major) strides for a shape.
func Strides(shape []int) []int {
	s := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = stride
		stride *= shape[i]
	}
	return s
}

// Volume returns the product of a shape's extents.
func Volume(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// IterateRange calls fn for every coordinate in the closed-open box
// [start, end), varying the last dimension fastest. Iteration stops on the
// first error.
func IterateRange(start, end []int, fn func(coord []int) error) error {
	for i := range start {
		if start[i] >= end[i] {
			return nil
		}
	}
	coord := make([]int, len(start))
	copy(coord, start)
	for {
		if err := fn(coord); err != nil {
			return err
		}
		i := len(coord) - 1
		for ; i >= 0; i-- {
			coord[i]++
			if coord[i] < end[i] {
				break
			}
			coord[i] = start[i]
		}
		if i < 0 {
			return nil
		}
	}
}
