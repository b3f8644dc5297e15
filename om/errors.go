// Package om reads and writes om files: single-file chunked
// N-dimensional arrays of fixed-width numeric samples with a
// self-describing metadata header, used for gridded forecast data.
package om

import "errors"

// Common errors
var (
	// ErrInvalidFormat reports a malformed header, metadata block or
	// chunk directory.
	ErrInvalidFormat = errors.New("invalid om file format")
	// ErrCorruptChunk reports an encoded chunk inconsistent with the
	// array's compression scheme or element count.
	ErrCorruptChunk = errors.New("corrupt chunk")
	// ErrOutOfBounds reports a coordinate beyond the declared extents.
	ErrOutOfBounds = errors.New("coordinate out of bounds")
	// ErrNotFinalized reports a read of a file that was never sealed.
	ErrNotFinalized = errors.New("array not finalized")
	// ErrLayoutMismatch reports rechunk source and destination layouts
	// that do not describe the same logical dataset.
	ErrLayoutMismatch = errors.New("layout mismatch")
	// ErrSealed reports a write to an already finalized array.
	ErrSealed = errors.New("array already finalized")
)

// chunkReadRetries is the number of extra attempts made when a byte-range
// read of a single chunk fails; decode failures are never retried.
const chunkReadRetries = 2
