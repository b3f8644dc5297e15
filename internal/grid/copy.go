package grid

// CopyRegion copies an N-dimensional sub-box of region extents from src
// into dst. Both buffers are row-major relative to their own shapes;
// srcOffset and dstOffset position the box inside each. The innermost
// dimension is bulk-copied when contiguous on both sides.
func CopyRegion(
	dst []byte, dstShape, dstOffset []int,
	src []byte, srcShape, srcOffset []int,
	region []int, elemSize int,
) {
	if len(region) == 0 {
		copy(dst[:elemSize], src[:elemSize])
		return
	}

	dstStrides := Strides(dstShape)
	srcStrides := Strides(srcShape)

	startSrc := 0
	startDst := 0
	for i := range region {
		startSrc += srcOffset[i] * srcStrides[i]
		startDst += dstOffset[i] * dstStrides[i]
	}

	var iterate func(dim, srcIdx, dstIdx int)
	iterate = func(dim, srcIdx, dstIdx int) {
		if dim == len(region)-1 {
			n := region[dim]
			if srcStrides[dim] == 1 && dstStrides[dim] == 1 {
				byteLen := n * elemSize
				copy(dst[dstIdx*elemSize:dstIdx*elemSize+byteLen], src[srcIdx*elemSize:srcIdx*elemSize+byteLen])
				return
			}
			for i := 0; i < n; i++ {
				s := (srcIdx + i*srcStrides[dim]) * elemSize
				d := (dstIdx + i*dstStrides[dim]) * elemSize
				copy(dst[d:d+elemSize], src[s:s+elemSize])
			}
			return
		}
		for i := 0; i < region[dim]; i++ {
			iterate(dim+1, srcIdx+i*srcStrides[dim], dstIdx+i*dstStrides[dim])
		}
	}
	iterate(0, startSrc, startDst)
}
