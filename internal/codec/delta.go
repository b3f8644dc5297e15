package codec

import (
	"encoding/binary"
	"fmt"
)

// Delta-zigzag coding works on bit patterns, so it is exact for floats as
// well as integers: neighboring samples in gridded weather fields tend to
// share high bits, which keeps the zigzag deltas small and the varints
// short.

func loadElem(raw []byte, i, elemSize int) uint64 {
	off := i * elemSize
	switch elemSize {
	case 1:
		return uint64(raw[off])
	case 2:
		return uint64(binary.LittleEndian.Uint16(raw[off:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(raw[off:]))
	default:
		return binary.LittleEndian.Uint64(raw[off:])
	}
}

func storeElem(out []byte, i, elemSize int, v uint64) {
	off := i * elemSize
	switch elemSize {
	case 1:
		out[off] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(out[off:], uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(out[off:], uint32(v))
	default:
		binary.LittleEndian.PutUint64(out[off:], v)
	}
}

func zigzag(d int64) uint64 {
	return uint64(d<<1) ^ uint64(d>>63)
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

func deltaEncode(raw []byte, elemSize int) []byte {
	count := len(raw) / elemSize
	out := make([]byte, 0, len(raw)/2+binary.MaxVarintLen64)
	var buf [binary.MaxVarintLen64]byte
	prev := uint64(0)
	for i := 0; i < count; i++ {
		v := loadElem(raw, i, elemSize)
		n := binary.PutUvarint(buf[:], zigzag(int64(v-prev)))
		out = append(out, buf[:n]...)
		prev = v
	}
	return out
}

func deltaDecode(enc []byte, elemSize, expectCount int) ([]byte, error) {
	out := make([]byte, expectCount*elemSize)
	prev := uint64(0)
	pos := 0
	for i := 0; i < expectCount; i++ {
		u, n := binary.Uvarint(enc[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: varint stream ends after %d of %d elements", ErrCorrupt, i, expectCount)
		}
		pos += n
		v := prev + uint64(unzigzag(u))
		if elemSize < 8 && v>>(uint(elemSize)*8) != 0 {
			return nil, fmt.Errorf("%w: delta overflows %d-byte element", ErrCorrupt, elemSize)
		}
		storeElem(out, i, elemSize, v)
		prev = v
	}
	if pos != len(enc) {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d elements", ErrCorrupt, len(enc)-pos, expectCount)
	}
	return out, nil
}
