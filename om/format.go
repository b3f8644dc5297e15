package om

import (
	"fmt"
	"hash/crc32"

	"github.com/gridpoint/omstore/internal/binio"
)

// On-disk layout:
//
//	[0,16)           fixed header: magic "OMAR", version, flags, reserved,
//	                 metadata block length (u64)
//	[16,16+metaLen)  metadata block, written once at Finalize:
//	                 dtype, compression, ndims, reserved, scale factor,
//	                 add offset, dimension table, chunk directory, CRC-32
//	[16+metaLen,EOF) data section: concatenated encoded chunks
//
// The sealed bit in the header flags is the commit point: it is set only
// after the metadata block is fully on disk. A file without it is an
// aborted or in-progress write and cannot be opened for reading.
//
// The chunk directory holds one (offset, encoded length) pair per chunk in
// row-major chunk order, so a coordinate resolves to its entry in O(1) via
// the flattened chunk ordinal. A zero-length entry marks a chunk that was
// never written; it reads back as zeros.

const (
	formatVersion = 1
	headerLen     = 16

	flagSealed = 1 << 0
)

var magic = []byte("OMAR")

type dirEntry struct {
	offset uint64
	length uint64
}

func encodeHeader(metaLen int, sealed bool) []byte {
	w := binio.NewWriter(headerLen)
	w.Uint8(magic[0])
	w.Uint8(magic[1])
	w.Uint8(magic[2])
	w.Uint8(magic[3])
	w.Uint8(formatVersion)
	if sealed {
		w.Uint8(flagSealed)
	} else {
		w.Uint8(0)
	}
	w.Uint16(0)
	w.Uint64(uint64(metaLen))
	return w.Bytes()
}

func parseHeader(buf []byte) (metaLen int, sealed bool, err error) {
	if len(buf) < headerLen {
		return 0, false, fmt.Errorf("%w: file shorter than header", ErrInvalidFormat)
	}
	r := binio.NewReader(buf[:headerLen])
	for i := 0; i < 4; i++ {
		if r.Uint8() != magic[i] {
			return 0, false, fmt.Errorf("%w: bad magic", ErrInvalidFormat)
		}
	}
	if v := r.Uint8(); v != formatVersion {
		return 0, false, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, v)
	}
	flags := r.Uint8()
	r.Uint16()
	metaLen = int(r.Uint64())
	if metaLen <= 0 {
		return 0, false, fmt.Errorf("%w: metadata length %d", ErrInvalidFormat, metaLen)
	}
	return metaLen, flags&flagSealed != 0, nil
}

// metaBlockLen returns the exact metadata block size for the given
// metadata, known before any chunk is written.
func metaBlockLen(m *Metadata, totalChunks int) int {
	n := 4 + 4 + 4 // dtype/compression/ndims/reserved + scale + offset
	for _, d := range m.Dims {
		n += 2 + len(d.Name) + 8 + 8
	}
	n += totalChunks * 16
	n += 4 // CRC-32
	return n
}

func encodeMetadata(m *Metadata, dir []dirEntry) []byte {
	w := binio.NewWriter(metaBlockLen(m, len(dir)))
	w.Uint8(uint8(m.DType))
	w.Uint8(uint8(m.Compression))
	w.Uint8(uint8(len(m.Dims)))
	w.Uint8(0)
	w.Float32(m.ScaleFactor)
	w.Float32(m.AddOffset)
	for _, d := range m.Dims {
		w.String(d.Name)
		w.Uint64(uint64(d.Extent))
		w.Uint64(uint64(d.Chunk))
	}
	for _, e := range dir {
		w.Uint64(e.offset)
		w.Uint64(e.length)
	}
	w.Uint32(crc32.ChecksumIEEE(w.Bytes()))
	return w.Bytes()
}

func decodeMetadata(buf []byte) (*Metadata, []dirEntry, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("%w: metadata block truncated", ErrInvalidFormat)
	}
	body, sum := buf[:len(buf)-4], buf[len(buf)-4:]
	want := uint32(sum[0]) | uint32(sum[1])<<8 | uint32(sum[2])<<16 | uint32(sum[3])<<24
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, nil, fmt.Errorf("%w: metadata checksum mismatch (got %08x, want %08x)", ErrInvalidFormat, got, want)
	}

	r := binio.NewReader(body)
	m := &Metadata{
		DType:       DType(r.Uint8()),
		Compression: Compression(r.Uint8()),
	}
	ndims := int(r.Uint8())
	r.Uint8()
	m.ScaleFactor = r.Float32()
	m.AddOffset = r.Float32()
	for i := 0; i < ndims; i++ {
		m.Dims = append(m.Dims, Dim{
			Name:   r.String(),
			Extent: int(r.Uint64()),
			Chunk:  int(r.Uint64()),
		})
	}
	if r.Err() != nil {
		return nil, nil, fmt.Errorf("%w: metadata block truncated", ErrInvalidFormat)
	}
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}
	if r.Remaining()%16 != 0 {
		return nil, nil, fmt.Errorf("%w: chunk directory size %d not a multiple of 16", ErrInvalidFormat, r.Remaining())
	}
	dir := make([]dirEntry, r.Remaining()/16)
	for i := range dir {
		dir[i] = dirEntry{offset: r.Uint64(), length: r.Uint64()}
	}
	if r.Err() != nil {
		return nil, nil, fmt.Errorf("%w: metadata block truncated", ErrInvalidFormat)
	}
	return m, dir, nil
}
