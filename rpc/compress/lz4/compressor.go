package lz4

import (
	"encoding/binary"
	"errors"

	"github.com/pierrec/lz4/v4"
)

const sizeLen = 4

var errShortBlock = errors.New("lz4: block shorter than its size prefix")

// Compressor lz4 block compression. Decompression is several times faster
// than gzip, which suits frequently decoded bodies. The block is prefixed
// with the uncompressed size so Uncompress can allocate exactly.
type Compressor struct{}

func (c Compressor) Name() string {
	return "lz4"
}

// Compress data
func (c Compressor) Compress(data []byte) ([]byte, error) {
	buf := make([]byte, sizeLen+lz4.CompressBlockBound(len(data)))
	binary.BigEndian.PutUint32(buf[:sizeLen], uint32(len(data)))
	if len(data) == 0 {
		return buf[:sizeLen], nil
	}
	n, err := lz4.CompressBlock(data, buf[sizeLen:], nil)
	if err != nil {
		return nil, err
	}
	return buf[:sizeLen+n], nil
}

// Uncompress data
func (c Compressor) Uncompress(data []byte) ([]byte, error) {
	if len(data) < sizeLen {
		return nil, errShortBlock
	}
	size := binary.BigEndian.Uint32(data[:sizeLen])
	if size == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, size)
	n, err := lz4.UncompressBlock(data[sizeLen:], buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
