package zstd

import (
	"github.com/klauspost/compress/zstd"
)

// encoder and decoder are safe for concurrent EncodeAll/DecodeAll
var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// Compressor implements the compress.Compressor interface with zstd
type Compressor struct{}

func (Compressor) Name() string {
	return "zstd"
}

// Compress data
func (Compressor) Compress(data []byte) ([]byte, error) {
	return encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

// Uncompress data
func (Compressor) Uncompress(data []byte) ([]byte, error) {
	return decoder.DecodeAll(data, nil)
}
