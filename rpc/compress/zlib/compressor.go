package zlib

import (
	"bytes"
	"compress/zlib"
	"io"
)

// Compressor implements the compress.Compressor interface. HTTP names the
// zlib format "deflate".
type Compressor struct{}

func (Compressor) Name() string {
	return "deflate"
}

// Compress data
func (Compressor) Compress(data []byte) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	w := zlib.NewWriter(buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Uncompress data
func (Compressor) Uncompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()
	return io.ReadAll(r)
}
