package gzip

import (
	"bytes"
	"compress/gzip"
	"io"
)

// Compressor implements the compress.Compressor interface
type Compressor struct{}

func (Compressor) Name() string {
	return "gzip"
}

// Compress data
func (Compressor) Compress(data []byte) ([]byte, error) {
	res := bytes.NewBuffer(nil)
	gw := gzip.NewWriter(res)
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	// Close must run before reading res, a deferred Close leaves the
	// footer unwritten
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return res.Bytes(), nil
}

// Uncompress data
func (Compressor) Uncompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = gr.Close()
	}()
	return io.ReadAll(gr)
}
