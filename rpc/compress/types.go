package compress

// Compressor -> body compression abstract. Name is used as the HTTP
// Content-Encoding token.
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Uncompress(data []byte) ([]byte, error)
}

// DoNothingCompressor is the identity encoding, used to avoid nil checks.
type DoNothingCompressor struct{}

func (DoNothingCompressor) Name() string {
	return ""
}

func (DoNothingCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (DoNothingCompressor) Uncompress(data []byte) ([]byte, error) {
	return data, nil
}
