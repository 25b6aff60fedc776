package serialize

// Serializer -> body serialization protocol abstract
type Serializer interface {
	// Name is the short name used in configuration
	Name() string
	// ContentType is sent as the Content-Type header
	ContentType() string
	Encode(val any) ([]byte, error)
	Decode(data []byte, val any) error
}
