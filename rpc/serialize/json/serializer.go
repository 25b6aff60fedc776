package json

import (
	"github.com/goccy/go-json"
)

const ContentType = "application/json"

// Serializer -> JSON serialization protocol, the default wire format
type Serializer struct{}

func (s Serializer) Name() string {
	return "json"
}

func (s Serializer) ContentType() string {
	return ContentType
}

func (s Serializer) Encode(val any) ([]byte, error) {
	return json.Marshal(val)
}

func (s Serializer) Decode(data []byte, val any) error {
	return json.Unmarshal(data, val)
}
