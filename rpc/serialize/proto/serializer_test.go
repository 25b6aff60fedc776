package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langrpc/internal/errs"
	"langrpc/rpc/message"
)

func TestSerializer(t *testing.T) {
	testCases := []struct {
		name string
		val  message.Value
		// numbers come back as float64 text
		want message.Value
	}{
		{
			name: "object",
			val: message.Object(
				message.F("text", message.String("hello")),
				message.F("ok", message.Bool(true)),
			),
			want: message.Object(
				message.F("text", message.String("hello")),
				message.F("ok", message.Bool(true)),
			),
		},
		{
			name: "list with numbers",
			val:  message.List(message.Int(1), message.Null()),
			want: message.List(message.Float(1), message.Null()),
		},
	}
	s := Serializer{}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := s.Encode(tc.val)
			require.NoError(t, err)
			var res message.Value
			err = s.Decode(data, &res)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res)
		})
	}
}

func TestSerializer_WrongType(t *testing.T) {
	s := Serializer{}
	_, err := s.Encode("plain string")
	assert.Equal(t, errs.ErrProtoSerializeType, err)
	var out string
	err = s.Decode(nil, &out)
	assert.Equal(t, errs.ErrProtoDeserializeType, err)
}
