package errs

import (
	"errors"
	"fmt"
)

var (
	ErrServiceType      = errors.New("langrpc: service type must be a first level pointer to a struct")
	ErrNilService       = errors.New("langrpc: nil service is not supported")
	ErrInvalidEndpoint  = errors.New("langrpc: invalid endpoint")
	ErrEmptyBatch       = errors.New("langrpc: batch requires at least one input")
	ErrBatchMismatch    = errors.New("langrpc: batch result length does not match input length")
	ErrMalformedFrame   = errors.New("langrpc: malformed stream frame")
	ErrRateLimited      = errors.New("langrpc: rate limited")
	ErrLimiterClosed    = errors.New("langrpc: rate limiter closed")
	ErrNoInstance       = errors.New("langrpc: no available service instance")
	ErrRegistryRequired = errors.New("langrpc: registry is required")
)

var (
	ErrNotConcatenable = errors.New("message: values are not concatenable")
	ErrTrailingData    = errors.New("message: trailing data after value")
)

var (
	ErrProtoSerializeType   = errors.New("serialize: serialization must be message.Value or proto.Message type")
	ErrProtoDeserializeType = errors.New("serialize: deserialization must be *message.Value or proto.Message type")
)

func UnknownOperation(field, op string) error {
	return fmt.Errorf("langrpc: field %s maps to unknown operation %q", field, op)
}

func UnsupportedFieldType(field string) error {
	return fmt.Errorf("langrpc: field %s has an unsupported func signature", field)
}

var (
	ErrInvalidInput         = errors.New("server: invalid input")
	ErrUnsupportedMediaType = errors.New("server: unsupported media type")
)
