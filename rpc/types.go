package rpc

//go:generate mockgen -source=types.go -destination=types_mock.go -package=rpc

import (
	"context"

	"langrpc/rpc/message"
)

// Proxy sends one request to the remote service. The HTTP transport, the
// Client itself and every middleware implement it.
type Proxy interface {
	Call(ctx context.Context, req *message.Request) (*message.Response, error)
}

// ProxyFunc adapts a function to Proxy.
type ProxyFunc func(ctx context.Context, req *message.Request) (*message.Response, error)

func (f ProxyFunc) Call(ctx context.Context, req *message.Request) (*message.Response, error) {
	return f(ctx, req)
}

// Middleware wraps the transport, e.g. tracing, metrics or rate limiting.
type Middleware func(next Proxy) Proxy

// Service is a struct of func fields bound to one served pipeline.
// Name is the route path of the pipeline, e.g. "summarize".
type Service interface {
	Name() string
}
