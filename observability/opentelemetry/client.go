package opentelemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"langrpc/observability"
	"langrpc/rpc"
	"langrpc/rpc/message"
)

const instrumentationName = "langrpc/observability/opentelemetry"

// ClientMiddlewareBuilder traces each outbound call and propagates the
// trace context in the request headers.
type ClientMiddlewareBuilder struct {
	port       int
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewClientMiddlewareBuilder falls back to the global tracer provider and
// propagator when tracer or propagator is nil.
func NewClientMiddlewareBuilder(port int, tracer trace.Tracer, propagator propagation.TextMapPropagator) *ClientMiddlewareBuilder {
	return &ClientMiddlewareBuilder{port: port, tracer: tracer, propagator: propagator}
}

func (b *ClientMiddlewareBuilder) Build() rpc.Middleware {
	address := observability.GetOutboundIP()
	if b.port != 0 {
		address = fmt.Sprintf("%s:%d", address, b.port)
	}
	tracer := b.tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	propagator := b.propagator
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "langserve"),
		attribute.String("rpc.component", "client"),
		attribute.String("net.sock.host.addr", address),
	}
	return func(next rpc.Proxy) rpc.Proxy {
		return rpc.ProxyFunc(func(ctx context.Context, req *message.Request) (resp *message.Response, err error) {
			ctx, span := tracer.Start(ctx, string(req.Route),
				trace.WithAttributes(attrs...),
				trace.WithAttributes(attribute.String("url.full", req.URL)),
				trace.WithSpanKind(trace.SpanKindClient))
			defer func() {
				switch {
				case err != nil:
					span.SetStatus(codes.Error, "client failed")
					span.RecordError(err)
				case !resp.OK():
					span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
					span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
				default:
					span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
					span.SetStatus(codes.Ok, "OK")
				}
				span.End()
			}()
			carrier := propagation.MapCarrier{}
			propagator.Inject(ctx, carrier)
			for k, v := range carrier {
				req.SetMeta(k, v)
			}
			return next.Call(ctx, req)
		})
	}
}
