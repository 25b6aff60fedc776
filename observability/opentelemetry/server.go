package opentelemetry

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"langrpc/observability"
)

// ServerMiddlewareBuilder traces each request of the route host, continuing
// the trace found in the request headers.
type ServerMiddlewareBuilder struct {
	port       int
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

func NewServerMiddlewareBuilder(port int, tracer trace.Tracer, propagator propagation.TextMapPropagator) *ServerMiddlewareBuilder {
	return &ServerMiddlewareBuilder{port: port, tracer: tracer, propagator: propagator}
}

func (b *ServerMiddlewareBuilder) Build() func(next http.Handler) http.Handler {
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
		attribute.String("rpc.component", "server"),
		attribute.String("net.sock.host.addr", address),
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithAttributes(attrs...),
				trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
			rec := observability.NewStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.response.status_code", rec.Status))
			if rec.Status >= http.StatusBadRequest {
				span.SetStatus(codes.Error, http.StatusText(rec.Status))
				return
			}
			span.SetStatus(codes.Ok, "OK")
		})
	}
}
