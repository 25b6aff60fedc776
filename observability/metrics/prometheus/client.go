package prometheus

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"langrpc/rpc"
	"langrpc/rpc/message"
)

// ClientMiddlewareBuilder records latency, errors and in-flight calls per
// route of the remote pipeline.
type ClientMiddlewareBuilder struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
	Port      string

	// Registerer defaults to prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

func (b *ClientMiddlewareBuilder) Build() rpc.Middleware {
	vecs := newVectors(opts{
		Namespace: b.Namespace,
		Subsystem: b.Subsystem,
		Name:      b.Name,
		Help:      b.Help,
		Port:      b.Port,
	}, "client", b.Registerer)
	return func(next rpc.Proxy) rpc.Proxy {
		return rpc.ProxyFunc(func(ctx context.Context, req *message.Request) (resp *message.Response, err error) {
			route := string(req.Route)
			active := vecs.active.WithLabelValues(route)
			active.Inc()
			startTime := time.Now()
			defer func() {
				active.Dec()
				switch {
				case err != nil:
					vecs.errCnt.WithLabelValues(route, errorReason(err)).Inc()
				case !resp.OK():
					vecs.errCnt.WithLabelValues(route, strconv.Itoa(resp.StatusCode)).Inc()
				}
				vecs.summary.WithLabelValues(route).
					Observe(float64(time.Since(startTime).Milliseconds()))
			}()
			return next.Call(ctx, req)
		})
	}
}

func errorReason(err error) string {
	var re *rpc.RemoteError
	if errors.As(err, &re) {
		return re.Kind.String()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return rpc.KindTimeout.String()
	}
	return "error"
}
