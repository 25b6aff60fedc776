package prometheus

import (
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"langrpc/observability"
)

// ServerMiddlewareBuilder is ClientMiddlewareBuilder for the route host.
// The route label is the last path segment, e.g. "invoke".
type ServerMiddlewareBuilder struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
	Port      string

	Registerer prometheus.Registerer
}

func (b *ServerMiddlewareBuilder) Build() func(next http.Handler) http.Handler {
	vecs := newVectors(opts{
		Namespace: b.Namespace,
		Subsystem: b.Subsystem,
		Name:      b.Name,
		Help:      b.Help,
		Port:      b.Port,
	}, "server", b.Registerer)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := path.Base(r.URL.Path)
			active := vecs.active.WithLabelValues(route)
			active.Inc()
			startTime := time.Now()
			rec := observability.NewStatusRecorder(w)
			defer func() {
				active.Dec()
				if rec.Status >= http.StatusBadRequest {
					vecs.errCnt.WithLabelValues(route, strconv.Itoa(rec.Status)).Inc()
				}
				vecs.summary.WithLabelValues(route).
					Observe(float64(time.Since(startTime).Milliseconds()))
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
