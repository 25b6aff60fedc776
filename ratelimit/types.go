package ratelimit

import (
	"context"
	"net/http"

	"github.com/op/go-logging"

	"langrpc/internal/errs"
	"langrpc/rpc"
)

var log = logging.MustGetLogger("ratelimit")

var (
	ErrRateLimited   = errs.ErrRateLimited
	ErrLimiterClosed = errs.ErrLimiterClosed
)

// Limiter guards the route host.
type Limiter interface {
	LimitHandler() func(next http.Handler) http.Handler
}

// ClientLimiter guards the calls a client sends.
type ClientLimiter interface {
	LimitProxy() rpc.Middleware
}

type rejectStrategy func(w http.ResponseWriter, r *http.Request, next http.Handler)

var defaultRejection rejectStrategy = func(w http.ResponseWriter, r *http.Request, next http.Handler) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"detail":"rate limited"}`))
}

type limitedKey struct{}

// MarkLimitedRejection lets the request through, flagged. Handlers check
// Limited and may take a cheaper path.
var MarkLimitedRejection rejectStrategy = func(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := context.WithValue(r.Context(), limitedKey{}, true)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func Limited(ctx context.Context) bool {
	limited, _ := ctx.Value(limitedKey{}).(bool)
	return limited
}
