package ratelimit

import (
	"context"
	_ "embed"
	"net/http"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/google/uuid"
)

//go:embed lua/slide_window.lua
var luaSlideWindow string

var _ Limiter = (*RedisSlideWindowLimiter)(nil)

// RedisSlideWindowLimiter shares one window across every instance of a
// service. key picks the scope, e.g. the service name.
type RedisSlideWindowLimiter struct {
	key string
	// requests allowed per window
	maxRate int
	// window size in milliseconds
	interval int64
	onReject rejectStrategy
	client   redis.Cmdable
}

func NewRedisSlideWindowLimiter(client redis.Cmdable, key string, maxRate int, interval time.Duration) *RedisSlideWindowLimiter {
	return &RedisSlideWindowLimiter{
		client:   client,
		key:      key,
		maxRate:  maxRate,
		interval: interval.Milliseconds(),
		onReject: defaultRejection,
	}
}

func (l *RedisSlideWindowLimiter) OnReject(onReject rejectStrategy) *RedisSlideWindowLimiter {
	l.onReject = onReject
	return l
}

func (l *RedisSlideWindowLimiter) LimitHandler() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit, err := l.limit(r.Context())
			if err != nil {
				// unknown state, let the request through
				log.Warningf("redis limiter %s: %v", l.key, err)
				next.ServeHTTP(w, r)
				return
			}
			if limit {
				l.onReject(w, r, next)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *RedisSlideWindowLimiter) limit(ctx context.Context) (bool, error) {
	now := time.Now()
	return l.client.Eval(ctx, luaSlideWindow, []string{l.key}, l.interval, l.maxRate, now.UnixMilli(), uuid.NewString()).Bool()
}
