package ratelimit

import (
	"context"
	"sync"
	"time"

	"langrpc/rpc"
	"langrpc/rpc/message"
)

var _ ClientLimiter = (*LeakyBucketLimiter)(nil)

// LeakyBucketLimiter paces a client to one call per interval. Calls wait
// for their turn until ctx is done.
type LeakyBucketLimiter struct {
	close     chan struct{}
	closeOnce sync.Once
	producer  *time.Ticker
}

func NewLeakyBucketLimiter(interval time.Duration) *LeakyBucketLimiter {
	return &LeakyBucketLimiter{
		close:    make(chan struct{}),
		producer: time.NewTicker(interval),
	}
}

func (l *LeakyBucketLimiter) LimitProxy() rpc.Middleware {
	return func(next rpc.Proxy) rpc.Proxy {
		return rpc.ProxyFunc(func(ctx context.Context, req *message.Request) (*message.Response, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-l.close:
				return nil, ErrLimiterClosed
			case <-l.producer.C:
				return next.Call(ctx, req)
			}
		})
	}
}

func (l *LeakyBucketLimiter) Close() error {
	l.closeOnce.Do(func() {
		close(l.close)
		l.producer.Stop()
	})
	return nil
}
