package ratelimit

import (
	"context"
	"sync"
	"time"

	"langrpc/rpc"
	"langrpc/rpc/message"
)

var _ ClientLimiter = (*TokenBucketLimiter)(nil)

// TokenBucketLimiter caps the call rate of a client. A call without a
// token fails fast with ErrRateLimited.
type TokenBucketLimiter struct {
	tokens    chan struct{}
	close     chan struct{}
	closeOnce sync.Once
}

// NewTokenBucketLimiter starts with a full bucket of buffer tokens and
// adds one per interval.
func NewTokenBucketLimiter(buffer int, interval time.Duration) *TokenBucketLimiter {
	tokens := make(chan struct{}, buffer)
	for i := 0; i < buffer; i++ {
		tokens <- struct{}{}
	}
	closeCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-closeCh:
				return
			case <-ticker.C:
				select {
				case tokens <- struct{}{}:
				default:
				}
			}
		}
	}()
	return &TokenBucketLimiter{
		tokens: tokens,
		close:  closeCh,
	}
}

func (l *TokenBucketLimiter) LimitProxy() rpc.Middleware {
	return func(next rpc.Proxy) rpc.Proxy {
		return rpc.ProxyFunc(func(ctx context.Context, req *message.Request) (*message.Response, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			select {
			case <-l.close:
				return nil, ErrLimiterClosed
			default:
			}
			select {
			case <-l.tokens:
				return next.Call(ctx, req)
			default:
			}
			return nil, ErrRateLimited
		})
	}
}

func (l *TokenBucketLimiter) Close() error {
	l.closeOnce.Do(func() {
		close(l.close)
	})
	return nil
}
