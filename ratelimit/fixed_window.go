package ratelimit

import (
	"net/http"
	"sync/atomic"
	"time"
)

var _ Limiter = (*FixWindowLimiter)(nil)

type FixWindowLimiter struct {
	interval int64
	// at most maxRate requests per interval
	maxRate                    int64
	cnt                        int64
	onReject                   rejectStrategy
	latestWindowStartTimestamp int64
}

// NewFixWindowLimiter allows maxRate requests in each window of interval.
func NewFixWindowLimiter(interval time.Duration, maxRate int64) *FixWindowLimiter {
	return &FixWindowLimiter{
		interval: interval.Nanoseconds(),
		maxRate:  maxRate,
		onReject: defaultRejection,
	}
}

func (t *FixWindowLimiter) OnReject(onReject rejectStrategy) *FixWindowLimiter {
	t.onReject = onReject
	return t
}

func (t *FixWindowLimiter) LimitHandler() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current := time.Now().UnixNano()
			window := atomic.LoadInt64(&t.latestWindowStartTimestamp)
			if window+t.interval < current {
				// a failed CAS means another goroutine opened the new window
				if atomic.CompareAndSwapInt64(&t.latestWindowStartTimestamp, window, current) {
					atomic.StoreInt64(&t.cnt, 0)
				}
			}
			cnt := atomic.AddInt64(&t.cnt, 1)
			if cnt > t.maxRate {
				t.onReject(w, r, next)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
