package ratelimit

import (
	"container/list"
	"net/http"
	"sync"
	"time"
)

var _ Limiter = (*SlideWindowLimiter)(nil)

type SlideWindowLimiter struct {
	maxRate int
	// timestamps of the admitted requests, oldest first
	queue    *list.List
	mutex    sync.Mutex
	interval time.Duration
	onReject rejectStrategy
}

func NewSlideWindowLimiter(rate int, interval time.Duration) *SlideWindowLimiter {
	return &SlideWindowLimiter{
		maxRate:  rate,
		interval: interval,
		queue:    list.New(),
		onReject: defaultRejection,
	}
}

func (l *SlideWindowLimiter) OnReject(onReject rejectStrategy) *SlideWindowLimiter {
	l.onReject = onReject
	return l
}

func (l *SlideWindowLimiter) LimitHandler() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(time.Now()) {
				l.onReject(w, r, next)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *SlideWindowLimiter) allow(current time.Time) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.queue.Len() < l.maxRate {
		l.queue.PushBack(current)
		return true
	}
	windowStartTime := current.Add(-l.interval)
	reqTime := l.queue.Front()
	for reqTime != nil && !reqTime.Value.(time.Time).After(windowStartTime) {
		l.queue.Remove(reqTime)
		reqTime = l.queue.Front()
	}
	if l.queue.Len() >= l.maxRate {
		return false
	}
	l.queue.PushBack(current)
	return true
}
