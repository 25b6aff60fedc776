package ratelimit

import (
	"net/http"
	"path"
)

// RouteLimiter applies Limiter to one route only, e.g. "batch". Other
// requests pass untouched.
type RouteLimiter struct {
	Limiter
	Route string
}

func (m *RouteLimiter) LimitHandler() func(next http.Handler) http.Handler {
	limit := m.Limiter.LimitHandler()
	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if path.Base(r.URL.Path) == m.Route {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
