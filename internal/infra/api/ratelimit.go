package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	red "opsvision/internal/infra/redis"
)

// Limiter is satisfied by redis.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit allows perMinute requests per subject and route group.
// Limiter errors let the request through.
func RateLimit(l Limiter, group string, perMinute int, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if l == nil || perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := l.Allow(r.Context(), red.SubjectRouteKey(subject(r), group), perMinute, time.Minute)
			if err != nil {
				logger.Warn().Err(err).Msg("rate limiter unavailable")
			} else if !ok {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
