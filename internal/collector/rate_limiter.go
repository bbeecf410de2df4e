package collector

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests sent to the remote API.
type RateLimiter interface {
	Wait(ctx context.Context) error
	UpdateLimit(header http.Header)
}

// intervalRateLimiter enforces a minimum interval between requests and
// honours the Retry-After header the service sends when throttling.
type intervalRateLimiter struct {
	limiter *rate.Limiter
	logger  *slog.Logger

	mu           sync.Mutex
	blockedUntil time.Time
}

// NewRateLimiter creates a limiter allowing one request per interval. A zero
// interval disables pacing; Retry-After is still honoured.
func NewRateLimiter(interval time.Duration, logger *slog.Logger) RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &intervalRateLimiter{
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Wait blocks until it's safe to make another API call.
func (r *intervalRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	wait := time.Until(r.blockedUntil)
	r.mu.Unlock()

	if wait > 0 {
		r.logger.Info("remote API throttled, waiting", "wait", wait.Round(time.Second))
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return r.limiter.Wait(ctx)
}

// UpdateLimit reads throttling headers from a response.
func (r *intervalRateLimiter) UpdateLimit(header http.Header) {
	retryAfter := header.Get("Retry-After")
	if retryAfter == "" {
		return
	}
	seconds, err := strconv.Atoi(retryAfter)
	if err != nil || seconds <= 0 {
		return
	}
	until := time.Now().Add(time.Duration(seconds) * time.Second)

	r.mu.Lock()
	defer r.mu.Unlock()
	if until.After(r.blockedUntil) {
		r.blockedUntil = until
	}
}
