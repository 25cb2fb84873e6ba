package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"repostreach/pkg/logger"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request or ctx is done
	Wait(ctx context.Context) error
}

// WindowLimiter spreads a request budget evenly across a window, which
// matches how the social APIs publish their limits (N requests per 15 min).
type WindowLimiter struct {
	limiter *rate.Limiter
}

// NewWindowLimiter allows requests per window with the given burst. A zero
// request count disables limiting.
func NewWindowLimiter(requests int, window time.Duration, burst int) *WindowLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if requests > 0 && window > 0 {
		limit = rate.Every(window / time.Duration(requests))
	}
	return &WindowLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Allow reports whether a request may happen now and consumes a token if so
func (w *WindowLimiter) Allow() bool {
	return w.limiter.Allow()
}

// Wait blocks until a token is available
func (w *WindowLimiter) Wait(ctx context.Context) error {
	return w.limiter.Wait(ctx)
}

// Unlimited returns a limiter that never blocks
func Unlimited() *WindowLimiter {
	return &WindowLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
}

// Acquire takes a token for call, logging at debug level when the budget
// is spent and the caller has to wait for the next token
func Acquire(ctx context.Context, l Limiter, log logger.Logger, call string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.Allow() {
		return nil
	}
	log.WithField("call", call).Debug("Request budget spent, waiting for next slot")
	return l.Wait(ctx)
}
