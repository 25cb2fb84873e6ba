// Package ratelimit paces outbound API requests.
//
// WindowLimiter wraps golang.org/x/time/rate and is configured the way the
// APIs document their quotas: a number of requests per window. Pacing keeps
// the collector under quota so the long cooldown is the exception.
//
//	l := ratelimit.NewWindowLimiter(75, 15*time.Minute, 1)
//	if err := l.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
