// Package retry runs operations that may fail transiently.
//
// Two policies are used in repostreach. DefaultConfig retries known
// transient API errors with exponential backoff and is used for session
// setup. CooldownConfig is the collection policy: any failure is retried
// exactly once after a long fixed cooldown, and a second failure is
// returned to the caller so the item can be recorded as a miss.
//
//	cfg := retry.CooldownConfig(ctx, 15*time.Minute, log)
//	cfg.OnRetry = func(attempt int, err error, d time.Duration) {
//		logger.LogCooldown(log, "collect", id, d, err)
//	}
//	ids, err := retry.DoWithResult(func() ([]string, error) {
//		return client.ListReposters(ctx, id)
//	}, cfg)
//
// Waits are interruptible: cancelling the context ends a cooldown early
// and Do returns an error for which IsCancelled is true.
package retry
